package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/cratemap/internal/annotate"
	"github.com/phobologic/cratemap/internal/config"
)

var annPath string

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Export and import human descriptions for modules and items",
}

var annotateExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a TOML template of entries that still need descriptions",
	Args:  cobra.NoArgs,
	RunE:  runAnnotateExport,
}

var annotateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge filled-in notes from a template back into the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnnotateImport,
}

func init() {
	annotateCmd.PersistentFlags().StringVar(&annPath, "path", ".", "project root")
	annotateCmd.AddCommand(annotateExportCmd)
	annotateCmd.AddCommand(annotateImportCmd)
	rootCmd.AddCommand(annotateCmd)
}

// annotationDir resolves the project's output directory and loads the
// annotation ledger from it. Both subcommands need the generate step to
// have run at least once.
func annotationDir() (string, *annotate.Store, error) {
	root, err := filepath.Abs(annPath)
	if err != nil {
		return "", nil, fmt.Errorf("resolve project root: %w", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	outDir := cfg.Output
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(root, outDir)
	}
	store, err := annotate.Load(outDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("no annotations found in %s (run generate first)", outDir)
		}
		return "", nil, err
	}
	return outDir, store, nil
}

func runAnnotateExport(cmd *cobra.Command, args []string) error {
	_, store, err := annotationDir()
	if err != nil {
		return err
	}
	data, err := annotate.ExportTemplate(store)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runAnnotateImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	outDir, store, err := annotationDir()
	if err != nil {
		return err
	}
	n, err := store.Import(data)
	if err != nil {
		return err
	}
	if err := store.Save(outDir); err != nil {
		return err
	}
	slog.Info("annotations imported", "applied", n)
	return nil
}
