package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/phobologic/cratemap/internal/annotate"
	"github.com/phobologic/cratemap/internal/cache"
	"github.com/phobologic/cratemap/internal/config"
	"github.com/phobologic/cratemap/internal/graph"
	"github.com/phobologic/cratemap/internal/metadata"
	"github.com/phobologic/cratemap/internal/render"
	"github.com/phobologic/cratemap/internal/resolve"
)

var (
	genPath    string
	genOutput  string
	genNoCache bool
	genWorkers int
	genStrict  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Parse the project and write the index reports",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genPath, "path", ".", "project root to index")
	generateCmd.Flags().StringVar(&genOutput, "output", "", "output directory (default from config)")
	generateCmd.Flags().BoolVar(&genNoCache, "no-cache", false, "ignore the existing cache and reindex everything")
	generateCmd.Flags().IntVar(&genWorkers, "workers", 0, "parallel parse workers (default from config)")
	generateCmd.Flags().BoolVar(&genStrict, "strict", false, "fail on the first unresolvable crate")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(genPath)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	if genOutput != "" {
		cfg.Output = genOutput
	}
	if genWorkers > 0 {
		cfg.Workers = genWorkers
	}
	if genStrict {
		cfg.Strict = true
	}

	outDir := cfg.Output
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(root, outDir)
	}

	units, err := metadata.Discover(root)
	if err != nil {
		return err
	}
	slog.Info("discovered crate targets", "count", len(units))

	oldCache := cache.New()
	if !genNoCache {
		oldCache, err = cache.Load(outDir)
		if err != nil {
			slog.Warn("discarding unreadable cache", "error", err)
			oldCache = cache.New()
		}
	}

	crates, err := resolve.Forest(cmd.Context(), units, root, resolve.Options{
		Workers:         cfg.Workers,
		SkipParseErrors: cfg.SkipParseErrors,
		Strict:          cfg.Strict,
	})
	if err != nil {
		return err
	}
	slog.Info("resolved crates", "count", len(crates))

	newCache := cache.FromCrates(crates, time.Now().UTC())

	prior, err := annotate.Load(outDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("discarding unreadable annotations", "error", err)
		}
		prior = annotate.NewStore()
	}
	notes := annotate.Update(prior, crates, oldCache, newCache)

	rel := graph.Build(crates)

	indexJSON, err := render.Index(crates)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	reports := []struct {
		name string
		data []byte
	}{
		{"overview.md", []byte(render.Overview(crates, notes))},
		{"api-surface.md", []byte(render.Surface(crates, notes))},
		{"relationships.md", []byte(render.Relationships(rel, cfg.HotspotThreshold))},
		{"index.json", indexJSON},
	}
	for _, r := range reports {
		if err := os.WriteFile(filepath.Join(outDir, r.name), r.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", r.name, err)
		}
	}

	if err := notes.Save(outDir); err != nil {
		return err
	}
	if err := newCache.Save(outDir); err != nil {
		return err
	}

	counts := notes.Counts()
	slog.Info("reports written",
		"dir", outDir,
		"modules", counts.Modules,
		"items", counts.Items,
		"missing", counts.Missing,
		"stale", counts.Stale)
	return nil
}
