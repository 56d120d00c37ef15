package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/cratemap/internal/config"
)

const (
	sentinelStart = "<!-- cratemap:start -->"
	sentinelEnd   = "<!-- cratemap:end -->"
)

var initDryRun bool

var initCmd = &cobra.Command{
	Use:   "init [path-to-agent-file]",
	Short: "Write a cratemap usage section to an agent instructions file",
	Long: `Write a cratemap usage section to an agent instructions file (CLAUDE.md by
default). The section is wrapped in sentinel comments so it can be updated in
place on subsequent runs without touching surrounding content. Creates the
file if it does not exist, and scaffolds a cratemap.yml next to it unless one
is already present.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDryRun, "dry-run", false, "print what would be written without modifying any file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	section := usageSection()

	// --dry-run with no path: just print the section itself.
	if initDryRun && len(args) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), section)
		return nil
	}

	path := "CLAUDE.md"
	if len(args) > 0 {
		path = args[0]
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if initDryRun {
		_, _ = fmt.Fprint(cmd.OutOrStdout(), updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote cratemap section to %s\n", path)

	cfgPath := filepath.Join(filepath.Dir(path), "cratemap.yml")
	if _, err := os.Stat(cfgPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", cfgPath, err)
	}
	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfgPath, err)
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote default config to %s\n", cfgPath)
	return nil
}

// usageSection returns the full sentinel-wrapped cratemap documentation block.
func usageSection() string {
	body := `## cratemap — Rust Codebase Index

Run ` + "`cratemap generate`" + ` via the Bash tool at the start of any task on an
unfamiliar Rust codebase. It writes a layered index under ` + "`.codebase-index/`" + `
that replaces the need for broad initial exploration.

**Availability:** check with ` + "`cratemap version`" + ` first; skip gracefully if
not found.

**Run it:**
` + "```" + `bash
cratemap generate                  # index the current directory
cratemap generate --path /repo     # explicit project root
cratemap generate --no-cache       # full reindex, ignoring the cache
` + "```" + `

**How to use the output — follow these rules:**

1. **Start with ` + "`overview.md`" + `.** It lists every crate and the module tree
   with one-line descriptions. Read it before opening any source file.

2. **Use ` + "`index.json`" + ` instead of Grep to find definitions.** It maps every
   item path to its file and line range.

3. **Read ` + "`api-surface.md`" + ` for signatures and docs** before opening a
   module's source; most questions about what a module exposes are
   answered there.

4. **Check ` + "`relationships.md`" + ` to trace trait impls, error conversion
   chains, and module dependencies** before following them by hand.

**Annotations:** descriptions live in ` + "`annotations.toml`" + ` and survive
reindexing. To fill in missing ones, run ` + "`cratemap annotate export`" + `, edit
the ` + "`note`" + ` fields, then ` + "`cratemap annotate import <file>`" + ` and regenerate.
Notes whose code has changed are marked stale rather than dropped.

Rerunning ` + "`cratemap generate`" + ` is cheap and idempotent; do it after any
substantial edit.`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}

// defaultConfigYAML renders the scaffolded cratemap.yml. The workers key is
// deliberately omitted so the file does not bake in this machine's CPU count.
func defaultConfigYAML() ([]byte, error) {
	def := config.Default()
	return yaml.Marshal(struct {
		Output           string `yaml:"output"`
		HotspotThreshold int    `yaml:"hotspot_threshold"`
		SkipParseErrors  bool   `yaml:"skip_parse_errors"`
		Strict           bool   `yaml:"strict"`
	}{
		Output:           def.Output,
		HotspotThreshold: def.HotspotThreshold,
		SkipParseErrors:  def.SkipParseErrors,
		Strict:           def.Strict,
	})
}
