package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/cratemap/internal/annotate"
	"github.com/phobologic/cratemap/internal/render"
)

// The CLI tests drive the real root command, which shares package-level
// flag state, so they run serially.

// execCLI runs the root command with args and returns captured output.
func execCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeSampleCrate lays out a small but realistic crate: nested modules,
// docs, a From impl, and a pub(crate) helper.
func writeSampleCrate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "Cargo.toml", `[package]
name = "sample-crate"
version = "0.1.0"
edition = "2021"

[dependencies]
serde = "1"
anyhow = "1"
`)
	writeFile(t, dir, "src/lib.rs", `//! Sample crate used by the end to end tests.

pub mod engine;
mod util;

/// Application configuration.
pub struct Config {
    pub workers: usize,
}

/// Top-level error.
pub enum AppError {
    Config(ConfigError),
}

pub struct ConfigError {
    pub message: String,
}

impl From<ConfigError> for AppError {
    fn from(err: ConfigError) -> Self {
        AppError::Config(err)
    }
}
`)
	writeFile(t, dir, "src/engine.rs", `//! Drives indexing passes.

pub mod eval;

use crate::util::truncate;
use crate::Config;

/// Runs one pass over the given configuration.
pub fn start(cfg: &Config) -> usize {
    let _ = truncate("sample", 3);
    cfg.workers
}
`)
	writeFile(t, dir, "src/engine/eval.rs", `/// Evaluation context shared across passes.
pub struct EvalContext {
    pub depth: usize,
}

fn resolve_name(name: &str) -> Option<String> {
    Some(name.to_string())
}
`)
	writeFile(t, dir, "src/util.rs", `pub(crate) fn truncate(s: &str, max: usize) -> &str {
    if s.len() <= max { s } else { &s[..max] }
}
`)
	return dir
}

func readReport(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, ".codebase-index", name))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}

// TestGenerateWritesReports runs the full pipeline against a fixture crate
// and checks each artifact.
func TestGenerateWritesReports(t *testing.T) {
	dir := writeSampleCrate(t)

	if _, err := execCLI(t, "generate", "--path", dir); err != nil {
		t.Fatalf("generate: %v", err)
	}

	overview := readReport(t, dir, "overview.md")
	for _, want := range []string{
		"# Crate: sample_crate (lib)",
		"Edition: 2021",
		"Version: 0.1.0",
		"External deps: anyhow, serde",
		"## Module Tree",
		"- crate — Sample crate used by the end to end tests.",
		"  - engine — Drives indexing passes.",
		"  - util",
	} {
		if !strings.Contains(overview, want) {
			t.Errorf("overview missing %q:\n%s", want, overview)
		}
	}

	surface := readReport(t, dir, "api-surface.md")
	for _, want := range []string{
		"# crate\n<!-- file: src/lib.rs -->",
		"/// Application configuration.\npub struct Config {",
		"## Impl From<ConfigError> for AppError",
		"# crate::engine::eval",
		"pub(crate) fn truncate(",
		"## Re-exports",
	} {
		if !strings.Contains(surface, want) {
			t.Errorf("api-surface missing %q", want)
		}
	}

	rel := readReport(t, dir, "relationships.md")
	for _, want := range []string{
		"From <- AppError",
		"ConfigError -> AppError",
		"engine       -> util",
		"engine::eval -> (no internal deps)",
		"## Key Types (referenced from 3+ modules)",
	} {
		if !strings.Contains(rel, want) {
			t.Errorf("relationships missing %q:\n%s", want, rel)
		}
	}

	var index map[string]render.IndexEntry
	if err := json.Unmarshal([]byte(readReport(t, dir, "index.json")), &index); err != nil {
		t.Fatalf("index.json: %v", err)
	}
	for _, key := range []string{
		"crate::Config",
		"crate::impl From<ConfigError> for AppError",
		"crate::engine::start",
		"crate::engine::eval::EvalContext",
		"crate::engine::eval::resolve_name",
		"crate::util::truncate",
	} {
		if _, ok := index[key]; !ok {
			t.Errorf("index.json missing key %q", key)
		}
	}
	if e := index["crate::engine::eval::resolve_name"]; e.Kind != "function" || e.Visibility != "private" {
		t.Errorf("resolve_name entry: %+v", e)
	}
	if e := index["crate::util::truncate"]; e.File != "src/util.rs" {
		t.Errorf("truncate file: %q", e.File)
	}

	annotations := readReport(t, dir, "annotations.toml")
	if !strings.Contains(annotations, "[modules") || !strings.Contains(annotations, "[items") {
		t.Errorf("annotations.toml missing sections:\n%s", annotations)
	}
	if !strings.Contains(annotations, "crate::engine") {
		t.Error("annotations.toml missing module entry")
	}

	if _, err := os.Stat(filepath.Join(dir, ".codebase-index", "cache.json")); err != nil {
		t.Errorf("cache.json not written: %v", err)
	}
}

// TestAnnotateRoundTrip exports the template, imports a filled-in note,
// and checks the note lands and leaves the export queue.
func TestAnnotateRoundTrip(t *testing.T) {
	dir := writeSampleCrate(t)
	if _, err := execCLI(t, "generate", "--path", dir); err != nil {
		t.Fatalf("generate: %v", err)
	}

	out, err := execCLI(t, "annotate", "export", "--path", dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "need descriptions") {
		t.Errorf("export missing header:\n%s", out)
	}
	if !strings.Contains(out, "crate::util::truncate") {
		t.Errorf("export missing item entry:\n%s", out)
	}

	tmpl := filepath.Join(t.TempDir(), "notes.toml")
	filled := "[items.\"crate::util::truncate\"]\nnote = \"Clamps a string to max bytes\"\n"
	if err := os.WriteFile(tmpl, []byte(filled), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execCLI(t, "annotate", "import", tmpl, "--path", dir); err != nil {
		t.Fatalf("import: %v", err)
	}

	store, err := annotate.Load(filepath.Join(dir, ".codebase-index"))
	if err != nil {
		t.Fatalf("load annotations: %v", err)
	}
	if got := store.Items["crate::util::truncate"].Note; got != "Clamps a string to max bytes" {
		t.Errorf("note not applied: %q", got)
	}

	out, err = execCLI(t, "annotate", "export", "--path", dir)
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if strings.Contains(out, "crate::util::truncate") {
		t.Error("noted item should leave the export queue")
	}
}

// TestGenerateMarksEditedItemStale verifies the cache diff marks exactly
// the edited item's note stale on the next run.
func TestGenerateMarksEditedItemStale(t *testing.T) {
	dir := writeSampleCrate(t)
	if _, err := execCLI(t, "generate", "--path", dir); err != nil {
		t.Fatalf("first generate: %v", err)
	}

	outDir := filepath.Join(dir, ".codebase-index")
	store, err := annotate.Load(outDir)
	if err != nil {
		t.Fatal(err)
	}
	store.Items["crate::util::truncate"] = annotate.Entry{Note: "Clamps a string"}
	store.Items["crate::Config"] = annotate.Entry{Note: "App configuration"}
	if err := store.Save(outDir); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "src/util.rs", `pub(crate) fn truncate(s: &str, max: usize) -> &str {
    let end = max.min(s.len());
    &s[..end]
}
`)

	if _, err := execCLI(t, "generate", "--path", dir); err != nil {
		t.Fatalf("second generate: %v", err)
	}

	store, err = annotate.Load(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if !store.Items["crate::util::truncate"].Stale {
		t.Error("edited item's note should be stale")
	}
	if store.Items["crate::util::truncate"].Note != "Clamps a string" {
		t.Error("stale note should keep its text")
	}
	if store.Items["crate::Config"].Stale {
		t.Error("untouched item's note should not be stale")
	}
}

// TestGenerateNoteShowsUpInReports verifies imported notes flow into the
// overview and api-surface on the next generate.
func TestGenerateNoteShowsUpInReports(t *testing.T) {
	dir := writeSampleCrate(t)
	if _, err := execCLI(t, "generate", "--path", dir); err != nil {
		t.Fatalf("first generate: %v", err)
	}

	outDir := filepath.Join(dir, ".codebase-index")
	store, err := annotate.Load(outDir)
	if err != nil {
		t.Fatal(err)
	}
	store.Modules["crate::util"] = annotate.Entry{Note: "String helpers"}
	store.Items["crate::util::truncate"] = annotate.Entry{Note: "Clamps a string"}
	if err := store.Save(outDir); err != nil {
		t.Fatal(err)
	}

	if _, err := execCLI(t, "generate", "--path", dir); err != nil {
		t.Fatalf("second generate: %v", err)
	}

	overview := readReport(t, dir, "overview.md")
	if !strings.Contains(overview, "  - util — String helpers") {
		t.Errorf("overview should use module note:\n%s", overview)
	}
	surface := readReport(t, dir, "api-surface.md")
	if !strings.Contains(surface, "// NOTE: Clamps a string\npub(crate) fn truncate(") {
		t.Errorf("api-surface should carry the item note:\n%s", surface)
	}
}

// TestGenerateNoManifest verifies discovery failure surfaces as an error.
func TestGenerateNoManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "not a crate")

	_, err := execCLI(t, "generate", "--path", dir)
	if err == nil {
		t.Fatal("expected error for a directory without manifests")
	}
	if !strings.Contains(err.Error(), "no Cargo.toml") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestVersionCommand verifies the version subcommand prints the stamp.
func TestVersionCommand(t *testing.T) {
	out, err := execCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "cratemap") {
		t.Errorf("version output: %q", out)
	}
}

// --- helpers ---

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
