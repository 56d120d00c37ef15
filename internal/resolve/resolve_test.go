package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/phobologic/cratemap/internal/metadata"
	"github.com/phobologic/cratemap/internal/model"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func resolveLib(t *testing.T, root string, opts Options) model.Crate {
	t.Helper()
	crate, err := Crate(context.Background(), metadata.Unit{
		Name:     "sample",
		Kind:     model.Lib,
		RootFile: filepath.Join(root, "src", "lib.rs"),
	}, root, opts)
	if err != nil {
		t.Fatalf("Crate: %v", err)
	}
	return crate
}

func TestResolveTree(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs": `//! Sample crate.

/// Evaluation engine.
pub mod engine;
mod util;

pub struct Config {
    pub debug: bool,
}
`,
		"src/engine/mod.rs": `//! Engine internals.
pub mod eval;

pub fn start() {}
`,
		"src/engine/eval.rs": "pub fn eval() -> u32 {\n    0\n}\n",
		"src/util.rs":        "pub(crate) fn truncate(s: &str) -> &str {\n    s\n}\n",
	})

	crate := resolveLib(t, root, Options{})
	if crate.Root.Path != "crate" || crate.Root.Name != "sample" {
		t.Errorf("root = %q %q", crate.Root.Path, crate.Root.Name)
	}
	if crate.Root.Doc != "Sample crate." {
		t.Errorf("root doc = %q", crate.Root.Doc)
	}
	if crate.Root.File != "src/lib.rs" {
		t.Errorf("root file = %q", crate.Root.File)
	}

	paths := modulePaths(&crate.Root)
	want := []string{"crate", "crate::engine", "crate::engine::eval", "crate::util"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	engine := crate.Root.Submodules[0]
	// the file's own inner doc wins over the declaration doc
	if engine.Doc != "Engine internals." {
		t.Errorf("engine doc = %q", engine.Doc)
	}
	if engine.Visibility != model.Pub {
		t.Errorf("engine visibility = %q", engine.Visibility)
	}
	if engine.File != "src/engine/mod.rs" {
		t.Errorf("engine file = %q", engine.File)
	}
	eval := engine.Submodules[0]
	if eval.File != "src/engine/eval.rs" {
		t.Errorf("eval file = %q", eval.File)
	}
	util := crate.Root.Submodules[1]
	if util.Visibility != model.Private {
		t.Errorf("util visibility = %q", util.Visibility)
	}
}

func TestDeclDocFallback(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs":  "/// Utilities.\nmod util;\n",
		"src/util.rs": "pub fn helper() {}\n",
	})

	crate := resolveLib(t, root, Options{})
	if doc := crate.Root.Submodules[0].Doc; doc != "Utilities." {
		t.Errorf("doc = %q, want declaration doc", doc)
	}
}

func TestSiblingWinsOverSubdirRoot(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs":      "mod util;\n",
		"src/util.rs":     "pub fn from_sibling() {}\n",
		"src/util/mod.rs": "pub fn from_subdir() {}\n",
	})

	crate := resolveLib(t, root, Options{})
	util := crate.Root.Submodules[0]
	if util.File != "src/util.rs" {
		t.Errorf("file = %q, want src/util.rs", util.File)
	}
	if len(util.Items) != 1 || util.Items[0].Name != "from_sibling" {
		t.Errorf("items = %+v", util.Items)
	}
}

func TestPathOverride(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs":           "#[path = \"legacy/compat.rs\"]\nmod compat;\n",
		"src/legacy/compat.rs": "pub fn shim() {}\n",
	})

	crate := resolveLib(t, root, Options{})
	compat := crate.Root.Submodules[0]
	if compat.Path != "crate::compat" {
		t.Errorf("path = %q", compat.Path)
	}
	if compat.File != "src/legacy/compat.rs" {
		t.Errorf("file = %q", compat.File)
	}
}

func TestPathOverrideCycle(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs": "mod a;\n",
		"src/a.rs":   "#[path = \"b.rs\"]\nmod b;\n",
		"src/b.rs":   "#[path = \"a.rs\"]\nmod a2;\n",
	})

	_, err := Crate(context.Background(), metadata.Unit{
		Name:     "sample",
		Kind:     model.Lib,
		RootFile: filepath.Join(root, "src", "lib.rs"),
	}, root, Options{})
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if !rerr.Cycle {
		t.Error("error should be flagged as a cycle")
	}
	if rerr.Module != "crate::a::b::a2" {
		t.Errorf("module = %q", rerr.Module)
	}
	if rerr.DeclFile != "src/b.rs" {
		t.Errorf("decl file = %q", rerr.DeclFile)
	}
}

func TestMissingModule(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs": "mod missing;\n",
	})

	_, err := Crate(context.Background(), metadata.Unit{
		Name:     "sample",
		Kind:     model.Lib,
		RootFile: filepath.Join(root, "src", "lib.rs"),
	}, root, Options{})
	if err == nil {
		t.Fatal("expected resolution error")
	}
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %T", err)
	}
	if rerr.Module != "crate::missing" {
		t.Errorf("module = %q", rerr.Module)
	}
	if rerr.DeclFile != "src/lib.rs" || rerr.DeclLine != 1 {
		t.Errorf("decl site = %s:%d", rerr.DeclFile, rerr.DeclLine)
	}
	if len(rerr.Candidates) != 2 {
		t.Errorf("candidates = %v, want sibling and subdir root", rerr.Candidates)
	}
}

func TestTestModulesExcluded(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		// neither tests.rs nor tests/mod.rs exists; the declaration
		// must not even be probed
		"src/lib.rs": `#[cfg(test)]
mod tests;

#[cfg(test)]
mod inline_tests {
    fn check() {}
}

pub fn real() {}
`,
	})

	crate := resolveLib(t, root, Options{})
	if len(crate.Root.Submodules) != 0 {
		t.Errorf("submodules = %+v, want none", crate.Root.Submodules)
	}
	if len(crate.Root.Items) != 1 {
		t.Errorf("items = %+v", crate.Root.Items)
	}
}

func TestInlineModules(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs": `mod helpers {
    pub fn indent() {}

    mod nested;
}
`,
		"src/helpers/nested.rs": "pub fn deep() {}\n",
	})

	crate := resolveLib(t, root, Options{})
	helpers := crate.Root.Submodules[0]
	if !helpers.Inline {
		t.Fatal("helpers should be inline")
	}
	if helpers.File != "src/lib.rs" || helpers.FileHash != crate.Root.FileHash {
		t.Errorf("inline module should share the parent file: %q", helpers.File)
	}
	if len(helpers.Uses) != 0 {
		t.Errorf("inline uses = %v, want none", helpers.Uses)
	}
	nested := helpers.Submodules[0]
	if nested.Path != "crate::helpers::nested" {
		t.Errorf("nested path = %q", nested.Path)
	}
	if nested.File != "src/helpers/nested.rs" {
		t.Errorf("nested file = %q", nested.File)
	}
}

func TestSkipParseErrors(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"src/lib.rs":    "mod broken;\npub fn ok() {}\n",
		"src/broken.rs": "fn broken( {\n",
	}

	root := writeTree(t, files)
	unit := metadata.Unit{Name: "sample", Kind: model.Lib, RootFile: filepath.Join(root, "src", "lib.rs")}

	if _, err := Crate(context.Background(), unit, root, Options{}); err == nil {
		t.Fatal("expected parse error without skip flag")
	}

	crate, err := Crate(context.Background(), unit, root, Options{SkipParseErrors: true})
	if err != nil {
		t.Fatalf("Crate with skip: %v", err)
	}
	if len(crate.Root.Submodules) != 0 {
		t.Errorf("broken module should be dropped, got %+v", crate.Root.Submodules)
	}
	if len(crate.Root.Items) != 1 {
		t.Errorf("surviving items = %+v", crate.Root.Items)
	}
}

func TestForestLenientSkipsFailedUnit(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"good/src/lib.rs": "pub fn fine() {}\n",
		"bad/src/lib.rs":  "mod missing;\n",
	})
	units := []metadata.Unit{
		{Name: "good", Kind: model.Lib, RootFile: filepath.Join(root, "good", "src", "lib.rs")},
		{Name: "bad", Kind: model.Lib, RootFile: filepath.Join(root, "bad", "src", "lib.rs")},
	}

	crates, err := Forest(context.Background(), units, root, Options{})
	if err != nil {
		t.Fatalf("Forest: %v", err)
	}
	if len(crates) != 1 || crates[0].Name != "good" {
		t.Fatalf("crates = %+v, want only good", crates)
	}

	if _, err := Forest(context.Background(), units, root, Options{Strict: true}); err == nil {
		t.Fatal("strict mode should fail on the bad unit")
	}
}

func TestForestAllUnitsFailed(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/lib.rs": "mod missing;\n",
	})
	units := []metadata.Unit{
		{Name: "sample", Kind: model.Lib, RootFile: filepath.Join(root, "src", "lib.rs")},
	}

	if _, err := Forest(context.Background(), units, root, Options{}); err == nil {
		t.Fatal("expected error when no unit resolves")
	}
}

func modulePaths(root *model.Module) []string {
	var paths []string
	for _, m := range root.All() {
		paths = append(paths, m.Path)
	}
	return paths
}
