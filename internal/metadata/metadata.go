// Package metadata discovers a project's compilation units from its
// Cargo.toml manifests.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/cratemap/internal/model"
)

// Unit is one compilation unit of the project: a library, binary, or
// proc-macro target declared by some package manifest.
type Unit struct {
	Name         string
	Kind         model.CrateKind
	Edition      string
	Version      string
	ExternalDeps []string
	RootFile     string // absolute path of the target's root source file
	ManifestDir  string // absolute directory holding the package manifest
}

// DiscoveryError reports a project with no usable manifest or targets.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discover %s: %v", e.Root, e.Err)
	}
	return fmt.Sprintf("discover %s: no Cargo.toml with buildable targets found", e.Root)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

type manifest struct {
	Package      *packageSection   `toml:"package"`
	Workspace    *workspaceSection `toml:"workspace"`
	Lib          *targetSection    `toml:"lib"`
	Bin          []targetSection   `toml:"bin"`
	Dependencies map[string]any    `toml:"dependencies"`
}

type packageSection struct {
	Name    string `toml:"name"`
	Edition any    `toml:"edition"` // string or { workspace = true }
	Version any    `toml:"version"`
}

type workspaceSection struct {
	Members []string      `toml:"members"`
	Package *inheritedPkg `toml:"package"`
}

type inheritedPkg struct {
	Edition string `toml:"edition"`
	Version string `toml:"version"`
}

type targetSection struct {
	Name      string `toml:"name"`
	Path      string `toml:"path"`
	ProcMacro bool   `toml:"proc-macro"`
}

// Discover finds every compilation unit under projectRoot. A root
// Cargo.toml governs: its workspace members, plus the root package when
// one is present, define the units. Without a root manifest the tree is
// scanned for nested manifests instead.
func Discover(projectRoot string) ([]Unit, error) {
	rootManifest := filepath.Join(projectRoot, "Cargo.toml")
	if _, err := os.Stat(rootManifest); err == nil {
		return discoverRoot(projectRoot, rootManifest)
	}
	return discoverScan(projectRoot)
}

func discoverRoot(projectRoot, manifestPath string) ([]Unit, error) {
	m, err := readManifest(manifestPath)
	if err != nil {
		return nil, &DiscoveryError{Root: projectRoot, Err: err}
	}

	var inherited inheritedPkg
	if m.Workspace != nil && m.Workspace.Package != nil {
		inherited = *m.Workspace.Package
	}

	units := packageUnits(m, projectRoot, inherited)
	if m.Workspace != nil {
		for _, dir := range expandMembers(projectRoot, m.Workspace.Members) {
			mm, err := readManifest(filepath.Join(dir, "Cargo.toml"))
			if errors.Is(err, os.ErrNotExist) {
				slog.Debug("workspace member without manifest", "dir", dir)
				continue
			}
			if err != nil {
				return nil, &DiscoveryError{Root: projectRoot, Err: err}
			}
			units = append(units, packageUnits(mm, dir, inherited)...)
		}
	}
	return finish(projectRoot, units)
}

func discoverScan(projectRoot string) ([]Unit, error) {
	manifests, err := findManifests(projectRoot)
	if err != nil {
		return nil, &DiscoveryError{Root: projectRoot, Err: err}
	}
	var units []Unit
	for _, path := range manifests {
		m, err := readManifest(path)
		if err != nil {
			return nil, &DiscoveryError{Root: projectRoot, Err: err}
		}
		units = append(units, packageUnits(m, filepath.Dir(path), inheritedPkg{})...)
	}
	return finish(projectRoot, units)
}

func finish(projectRoot string, units []Unit) ([]Unit, error) {
	if len(units) == 0 {
		return nil, &DiscoveryError{Root: projectRoot}
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].ManifestDir < units[j].ManifestDir
	})
	return units, nil
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

// packageUnits turns one package manifest into units, existence-checked:
// the library target first, then explicit [[bin]] targets, the default
// src/main.rs binary, and finally src/bin autodiscovery. A virtual
// manifest (workspace table without a package) yields nothing.
func packageUnits(m *manifest, dir string, inherited inheritedPkg) []Unit {
	if m.Package == nil {
		return nil
	}
	name := m.Package.Name
	edition := inheritable(m.Package.Edition, inherited.Edition)
	if edition == "" {
		edition = "2021"
	}
	version := inheritable(m.Package.Version, inherited.Version)
	deps := depNames(m.Dependencies)

	var units []Unit
	claimed := map[string]struct{}{}
	add := func(unitName string, kind model.CrateKind, rootFile string) {
		if _, dup := claimed[rootFile]; dup {
			return
		}
		if info, err := os.Stat(rootFile); err != nil || info.IsDir() {
			return
		}
		claimed[rootFile] = struct{}{}
		units = append(units, Unit{
			Name:         unitName,
			Kind:         kind,
			Edition:      edition,
			Version:      version,
			ExternalDeps: deps,
			RootFile:     rootFile,
			ManifestDir:  dir,
		})
	}

	libPath := filepath.Join("src", "lib.rs")
	libName := strings.ReplaceAll(name, "-", "_")
	libKind := model.Lib
	if m.Lib != nil {
		if m.Lib.Path != "" {
			libPath = filepath.FromSlash(m.Lib.Path)
		}
		if m.Lib.Name != "" {
			libName = m.Lib.Name
		}
		if m.Lib.ProcMacro {
			libKind = model.ProcMacro
		}
	}
	add(libName, libKind, filepath.Join(dir, libPath))

	for _, b := range m.Bin {
		binName := b.Name
		if binName == "" {
			binName = name
		}
		binPath := filepath.FromSlash(b.Path)
		if b.Path == "" {
			binPath = filepath.Join("src", "bin", binName+".rs")
			if _, err := os.Stat(filepath.Join(dir, binPath)); err != nil {
				binPath = filepath.Join("src", "main.rs")
			}
		}
		add(binName, model.Bin, filepath.Join(dir, binPath))
	}

	add(name, model.Bin, filepath.Join(dir, "src", "main.rs"))

	extras, _ := filepath.Glob(filepath.Join(dir, "src", "bin", "*.rs"))
	sort.Strings(extras)
	for _, f := range extras {
		add(strings.TrimSuffix(filepath.Base(f), ".rs"), model.Bin, f)
	}
	return units
}

// inheritable resolves a manifest field that is either a literal string
// or { workspace = true } pointing at the root [workspace.package] table.
func inheritable(v any, workspace string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if b, ok := val["workspace"].(bool); ok && b {
			return workspace
		}
	}
	return ""
}

func depNames(deps map[string]any) []string {
	if len(deps) == 0 {
		return nil
	}
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// expandMembers resolves workspace member entries, including glob
// patterns like "crates/*", to existing directories in sorted order.
func expandMembers(root string, patterns []string) []string {
	var dirs []string
	for _, pat := range patterns {
		if !strings.ContainsAny(pat, "*?[") {
			dirs = append(dirs, filepath.Join(root, filepath.FromSlash(pat)))
			continue
		}
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pat)))
		if err != nil {
			continue
		}
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && info.IsDir() {
				dirs = append(dirs, match)
			}
		}
	}
	sort.Strings(dirs)
	return dirs
}

var skipDirs = map[string]struct{}{
	"target":       {},
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
}

// findManifests walks the tree for nested Cargo.toml files, preferring
// git's view of tracked files and falling back to .gitignore rules.
func findManifests(root string) ([]string, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if name != "Cargo.toml" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		results = append(results, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(results)
	return results, nil
}

func gitLsFiles(root string) map[string]struct{} {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
