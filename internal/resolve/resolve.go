// Package resolve builds crate module trees by following mod declarations
// from each crate root file.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/cratemap/internal/metadata"
	"github.com/phobologic/cratemap/internal/model"
	"github.com/phobologic/cratemap/internal/parse"
)

// Options controls crate resolution.
type Options struct {
	Workers         int  // parallel file parses; <= 0 means NumCPU
	SkipParseErrors bool // log files with syntax errors and drop their modules
	Strict          bool // fail the whole run on the first unresolvable unit
}

// ResolutionError reports a module declaration that could not be resolved
// to a file.
type ResolutionError struct {
	Module     string   // declared module path, e.g. "crate::engine::eval"
	DeclFile   string   // file containing the declaration
	DeclLine   int      // 1-based
	Candidates []string // paths probed, in order
	Cycle      bool     // declaration resolves back into its own chain
}

func (e *ResolutionError) Error() string {
	if e.Cycle {
		return fmt.Sprintf("module %s declared at %s:%d: resolution cycle through %s",
			e.Module, e.DeclFile, e.DeclLine, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("module %s declared at %s:%d: no file found (tried %s)",
		e.Module, e.DeclFile, e.DeclLine, strings.Join(e.Candidates, ", "))
}

// Forest resolves every unit into a crate, units in parallel. Failed
// units are logged and skipped unless opts.Strict is set. An error is
// returned if nothing resolved at all.
func Forest(ctx context.Context, units []metadata.Unit, projectRoot string, opts Options) ([]model.Crate, error) {
	type unitResult struct {
		crate model.Crate
		err   error
	}
	results := make([]unitResult, len(units))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(opts))
	for i, u := range units {
		g.Go(func() error {
			crate, err := Crate(ctx, u, projectRoot, opts)
			results[i] = unitResult{crate: crate, err: err}
			if err != nil && opts.Strict {
				return fmt.Errorf("crate %s: %w", u.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var crates []model.Crate
	var firstErr error
	for i, u := range units {
		r := results[i]
		if r.err != nil {
			slog.Warn("skipping unresolvable crate", "crate", u.Name, "error", r.err)
			if firstErr == nil {
				firstErr = fmt.Errorf("crate %s: %w", u.Name, r.err)
			}
			continue
		}
		crates = append(crates, r.crate)
	}
	if len(crates) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return crates, nil
}

// Crate resolves a single unit's module tree from its root file.
func Crate(ctx context.Context, unit metadata.Unit, projectRoot string, opts Options) (model.Crate, error) {
	r := &resolver{
		ctx:         ctx,
		projectRoot: projectRoot,
		opts:        opts,
		onPath:      map[string]bool{},
	}

	src, err := os.ReadFile(unit.RootFile)
	if err != nil {
		return model.Crate{}, &parse.ParseError{File: r.rel(unit.RootFile), Err: err}
	}
	pf, err := parse.ParseFile(ctx, r.rel(unit.RootFile), src)
	if err != nil {
		return model.Crate{}, err
	}

	root := model.Module{
		Path:       "crate",
		Name:       unit.Name,
		File:       pf.Path,
		FileHash:   pf.Hash,
		Doc:        pf.InnerDoc,
		Visibility: model.Pub,
		Items:      pf.Items,
		Uses:       pf.Uses,
	}
	dir := filepath.Dir(unit.RootFile)
	r.onPath[unit.RootFile] = true
	if err := r.children(&root, pf.Mods, dir, dir); err != nil {
		return model.Crate{}, err
	}

	return model.Crate{
		Name:         unit.Name,
		Kind:         unit.Kind,
		Edition:      unit.Edition,
		Version:      unit.Version,
		ExternalDeps: unit.ExternalDeps,
		Root:         root,
	}, nil
}

type resolver struct {
	ctx         context.Context
	projectRoot string
	opts        Options
	onPath      map[string]bool // absolute file paths on the current chain
}

type childTask struct {
	decl parse.ModDecl
	abs  string
}

// children resolves the declarations of one module. subDir is where child
// module files live; fileDir is the directory of the declaring file, used
// for #[path] overrides. External files of one level parse in parallel;
// assembly stays in declaration order.
func (r *resolver) children(parent *model.Module, decls []parse.ModDecl, subDir, fileDir string) error {
	taskIdx := make(map[int]int)
	var tasks []childTask
	for di, decl := range decls {
		if decl.Test || decl.Inline {
			continue
		}
		abs, err := r.locate(parent, decl, subDir, fileDir)
		if err != nil {
			return err
		}
		taskIdx[di] = len(tasks)
		tasks = append(tasks, childTask{decl: decl, abs: abs})
	}

	files := make([]*parse.File, len(tasks))
	parseErrs := make([]error, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(workerCount(r.opts))
	for i, task := range tasks {
		g.Go(func() error {
			src, err := os.ReadFile(task.abs)
			if err != nil {
				parseErrs[i] = &parse.ParseError{File: r.rel(task.abs), Err: err}
				return nil
			}
			pf, err := parse.ParseFile(r.ctx, r.rel(task.abs), src)
			if err != nil {
				parseErrs[i] = err
				return nil
			}
			files[i] = pf
			return nil
		})
	}
	_ = g.Wait()

	for di, decl := range decls {
		if decl.Test {
			continue
		}
		path := parent.Path + "::" + decl.Name

		if decl.Inline {
			child := model.Module{
				Path:       path,
				Name:       decl.Name,
				File:       parent.File,
				FileHash:   parent.FileHash,
				Doc:        decl.Doc,
				Visibility: decl.Vis,
				Inline:     true,
				Items:      decl.Items,
			}
			if err := r.children(&child, decl.Mods, filepath.Join(subDir, decl.Name), fileDir); err != nil {
				return err
			}
			parent.Submodules = append(parent.Submodules, child)
			continue
		}

		ti := taskIdx[di]
		if err := parseErrs[ti]; err != nil {
			var perr *parse.ParseError
			if r.opts.SkipParseErrors && errors.As(err, &perr) {
				slog.Warn("skipping module with parse errors", "module", path, "error", err)
				continue
			}
			return err
		}

		abs := tasks[ti].abs
		if r.onPath[abs] {
			return &ResolutionError{
				Module:     path,
				DeclFile:   parent.File,
				DeclLine:   decl.Line,
				Candidates: []string{r.rel(abs)},
				Cycle:      true,
			}
		}

		pf := files[ti]
		doc := pf.InnerDoc
		if doc == "" {
			doc = decl.Doc
		}
		child := model.Module{
			Path:       path,
			Name:       decl.Name,
			File:       pf.Path,
			FileHash:   pf.Hash,
			Doc:        doc,
			Visibility: decl.Vis,
			Items:      pf.Items,
			Uses:       pf.Uses,
		}
		r.onPath[abs] = true
		err := r.children(&child, pf.Mods, childSubDir(abs), filepath.Dir(abs))
		delete(r.onPath, abs)
		if err != nil {
			return err
		}
		parent.Submodules = append(parent.Submodules, child)
	}
	return nil
}

// locate probes the candidate files for an external module declaration:
// the sibling file, the subdirectory root, then a #[path] override. The
// first existing candidate wins.
func (r *resolver) locate(parent *model.Module, decl parse.ModDecl, subDir, fileDir string) (string, error) {
	candidates := []string{
		filepath.Join(subDir, decl.Name+".rs"),
		filepath.Join(subDir, decl.Name, "mod.rs"),
	}
	if decl.PathAttr != "" {
		candidates = append(candidates, filepath.Join(fileDir, filepath.FromSlash(decl.PathAttr)))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	rels := make([]string, len(candidates))
	for i, c := range candidates {
		rels[i] = r.rel(c)
	}
	return "", &ResolutionError{
		Module:     parent.Path + "::" + decl.Name,
		DeclFile:   parent.File,
		DeclLine:   decl.Line,
		Candidates: rels,
	}
}

func (r *resolver) rel(abs string) string {
	rel, err := filepath.Rel(r.projectRoot, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// childSubDir is where a module file's own children live: next to a
// mod.rs, or under a directory named after the file otherwise.
func childSubDir(abs string) string {
	if filepath.Base(abs) == "mod.rs" {
		return filepath.Dir(abs)
	}
	return strings.TrimSuffix(abs, ".rs")
}

func workerCount(opts Options) int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	return runtime.NumCPU()
}
