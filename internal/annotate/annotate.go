// Package annotate maintains the persistent description store for
// modules and items. Notes survive re-indexing; staleness is computed
// from hash drift.
package annotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/phobologic/cratemap/internal/cache"
	"github.com/phobologic/cratemap/internal/model"
)

const fileName = "annotations.toml"

// Entry is one annotated path.
type Entry struct {
	Note    string `toml:"note"`
	Stale   bool   `toml:"stale,omitempty"`   // note predates the last content change
	Removed bool   `toml:"removed,omitempty"` // path no longer exists in the source
}

// Store holds annotations keyed by module and item path.
type Store struct {
	Modules map[string]Entry `toml:"modules"`
	Items   map[string]Entry `toml:"items"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Modules: map[string]Entry{},
		Items:   map[string]Entry{},
	}
}

// Load reads annotations from dir. A missing file satisfies
// errors.Is(err, os.ErrNotExist) so callers can decide how to treat it.
func Load(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	s := NewStore()
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	if s.Modules == nil {
		s.Modules = map[string]Entry{}
	}
	if s.Items == nil {
		s.Items = map[string]Entry{}
	}
	return s, nil
}

// Save writes the store under dir.
func (s *Store) Save(dir string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode annotations: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0o644); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	return nil
}

// Update merges the previous store with a freshly resolved forest. Every
// current path gets an entry; present paths keep their notes and pick up
// staleness when their hash drifted; vanished paths stay in the store
// flagged removed; reappearing paths drop the removed flag.
func Update(prev *Store, crates []model.Crate, oldCache, newCache *cache.Cache) *Store {
	next := NewStore()

	for i := range crates {
		for _, m := range crates[i].Root.All() {
			e := prev.Modules[m.Path]
			e.Removed = false
			if e.Note != "" && oldCache.ModuleChanged(newCache, m.Path) {
				e.Stale = true
			}
			next.Modules[m.Path] = e

			for _, it := range m.Items {
				path := model.ItemPath(m.Path, it)
				e := prev.Items[path]
				e.Removed = false
				if e.Note != "" && oldCache.ItemChanged(newCache, path) {
					e.Stale = true
				}
				next.Items[path] = e
			}
		}
	}

	for path, e := range prev.Modules {
		if _, ok := next.Modules[path]; !ok {
			e.Removed = true
			next.Modules[path] = e
		}
	}
	for path, e := range prev.Items {
		if _, ok := next.Items[path]; !ok {
			e.Removed = true
			next.Items[path] = e
		}
	}
	return next
}

// NeedingNotes lists the live paths whose note is missing or stale,
// sorted for stable output.
func (s *Store) NeedingNotes() (modules, items []string) {
	for path, e := range s.Modules {
		if !e.Removed && (e.Note == "" || e.Stale) {
			modules = append(modules, path)
		}
	}
	for path, e := range s.Items {
		if !e.Removed && (e.Note == "" || e.Stale) {
			items = append(items, path)
		}
	}
	sort.Strings(modules)
	sort.Strings(items)
	return modules, items
}

// ExportTemplate renders a fill-in TOML skeleton for every path that
// needs a description. Stale entries keep their old note for editing.
func ExportTemplate(s *Store) ([]byte, error) {
	type templateEntry struct {
		Note string `toml:"note"`
	}
	modules, items := s.NeedingNotes()
	out := struct {
		Modules map[string]templateEntry `toml:"modules,omitempty"`
		Items   map[string]templateEntry `toml:"items,omitempty"`
	}{}
	if len(modules) > 0 {
		out.Modules = make(map[string]templateEntry, len(modules))
		for _, path := range modules {
			out.Modules[path] = templateEntry{Note: s.Modules[path].Note}
		}
	}
	if len(items) > 0 {
		out.Items = make(map[string]templateEntry, len(items))
		for _, path := range items {
			out.Items[path] = templateEntry{Note: s.Items[path].Note}
		}
	}

	header := fmt.Sprintf("# %d modules and %d items need descriptions.\n# Fill in notes and run: cratemap annotate import <file>\n\n",
		len(modules), len(items))
	body, err := toml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return append([]byte(header), body...), nil
}

// Import applies filled-in notes from a template. Empty notes are
// skipped; a fresh note clears the stale flag. Extra keys inside entries
// are ignored. Returns the number of notes applied.
func (s *Store) Import(data []byte) (int, error) {
	type templateEntry struct {
		Note string `toml:"note"`
	}
	var in struct {
		Modules map[string]templateEntry `toml:"modules"`
		Items   map[string]templateEntry `toml:"items"`
	}
	if err := toml.Unmarshal(data, &in); err != nil {
		return 0, fmt.Errorf("decode template: %w", err)
	}

	applied := 0
	for path, t := range in.Modules {
		if t.Note == "" {
			continue
		}
		e := s.Modules[path]
		e.Note = t.Note
		e.Stale = false
		s.Modules[path] = e
		applied++
	}
	for path, t := range in.Items {
		if t.Note == "" {
			continue
		}
		e := s.Items[path]
		e.Note = t.Note
		e.Stale = false
		s.Items[path] = e
		applied++
	}
	return applied, nil
}

// Counts summarizes a store for progress output.
type Counts struct {
	Modules int
	Items   int
	Missing int // live paths without a note
	Stale   int
	Removed int
}

func (s *Store) Counts() Counts {
	var c Counts
	c.Modules = len(s.Modules)
	c.Items = len(s.Items)
	tally := func(e Entry) {
		switch {
		case e.Removed:
			c.Removed++
		case e.Stale:
			c.Stale++
		case e.Note == "":
			c.Missing++
		}
	}
	for _, e := range s.Modules {
		tally(e)
	}
	for _, e := range s.Items {
		tally(e)
	}
	return c
}
