// Package cache persists content hashes between runs so annotation
// staleness can be computed from hash drift.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/phobologic/cratemap/internal/model"
)

const fileName = "cache.json"

// FileEntry records one source file's hash and when it was indexed.
type FileEntry struct {
	Hash        string    `json:"hash"`
	LastIndexed time.Time `json:"last_indexed"`
}

// Cache maps project-relative file paths, module paths, and item paths
// to content hashes.
type Cache struct {
	Files   map[string]FileEntry `json:"files"`
	Modules map[string]string    `json:"modules"`
	Items   map[string]string    `json:"items"`
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		Files:   map[string]FileEntry{},
		Modules: map[string]string{},
		Items:   map[string]string{},
	}
}

// FromCrates builds the cache state for a resolved forest. File entries
// are first-write-wins: inline modules share their parent's file.
func FromCrates(crates []model.Crate, now time.Time) *Cache {
	c := New()
	for i := range crates {
		for _, m := range crates[i].Root.All() {
			if _, ok := c.Files[m.File]; !ok {
				c.Files[m.File] = FileEntry{Hash: m.FileHash, LastIndexed: now}
			}
			c.Modules[m.Path] = ModuleHash(m)
			for _, it := range m.Items {
				c.Items[model.ItemPath(m.Path, it)] = it.Hash
			}
		}
	}
	return c
}

// ModuleHash aggregates a module's file hash with its own item hashes,
// item paths sorted for stability. Submodule edits do not bleed into
// the parent's hash.
func ModuleHash(m *model.Module) string {
	type entry struct{ path, hash string }
	entries := make([]entry, 0, len(m.Items))
	for _, it := range m.Items {
		entries = append(entries, entry{model.ItemPath(m.Path, it), it.Hash})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	h := xxh3.New()
	h.WriteString(m.FileHash)
	for _, e := range entries {
		h.WriteString("\x00")
		h.WriteString(e.path)
		h.WriteString("\x00")
		h.WriteString(e.hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ModuleChanged reports whether a module hash differs between two cache
// states. Absence on either side counts as changed; absence on both does
// not.
func (c *Cache) ModuleChanged(next *Cache, path string) bool {
	oldHash, oldOK := c.Modules[path]
	newHash, newOK := next.Modules[path]
	return hashChanged(oldHash, oldOK, newHash, newOK)
}

// ItemChanged is ModuleChanged for item paths.
func (c *Cache) ItemChanged(next *Cache, path string) bool {
	oldHash, oldOK := c.Items[path]
	newHash, newOK := next.Items[path]
	return hashChanged(oldHash, oldOK, newHash, newOK)
}

func hashChanged(oldHash string, oldOK bool, newHash string, newOK bool) bool {
	switch {
	case oldOK && newOK:
		return oldHash != newHash
	case oldOK || newOK:
		return true
	default:
		return false
	}
}

// FileUnchanged reports whether path is recorded with the same hash.
func (c *Cache) FileUnchanged(path, hash string) bool {
	e, ok := c.Files[path]
	return ok && e.Hash == hash
}

// Load reads the cache from dir. A missing cache file yields an empty
// cache; a corrupt one is an error so the caller can decide to discard.
func Load(dir string) (*Cache, error) {
	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	c := New()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	if c.Files == nil {
		c.Files = map[string]FileEntry{}
	}
	if c.Modules == nil {
		c.Modules = map[string]string{}
	}
	if c.Items == nil {
		c.Items = map[string]string{}
	}
	return c, nil
}

// Save writes the cache pretty-printed under dir.
func (c *Cache) Save(dir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
