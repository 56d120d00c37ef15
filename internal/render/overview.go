// Package render produces the report documents generated from resolved
// crates, relationship data, and annotations.
package render

import (
	"fmt"
	"strings"

	"github.com/phobologic/cratemap/internal/annotate"
	"github.com/phobologic/cratemap/internal/model"
)

// Overview renders overview.md: per-crate header lines and the module
// tree with one-line descriptions.
func Overview(crates []model.Crate, notes *annotate.Store) string {
	var b strings.Builder
	for i := range crates {
		c := &crates[i]
		fmt.Fprintf(&b, "# Crate: %s (%s)\n", c.Name, c.Kind)
		fmt.Fprintf(&b, "Edition: %s\n", c.Edition)
		fmt.Fprintf(&b, "Version: %s\n", c.Version)
		if len(c.ExternalDeps) > 0 {
			fmt.Fprintf(&b, "External deps: %s\n", strings.Join(c.ExternalDeps, ", "))
		}
		b.WriteString("\n## Module Tree\n")
		writeModuleTree(&b, &c.Root, 0, notes)
		b.WriteString("\n")
	}
	return b.String()
}

func writeModuleTree(b *strings.Builder, m *model.Module, depth int, notes *annotate.Store) {
	b.WriteString(TreeEntry(m.Path, moduleDescription(m, notes), depth))
	b.WriteString("\n")
	for i := range m.Submodules {
		writeModuleTree(b, &m.Submodules[i], depth+1, notes)
	}
}

// moduleDescription prefers the first line of the module's own doc,
// falling back to its annotation note.
func moduleDescription(m *model.Module, notes *annotate.Store) string {
	if m.Doc != "" {
		first := strings.TrimSpace(strings.SplitN(m.Doc, "\n", 2)[0])
		if first != "" {
			return first
		}
	}
	if entry, ok := notes.Modules[m.Path]; ok && entry.Note != "" {
		return entry.Note
	}
	return ""
}
