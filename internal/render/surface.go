package render

import (
	"fmt"
	"strings"

	"github.com/phobologic/cratemap/internal/annotate"
	"github.com/phobologic/cratemap/internal/model"
)

// Surface renders api-surface.md: every item's stripped signature,
// public and private alike, grouped by module and kind.
func Surface(crates []model.Crate, notes *annotate.Store) string {
	var b strings.Builder
	for i := range crates {
		fmt.Fprintf(&b, "# Crate: %s (%s)\n\n", crates[i].Name, crates[i].Kind)
		writeModuleSurface(&b, &crates[i].Root, notes)
	}
	return b.String()
}

func writeModuleSurface(b *strings.Builder, m *model.Module, notes *annotate.Store) {
	fmt.Fprintf(b, "# %s\n", m.Path)
	fmt.Fprintf(b, "<!-- file: %s -->\n\n", m.File)

	writeGroup(b, m, notes, "Types", model.Struct, model.Enum, model.TypeAlias)
	writeGroup(b, m, notes, "Traits", model.Trait)
	writeGroup(b, m, notes, "Functions", model.Function)
	for _, it := range m.Items {
		if it.Kind != model.Impl {
			continue
		}
		fmt.Fprintf(b, "## Impl %s\n\n", it.Name)
		writeItem(b, m.Path, it, notes)
		b.WriteString("\n")
	}
	writeGroup(b, m, notes, "Constants", model.Const, model.Static)
	writeGroup(b, m, notes, "Macros", model.Macro)
	writeGroup(b, m, notes, "Re-exports", model.Use)

	b.WriteString("---\n\n")

	for i := range m.Submodules {
		writeModuleSurface(b, &m.Submodules[i], notes)
	}
}

func writeGroup(b *strings.Builder, m *model.Module, notes *annotate.Store, heading string, kinds ...model.ItemKind) {
	var group []model.Item
	for _, it := range m.Items {
		for _, k := range kinds {
			if it.Kind == k {
				group = append(group, it)
				break
			}
		}
	}
	if len(group) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, it := range group {
		writeItem(b, m.Path, it, notes)
	}
	b.WriteString("\n")
}

// writeItem emits the item's doc lines, its annotation note when one
// exists, and the signature.
func writeItem(b *strings.Builder, modulePath string, it model.Item, notes *annotate.Store) {
	if it.Doc != "" {
		for _, line := range strings.Split(it.Doc, "\n") {
			fmt.Fprintf(b, "/// %s\n", line)
		}
	}
	if entry, ok := notes.Items[model.ItemPath(modulePath, it)]; ok && entry.Note != "" {
		fmt.Fprintf(b, "// NOTE: %s\n", entry.Note)
	}
	b.WriteString(it.Signature)
	b.WriteString("\n\n")
}
