package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/cratemap/internal/graph"
)

// Relationships renders relationships.md: trait implementations,
// conversion chains, module dependencies, and type hotspots at the
// given threshold.
func Relationships(rel *graph.Relationships, threshold int) string {
	var b strings.Builder

	b.WriteString("## Trait Implementations\n\n")
	if len(rel.TraitImpls) == 0 {
		b.WriteString("(none found)\n\n")
	} else {
		width := maxKeyLen(rel.TraitImpls)
		for _, trait := range sortedMapKeys(rel.TraitImpls) {
			fmt.Fprintf(&b, "%-*s <- %s\n", width, trait, strings.Join(rel.TraitImpls[trait], ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Error Chains\n\n")
	if len(rel.Chains) == 0 {
		b.WriteString("(no From impls found)\n\n")
	} else {
		for _, chain := range rel.Chains {
			b.WriteString(chain)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Module Dependencies\n\n")
	if len(rel.ModuleDeps) == 0 {
		b.WriteString("(none found)\n\n")
	} else {
		width := maxKeyLen(rel.ModuleDeps)
		for _, mod := range sortedMapKeys(rel.ModuleDeps) {
			deps := rel.ModuleDeps[mod]
			if len(deps) == 0 {
				fmt.Fprintf(&b, "%-*s -> (no internal deps)\n", width, mod)
				continue
			}
			fmt.Fprintf(&b, "%-*s -> %s\n", width, mod, strings.Join(deps, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Key Types (referenced from %d+ modules)\n\n", threshold)
	hotspots := rel.Hotspots(threshold)
	if len(hotspots) == 0 {
		fmt.Fprintf(&b, "(no types referenced from %d+ modules)\n\n", threshold)
	} else {
		width := 0
		for _, h := range hotspots {
			if len(h.Name) > width {
				width = len(h.Name)
			}
		}
		for _, h := range hotspots {
			fmt.Fprintf(&b, "%-*s — used in %d modules\n", width, h.Name, len(h.Modules))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func sortedMapKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maxKeyLen(m map[string][]string) int {
	width := 0
	for k := range m {
		if len(k) > width {
			width = len(k)
		}
	}
	return width
}
