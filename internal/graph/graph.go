// Package graph derives cross-module relationships from resolved crates:
// trait implementor maps, From conversion edges and chains, module
// dependency edges, and type usage for hotspot detection.
package graph

import (
	"regexp"
	"sort"
	"strings"

	"github.com/phobologic/cratemap/internal/model"
)

// ConversionEdge records a single From<Source> implementation on Target.
type ConversionEdge struct {
	Source string
	Target string
}

// Hotspot is a type referenced from several modules.
type Hotspot struct {
	Name    string
	Modules []string
}

// Relationships is the cross-module view over one or more crates.
// Map values and edge slices are sorted so output is deterministic.
type Relationships struct {
	// TraitImpls maps a trait name (generic arguments stripped) to the
	// types implementing it.
	TraitImpls map[string][]string
	// Conversions holds deduplicated From edges sorted by source then target.
	Conversions []ConversionEdge
	// Chains are rendered conversion walks, e.g. "IoError -> ConfigError -> AppError".
	Chains []string
	// ModuleDeps maps each module to the internal modules its use
	// declarations reach. Every module has a key, even with no deps.
	ModuleDeps map[string][]string
	// TypeUsage maps a type name to the modules whose signatures mention it.
	TypeUsage map[string][]string
}

// Build walks every module of every crate and assembles the relationship view.
func Build(crates []model.Crate) *Relationships {
	r := &Relationships{
		TraitImpls: map[string][]string{},
		ModuleDeps: map[string][]string{},
		TypeUsage:  map[string][]string{},
	}

	type modCtx struct {
		short string
		mod   *model.Module
	}
	var mods []modCtx
	known := map[string]struct{}{}
	for i := range crates {
		for _, m := range crates[i].Root.All() {
			short := moduleDisplay(m.Path)
			known[short] = struct{}{}
			mods = append(mods, modCtx{short: short, mod: m})
		}
	}

	type convKey struct {
		src, tgt string
	}
	convs := map[convKey]struct{}{}
	traitImpls := map[string]map[string]struct{}{}
	moduleDeps := map[string]map[string]struct{}{}
	typeModules := map[string]map[string]struct{}{}

	for _, mc := range mods {
		if _, ok := moduleDeps[mc.short]; !ok {
			moduleDeps[mc.short] = map[string]struct{}{}
		}

		for _, usePath := range mc.mod.Uses {
			dep, ok := internalModuleDep(usePath, mc.mod.Path, known)
			if !ok || dep == mc.short {
				continue
			}
			moduleDeps[mc.short][dep] = struct{}{}
		}

		for _, it := range mc.mod.Items {
			if it.Kind == model.Impl {
				if trait, selfType, ok := splitImplName(it.Name); ok {
					base := baseTrait(trait)
					if traitImpls[base] == nil {
						traitImpls[base] = map[string]struct{}{}
					}
					traitImpls[base][cleanTypeName(selfType)] = struct{}{}
					if src, ok := fromSource(trait); ok {
						convs[convKey{src: cleanTypeName(src), tgt: cleanTypeName(selfType)}] = struct{}{}
					}
				}
			}
			for _, name := range typeNames(it.Signature) {
				if typeModules[name] == nil {
					typeModules[name] = map[string]struct{}{}
				}
				typeModules[name][mc.short] = struct{}{}
			}
		}
	}

	for trait, types := range traitImpls {
		r.TraitImpls[trait] = sortedKeys(types)
	}
	for mod, deps := range moduleDeps {
		r.ModuleDeps[mod] = sortedKeys(deps)
	}
	for name, usedBy := range typeModules {
		r.TypeUsage[name] = sortedKeys(usedBy)
	}

	for k := range convs {
		r.Conversions = append(r.Conversions, ConversionEdge{Source: k.src, Target: k.tgt})
	}
	sort.Slice(r.Conversions, func(i, j int) bool {
		if r.Conversions[i].Source != r.Conversions[j].Source {
			return r.Conversions[i].Source < r.Conversions[j].Source
		}
		return r.Conversions[i].Target < r.Conversions[j].Target
	})

	r.Chains = buildChains(r.Conversions)
	return r
}

// Hotspots returns types referenced from at least threshold modules,
// most-referenced first.
func (r *Relationships) Hotspots(threshold int) []Hotspot {
	var hs []Hotspot
	for name, usedBy := range r.TypeUsage {
		if len(usedBy) >= threshold {
			hs = append(hs, Hotspot{Name: name, Modules: usedBy})
		}
	}
	sort.Slice(hs, func(i, j int) bool {
		if len(hs[i].Modules) != len(hs[j].Modules) {
			return len(hs[i].Modules) > len(hs[j].Modules)
		}
		return hs[i].Name < hs[j].Name
	})
	return hs
}

// buildChains walks the conversion graph depth-first from every node with
// an outgoing edge. Each walk keeps its own visited set, so cycles
// terminate and diamond shapes do not repeat nodes within one chain.
func buildChains(edges []ConversionEdge) []string {
	adj := map[string][]string{}
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	for src := range adj {
		sort.Strings(adj[src])
	}

	var chains []string
	starts := make([]string, 0, len(adj))
	for src := range adj {
		starts = append(starts, src)
	}
	sort.Strings(starts)
	for _, start := range starts {
		visited := map[string]bool{start: true}
		followChain(adj, start, []string{start}, visited, &chains)
	}
	return chains
}

func followChain(adj map[string][]string, current string, chain []string, visited map[string]bool, out *[]string) {
	extended := false
	for _, next := range adj[current] {
		if visited[next] {
			continue
		}
		visited[next] = true
		branch := make([]string, len(chain), len(chain)+1)
		copy(branch, chain)
		followChain(adj, next, append(branch, next), visited, out)
		extended = true
	}
	if !extended && len(chain) > 1 {
		*out = append(*out, strings.Join(chain, " -> "))
	}
}

// internalModuleDep resolves a use path against the using module and
// returns the module it targets. Only paths that land on a known module
// of the tree produce an edge; external crates never do.
func internalModuleDep(usePath, modulePath string, known map[string]struct{}) (string, bool) {
	segs := strings.Split(usePath, "::")
	current := strings.Split(modulePath, "::")[1:]

	var abs []string
	switch segs[0] {
	case "crate":
		abs = segs[1:]
	case "self":
		abs = append(append([]string{}, current...), segs[1:]...)
	case "super":
		up := 0
		rest := segs
		for len(rest) > 0 && rest[0] == "super" {
			up++
			rest = rest[1:]
		}
		if up > len(current) {
			return "", false
		}
		abs = append(append([]string{}, current[:len(current)-up]...), rest...)
	default:
		return "", false
	}

	// The path may name a module directly or an item inside one. Prefer
	// the full path if it is a known module, otherwise drop the leaf.
	if full := strings.Join(abs, "::"); full != "" {
		if _, ok := known[full]; ok {
			return full, true
		}
	}
	if len(abs) < 2 {
		return "", false
	}
	parent := strings.Join(abs[:len(abs)-1], "::")
	if _, ok := known[parent]; ok {
		return parent, true
	}
	return "", false
}

// splitImplName separates "Trait for Type" impl names. Inherent impls
// carry just the type name and report ok=false.
func splitImplName(name string) (trait, selfType string, ok bool) {
	idx := strings.Index(name, " for ")
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+len(" for "):], true
}

// baseTrait strips generic arguments so From<A> and From<B> group together.
func baseTrait(trait string) string {
	if idx := strings.Index(trait, "<"); idx >= 0 {
		return strings.TrimSpace(trait[:idx])
	}
	return trait
}

// fromSource extracts T from a From<T> trait reference.
func fromSource(trait string) (string, bool) {
	if !strings.HasPrefix(trait, "From<") && !strings.HasPrefix(trait, "From <") {
		return "", false
	}
	lt := strings.Index(trait, "<")
	gt := strings.LastIndex(trait, ">")
	if lt < 0 || gt <= lt {
		return "", false
	}
	return strings.TrimSpace(trait[lt+1 : gt]), true
}

var (
	tokenRe      = regexp.MustCompile(`[A-Za-z0-9_]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// commonNames are prelude and std types too ubiquitous to be hotspots.
var commonNames = map[string]struct{}{
	"Self": {}, "String": {}, "Vec": {}, "Box": {}, "Option": {},
	"Result": {}, "Ok": {}, "Err": {}, "Some": {}, "None": {},
	"HashMap": {}, "HashSet": {}, "BTreeMap": {}, "BTreeSet": {},
	"Rc": {}, "Arc": {}, "Mutex": {}, "RwLock": {}, "Pin": {},
	"Cow": {}, "PhantomData": {}, "Where": {}, "Fn": {}, "FnMut": {},
	"FnOnce": {},
}

// typeNames pulls capitalized identifiers out of a signature, skipping
// single letters (usually generic parameters) and common std names.
func typeNames(signature string) []string {
	var names []string
	for _, tok := range tokenRe.FindAllString(signature, -1) {
		if len(tok) < 2 || tok[0] < 'A' || tok[0] > 'Z' {
			continue
		}
		if _, common := commonNames[tok]; common {
			continue
		}
		names = append(names, tok)
	}
	return names
}

func cleanTypeName(name string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(name, " "))
}

// moduleDisplay strips the crate root prefix for rendering; the root
// module itself stays "crate".
func moduleDisplay(path string) string {
	return strings.TrimPrefix(path, "crate::")
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
