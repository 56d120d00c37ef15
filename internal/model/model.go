// Package model defines core data structures for cratemap.
package model

// CrateKind identifies the cargo target a crate unit was built from.
type CrateKind string

const (
	Lib       CrateKind = "lib"
	Bin       CrateKind = "bin"
	ProcMacro CrateKind = "proc-macro"
)

// Visibility is the declared visibility of an item or module.
type Visibility string

const (
	Pub      Visibility = "pub"
	PubCrate Visibility = "pub(crate)"
	PubSuper Visibility = "pub(super)"
	Private  Visibility = "private"
)

// ItemKind is the syntactic kind of an extracted item.
type ItemKind string

const (
	Function  ItemKind = "function"
	Struct    ItemKind = "struct"
	Enum      ItemKind = "enum"
	Trait     ItemKind = "trait"
	Impl      ItemKind = "impl"
	TypeAlias ItemKind = "type_alias"
	Const     ItemKind = "const"
	Static    ItemKind = "static"
	Macro     ItemKind = "macro"
	Use       ItemKind = "use"
)

// Item is a single top-level declaration with its rebuilt signature.
// Bodies are never retained; Signature is the declaration header only.
type Item struct {
	Name       string
	Kind       ItemKind
	Visibility Visibility
	Signature  string
	Doc        string
	File       string // project-relative source file
	LineStart  int    // 1-based, inclusive
	LineEnd    int    // 1-based, inclusive
	Hash       string // content hash of the full item source text
}

// Module is one node of a crate's module tree.
type Module struct {
	Path       string // "crate", "crate::engine::eval", ...
	Name       string
	File       string // project-relative source file; inline modules share the parent's
	FileHash   string
	Doc        string
	Visibility Visibility
	Inline     bool
	Items      []Item
	Uses       []string // flattened use paths declared in this module's file
	Submodules []Module
}

// Crate is a fully resolved crate unit.
type Crate struct {
	Name         string
	Kind         CrateKind
	Edition      string
	Version      string
	ExternalDeps []string
	Root         Module
}

// PathSegment returns the path segment this item contributes under its
// module, e.g. "truncate" or "impl Display for Value".
func (i Item) PathSegment() string {
	if i.Kind == Impl {
		return "impl " + i.Name
	}
	return i.Name
}

// ItemPath returns the fully qualified path of an item inside a module.
func ItemPath(modulePath string, it Item) string {
	return modulePath + "::" + it.PathSegment()
}

// All returns the module and every descendant in declaration order.
func (m *Module) All() []*Module {
	out := []*Module{m}
	for i := range m.Submodules {
		out = append(out, m.Submodules[i].All()...)
	}
	return out
}
