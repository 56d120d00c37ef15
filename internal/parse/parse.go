// Package parse extracts module structure and item signatures from Rust
// source files using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/phobologic/cratemap/internal/model"
)

// ParseError reports a source file the grammar could not fully parse.
// A file with any syntax error is rejected whole rather than partially
// extracted.
type ParseError struct {
	File string
	Err  error // underlying read or parser error; nil for plain syntax errors
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("parse %s: source contains syntax errors", e.File)
}

func (e *ParseError) Unwrap() error { return e.Err }

// File is the extraction result for a single source file.
type File struct {
	Path     string // as passed to ParseFile; callers use project-relative paths
	Hash     string
	InnerDoc string // leading //! doc comments
	Items    []model.Item
	Mods     []ModDecl
	Uses     []string // flattened use paths, including non-test inline submodules
}

// ModDecl is a `mod name;` or `mod name { ... }` declaration.
type ModDecl struct {
	Name     string
	Line     int // 1-based declaration line
	Doc      string
	Vis      model.Visibility
	Inline   bool
	PathAttr string // #[path = "..."] override, empty if absent
	Test     bool   // carries #[cfg(test)]
	Items    []model.Item // inline modules only
	Mods     []ModDecl    // inline modules only
}

// ParseFile parses src and extracts items, module declarations, and use
// paths. path is used for labels and item locations only; it should be
// the project-relative path.
func ParseFile(ctx context.Context, path string, src []byte) (*File, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{File: path}
	}

	f := &File{
		Path:     path,
		Hash:     HashBytes(src),
		InnerDoc: innerDoc(root, src),
	}
	f.Items, f.Mods, f.Uses = extractBody(root, path, src)
	return f, nil
}

// extractBody walks the direct children of a source_file or an inline
// module body and collects items, module declarations, and use paths.
func extractBody(container *sitter.Node, filePath string, src []byte) ([]model.Item, []ModDecl, []string) {
	var items []model.Item
	var mods []ModDecl
	var uses []string

	for i := 0; i < int(container.ChildCount()); i++ {
		node := container.Child(i)
		switch node.Type() {
		case "mod_item":
			decl, nested := modDecl(node, filePath, src)
			mods = append(mods, decl)
			if decl.Inline && !decl.Test {
				uses = append(uses, nested...)
			}
		case "use_declaration":
			uses = append(uses, flattenUse(node, src)...)
			if it, ok := useItem(node, filePath, src); ok {
				items = append(items, it)
			}
		default:
			if it, ok := extractItem(node, filePath, src); ok {
				items = append(items, it)
			}
		}
	}
	return items, mods, uses
}

// modDecl reads one mod_item. For inline non-test modules it recurses
// into the body and returns the body's flattened use paths so they can
// join the declaring file's list.
func modDecl(node *sitter.Node, filePath string, src []byte) (ModDecl, []string) {
	vis, _ := visibility(node, src)
	decl := ModDecl{
		Name: fieldText(node, "name", src),
		Line: int(node.StartPoint().Row) + 1,
		Doc:  docComment(node, src),
		Vis:  vis,
	}
	decl.Test, decl.PathAttr = modAttrs(node, src)

	body := node.ChildByFieldName("body")
	decl.Inline = body != nil
	if body == nil || decl.Test {
		return decl, nil
	}

	items, mods, uses := extractBody(body, filePath, src)
	decl.Items, decl.Mods = items, mods
	if inner := innerDoc(body, src); inner != "" {
		if decl.Doc != "" {
			decl.Doc += "\n" + inner
		} else {
			decl.Doc = inner
		}
	}
	return decl, uses
}

var (
	cfgTestRe  = regexp.MustCompile(`cfg\s*\(\s*test\s*\)`)
	pathAttrRe = regexp.MustCompile(`path\s*=\s*"([^"]+)"`)
)

// modAttrs scans the attribute items preceding a mod declaration for
// #[cfg(test)] and #[path = "..."].
func modAttrs(node *sitter.Node, src []byte) (test bool, pathAttr string) {
	for sib := node.PrevSibling(); sib != nil; sib = sib.PrevSibling() {
		switch sib.Type() {
		case "attribute_item":
			text := strings.TrimSpace(nodeText(sib, src))
			if cfgTestRe.MatchString(text) {
				test = true
			}
			if strings.HasPrefix(text, "#[path") {
				if m := pathAttrRe.FindStringSubmatch(text); m != nil {
					pathAttr = m[1]
				}
			}
		case "line_comment", "block_comment":
			// doc comments may sit between attributes; keep scanning
		default:
			return
		}
	}
	return
}

// docComment collects the contiguous /// lines directly above a node.
func docComment(node *sitter.Node, src []byte) string {
	var lines []string
	for sib := node.PrevSibling(); sib != nil; sib = sib.PrevSibling() {
		switch sib.Type() {
		case "line_comment":
			text := nodeText(sib, src)
			if strings.HasPrefix(text, "///") && !strings.HasPrefix(text, "////") {
				lines = append(lines, docLine(text, "///"))
			} else if strings.HasPrefix(text, "//!") {
				// inner docs belong to the enclosing scope
				return joinDocLines(lines)
			}
		case "block_comment", "attribute_item":
			// attributes and plain comments do not break attachment
		default:
			return joinDocLines(lines)
		}
	}
	return joinDocLines(lines)
}

// innerDoc collects the leading //! lines of a file or inline module body.
func innerDoc(container *sitter.Node, src []byte) string {
	var lines []string
	for i := 0; i < int(container.ChildCount()); i++ {
		child := container.Child(i)
		t := child.Type()
		if t == "line_comment" {
			if text := nodeText(child, src); strings.HasPrefix(text, "//!") {
				lines = append(lines, docLine(text, "//!"))
			}
			continue
		}
		if t == "inner_attribute_item" || t == "attribute_item" || t == "block_comment" || !child.IsNamed() {
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// docLine strips the comment marker and at most one leading space.
func docLine(text, marker string) string {
	s := strings.TrimPrefix(text, marker)
	s = strings.TrimPrefix(s, " ")
	return strings.TrimRight(s, "\r")
}

// joinDocLines reverses lines collected bottom-up and joins them.
func joinDocLines(lines []string) string {
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// flattenUse expands one use declaration into full dotted paths, one per
// leaf. Renames record the original path, globs end in ::*.
func flattenUse(node *sitter.Node, src []byte) []string {
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return nil
	}
	return useTreePaths(arg, "", src)
}

func useTreePaths(node *sitter.Node, prefix string, src []byte) []string {
	switch node.Type() {
	case "scoped_identifier":
		return []string{joinUsePath(prefix, collapseWhitespace(nodeText(node, src)))}
	case "scoped_use_list":
		base := prefix
		if p := node.ChildByFieldName("path"); p != nil {
			base = joinUsePath(prefix, collapseWhitespace(nodeText(p, src)))
		}
		if list := node.ChildByFieldName("list"); list != nil {
			return useTreePaths(list, base, src)
		}
		return []string{base}
	case "use_list":
		var out []string
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if !child.IsNamed() || child.Type() == "line_comment" || child.Type() == "block_comment" {
				continue
			}
			out = append(out, useTreePaths(child, prefix, src)...)
		}
		return out
	case "use_as_clause":
		// the original path is what matters for dependency tracking
		if p := node.ChildByFieldName("path"); p != nil {
			return useTreePaths(p, prefix, src)
		}
		return nil
	case "use_wildcard":
		for i := 0; i < int(node.ChildCount()); i++ {
			if child := node.Child(i); child.IsNamed() {
				return []string{joinUsePath(prefix, collapseWhitespace(nodeText(child, src))) + "::*"}
			}
		}
		if prefix == "" {
			return []string{"*"}
		}
		return []string{prefix + "::*"}
	default:
		t := collapseWhitespace(nodeText(node, src))
		if t == "" {
			return nil
		}
		return []string{joinUsePath(prefix, t)}
	}
}

func joinUsePath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "::" + seg
}

// useItem turns a `pub use` declaration into a re-export item. Restricted
// and private uses are tracked as dependencies only.
func useItem(node *sitter.Node, filePath string, src []byte) (model.Item, bool) {
	vis, _ := visibility(node, src)
	if vis != model.Pub {
		return model.Item{}, false
	}
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return model.Item{}, false
	}
	it := newItem(node, filePath, src)
	it.Name = useTreeName(arg, src)
	it.Kind = model.Use
	it.Visibility = model.Pub
	it.Signature = "pub use " + collapseWhitespace(nodeText(arg, src)) + ";"
	return it, true
}

// useTreeName renders the identity of a use tree: the full path with the
// leaf replaced by the alias for renames, * for globs, {...} for groups.
func useTreeName(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "use_as_clause":
		path := ""
		if p := node.ChildByFieldName("path"); p != nil {
			path = collapseWhitespace(nodeText(p, src))
		}
		alias := fieldText(node, "alias", src)
		if idx := strings.LastIndex(path, "::"); idx >= 0 {
			return path[:idx+2] + alias
		}
		return alias
	case "use_wildcard":
		for i := 0; i < int(node.ChildCount()); i++ {
			if child := node.Child(i); child.IsNamed() {
				return collapseWhitespace(nodeText(child, src)) + "::*"
			}
		}
		return "*"
	case "scoped_use_list":
		if p := node.ChildByFieldName("path"); p != nil {
			return collapseWhitespace(nodeText(p, src)) + "::{...}"
		}
		return "{...}"
	case "use_list":
		return "{...}"
	default:
		return collapseWhitespace(nodeText(node, src))
	}
}
