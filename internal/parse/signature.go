package parse

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/cratemap/internal/model"
)

// extractItem turns one top-level CST node into an Item. Bodies are cut
// at the opening brace; signatures keep source spelling with whitespace
// collapsed.
func extractItem(node *sitter.Node, filePath string, src []byte) (model.Item, bool) {
	vis, visText := visibility(node, src)
	it := newItem(node, filePath, src)
	it.Visibility = vis

	switch node.Type() {
	case "function_item":
		it.Kind = model.Function
		it.Name = fieldText(node, "name", src)
		it.Signature = fnSignature(node, src)
	case "struct_item":
		it.Kind = model.Struct
		it.Name = fieldText(node, "name", src)
		it.Signature = structSignature(node, src)
	case "enum_item":
		it.Kind = model.Enum
		it.Name = fieldText(node, "name", src)
		it.Signature = enumSignature(node, src)
	case "trait_item":
		it.Kind = model.Trait
		it.Name = fieldText(node, "name", src)
		it.Signature = traitSignature(node, src)
	case "impl_item":
		it.Kind = model.Impl
		it.Visibility = model.Private
		it.Name, it.Signature = implParts(node, src)
	case "type_item":
		it.Kind = model.TypeAlias
		it.Name = fieldText(node, "name", src)
		it.Signature = terminate(cleanSignature(nodeText(node, src)))
	case "const_item":
		it.Kind = model.Const
		it.Name = fieldText(node, "name", src)
		it.Signature = constSignature(node, visText, src)
	case "static_item":
		it.Kind = model.Static
		it.Name = fieldText(node, "name", src)
		it.Signature = staticSignature(node, visText, src)
	case "macro_definition":
		it.Kind = model.Macro
		it.Visibility = model.Private
		it.Name = fieldText(node, "name", src)
		it.Signature = "macro_rules! " + it.Name + " { ... }"
	default:
		return model.Item{}, false
	}
	return it, true
}

// newItem fills the location fields. Doc comments and attributes sit
// outside the range, so the hash tracks the declaration text only; doc
// edits surface through the owning module's file hash instead.
func newItem(node *sitter.Node, filePath string, src []byte) model.Item {
	return model.Item{
		Doc:       docComment(node, src),
		File:      filePath,
		LineStart: int(node.StartPoint().Row) + 1,
		LineEnd:   int(node.EndPoint().Row) + 1,
		Hash:      HashBytes(src[node.StartByte():node.EndByte()]),
	}
}

// fnSignature cuts a function at its body: `pub fn get(&self) -> u32;`.
// Trait method signatures without a body already end in a semicolon.
func fnSignature(node *sitter.Node, src []byte) string {
	if body := node.ChildByFieldName("body"); body != nil {
		return cleanSignature(string(src[node.StartByte():body.StartByte()])) + ";"
	}
	return terminate(cleanSignature(nodeText(node, src)))
}

func structSignature(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		// unit struct, full text ends with the semicolon
		return cleanSignature(nodeText(node, src))
	}
	head := cleanSignature(string(src[node.StartByte():body.StartByte()]))
	if body.Type() == "ordered_field_declaration_list" {
		sig := head + "(" + strings.Join(tupleFields(body, src), ", ") + ")"
		if w := whereText(node, src); w != "" {
			// tuple structs put the where clause after the fields
			sig += " " + w
		}
		return sig + ";"
	}
	var b strings.Builder
	b.WriteString(head + " {\n")
	for _, f := range namedFields(body, src) {
		b.WriteString("    " + f + ",\n")
	}
	b.WriteString("}")
	return b.String()
}

func enumSignature(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return cleanSignature(nodeText(node, src))
	}
	head := cleanSignature(string(src[node.StartByte():body.StartByte()]))
	var b strings.Builder
	b.WriteString(head + " {\n")
	for i := 0; i < int(body.ChildCount()); i++ {
		v := body.Child(i)
		if v.Type() != "enum_variant" {
			continue
		}
		b.WriteString("    " + enumVariant(v, src) + ",\n")
	}
	b.WriteString("}")
	return b.String()
}

// enumVariant renders one variant without its discriminant.
func enumVariant(v *sitter.Node, src []byte) string {
	name := fieldText(v, "name", src)
	body := v.ChildByFieldName("body")
	if body == nil {
		return name
	}
	if body.Type() == "ordered_field_declaration_list" {
		return name + "(" + strings.Join(tupleFields(body, src), ", ") + ")"
	}
	return name + " { " + strings.Join(namedFields(body, src), ", ") + " }"
}

func traitSignature(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return terminate(cleanSignature(nodeText(node, src)))
	}
	head := cleanSignature(string(src[node.StartByte():body.StartByte()]))
	var b strings.Builder
	b.WriteString(head + " {\n")
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "function_item", "function_signature_item":
			b.WriteString("    " + fnSignature(child, src) + "\n")
		case "associated_type", "type_item":
			b.WriteString("    " + terminate(cleanSignature(nodeText(child, src))) + "\n")
		case "const_item":
			_, cvis := visibility(child, src)
			b.WriteString("    " + constSignature(child, cvis, src) + "\n")
		}
	}
	b.WriteString("}")
	return b.String()
}

// implParts returns the display name ("Display for Value" or "Value")
// and the rendered block of method signatures.
func implParts(node *sitter.Node, src []byte) (string, string) {
	selfType := cleanSignature(fieldText(node, "type", src))
	name := selfType
	if t := node.ChildByFieldName("trait"); t != nil {
		name = cleanSignature(nodeText(t, src)) + " for " + selfType
	}
	body := node.ChildByFieldName("body")
	if body == nil {
		return name, terminate(cleanSignature(nodeText(node, src)))
	}
	head := cleanSignature(string(src[node.StartByte():body.StartByte()]))
	var b strings.Builder
	b.WriteString(head + " {\n")
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "function_item", "function_signature_item":
			b.WriteString("    " + fnSignature(child, src) + "\n")
		case "associated_type", "type_item":
			b.WriteString("    " + terminate(cleanSignature(nodeText(child, src))) + "\n")
		case "const_item":
			_, cvis := visibility(child, src)
			b.WriteString("    " + constSignature(child, cvis, src) + "\n")
		}
	}
	b.WriteString("}")
	return name, b.String()
}

// constSignature drops the value expression: `pub const MAX: usize;`.
func constSignature(node *sitter.Node, visText string, src []byte) string {
	return visText + "const " + fieldText(node, "name", src) + ": " + cleanSignature(fieldText(node, "type", src)) + ";"
}

func staticSignature(node *sitter.Node, visText string, src []byte) string {
	mut := ""
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "mutable_specifier" {
			mut = "mut "
			break
		}
	}
	return visText + "static " + mut + fieldText(node, "name", src) + ": " + cleanSignature(fieldText(node, "type", src)) + ";"
}

// namedFields renders `name: Type` entries of a field_declaration_list.
func namedFields(body *sitter.Node, src []byte) []string {
	var fields []string
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child.Type() != "field_declaration" {
			continue
		}
		_, fvis := visibility(child, src)
		fname := fieldText(child, "name", src)
		ftype := cleanSignature(fieldText(child, "type", src))
		fields = append(fields, fvis+fname+": "+ftype)
	}
	return fields
}

// tupleFields renders the types of an ordered_field_declaration_list.
// A visibility modifier applies to the type that follows it.
func tupleFields(body *sitter.Node, src []byte) []string {
	var fields []string
	pending := ""
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if !child.IsNamed() {
			continue
		}
		switch child.Type() {
		case "visibility_modifier":
			pending = collapseWhitespace(nodeText(child, src)) + " "
		case "attribute_item", "line_comment", "block_comment":
			// skip
		default:
			fields = append(fields, pending+cleanSignature(nodeText(child, src)))
			pending = ""
		}
	}
	return fields
}

// visibility classifies a node's visibility_modifier child and returns
// the signature prefix, trailing space included.
func visibility(node *sitter.Node, src []byte) (model.Visibility, string) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "visibility_modifier" {
			continue
		}
		text := collapseWhitespace(nodeText(child, src))
		switch {
		case text == "pub":
			return model.Pub, "pub "
		case strings.HasPrefix(text, "pub(crate"):
			return model.PubCrate, "pub(crate) "
		case strings.HasPrefix(text, "pub(super"):
			return model.PubSuper, "pub(super) "
		case strings.HasPrefix(text, "pub(self"):
			return model.Private, ""
		default:
			// pub(in path) restricts below crate scope
			return model.PubCrate, text + " "
		}
	}
	return model.Private, ""
}

func nodeText(node *sitter.Node, src []byte) string {
	return string(src[node.StartByte():node.EndByte()])
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, src)
}

func whereText(node *sitter.Node, src []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == "where_clause" {
			return cleanSignature(nodeText(child, src))
		}
	}
	return ""
}

func terminate(s string) string {
	if strings.HasSuffix(s, ";") {
		return s
	}
	return s + ";"
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

var sigTidier = strings.NewReplacer("( ", "(", " )", ")", " ,", ",")

func cleanSignature(s string) string {
	return sigTidier.Replace(collapseWhitespace(s))
}
