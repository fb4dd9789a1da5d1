//go:build cgo

package parser

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

type goVisitor struct{}

func (goVisitor) visit(n *sitter.Node, sc scope, c *collector) (bool, scope) {
	switch n.Type() {
	case "source_file":
		return true, scope{top: true}

	case "import_declaration", "import_spec_list", "type_declaration", "const_declaration":
		return true, sc

	case "import_spec":
		if p := n.ChildByFieldName("path"); p != nil {
			raw := c.text(p)
			if s, err := strconv.Unquote(raw); err == nil {
				raw = s
			}
			c.addImport(raw)
		}

	case "function_declaration":
		name := c.text(n.ChildByFieldName("name"))
		c.addSymbol(n, name, "", KindFunction, goExported(name), "", goSignature(n, c))

	case "method_declaration":
		name := c.text(n.ChildByFieldName("name"))
		recv := goReceiverType(c.text(n.ChildByFieldName("receiver")))
		qualified := name
		if recv != "" {
			qualified = recv + "." + name
		}
		c.addSymbol(n, name, qualified, KindMethod, goExported(name), "", goSignature(n, c))

	case "type_spec", "type_alias":
		name := c.text(n.ChildByFieldName("name"))
		kind := KindType
		if t := n.ChildByFieldName("type"); t != nil {
			switch t.Type() {
			case "struct_type":
				kind = KindStruct
			case "interface_type":
				kind = KindInterface
			}
		}
		c.addSymbol(n, name, "", kind, goExported(name), "", "")

	case "const_spec":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() != "identifier" {
				break
			}
			name := c.text(child)
			if name != "_" {
				c.addSymbol(child, name, "", KindConst, goExported(name), "", "")
			}
		}
	}

	// Go declarations only appear at file level; nothing below them matters.
	return false, sc
}

func goSignature(n *sitter.Node, c *collector) string {
	sig := c.text(n.ChildByFieldName("parameters"))
	if res := n.ChildByFieldName("result"); res != nil {
		sig += " " + c.text(res)
	}
	return sig
}

// goReceiverType extracts T from receivers like "(s *T)" or "(T[K])".
func goReceiverType(recv string) string {
	if i := strings.IndexByte(recv, '['); i >= 0 {
		recv = recv[:i]
	}
	fields := strings.Fields(strings.Trim(recv, "()"))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimLeft(fields[len(fields)-1], "*")
}

func goExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
