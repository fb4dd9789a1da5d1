//go:build cgo

package parser

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var pyConstName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

type pythonVisitor struct{}

func (pythonVisitor) visit(n *sitter.Node, sc scope, c *collector) (bool, scope) {
	switch n.Type() {
	case "module":
		return true, scope{top: true}

	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				c.addImport(c.text(child))
			case "aliased_import":
				c.addImport(c.text(child.ChildByFieldName("name")))
			}
		}
		return false, sc

	case "import_from_statement":
		pyFromImport(n, c)
		return false, sc

	case "decorated_definition", "block":
		return true, sc

	case "class_definition":
		name := c.text(n.ChildByFieldName("name"))
		if !sc.body {
			extends := ""
			if bases := n.ChildByFieldName("superclasses"); bases != nil {
				extends = c.text(firstNamedOfType(bases, "identifier", "attribute"))
			}
			qualified := name
			if sc.class != "" {
				qualified = sc.class + "." + name
			}
			c.addSymbol(n, name, qualified, KindClass, pyExported(name), extends, "")
		}
		return true, scope{class: name, body: sc.body}

	case "function_definition":
		if !sc.body {
			name := c.text(n.ChildByFieldName("name"))
			sig := c.text(n.ChildByFieldName("parameters"))
			if ret := n.ChildByFieldName("return_type"); ret != nil {
				sig += " -> " + c.text(ret)
			}
			if sc.class != "" {
				c.addSymbol(n, name, sc.class+"."+name, KindMethod, pyExported(name), "", sig)
			} else {
				c.addSymbol(n, name, "", KindFunction, pyExported(name), "", sig)
			}
		}
		return true, scope{body: true}

	case "expression_statement":
		if sc.top {
			if assign := firstNamedOfType(n, "assignment"); assign != nil {
				left := assign.ChildByFieldName("left")
				if left != nil && left.Type() == "identifier" {
					if name := c.text(left); pyConstName.MatchString(name) {
						c.addSymbol(assign, name, "", KindConst, true, "", "")
					}
				}
			}
		}
		return true, scope{body: sc.body}
	}

	return true, scope{body: sc.body}
}

// pyFromImport records `from X import ...`. A bare relative prefix such as
// `from . import a, b` yields one import per name (".a", ".b") since each name
// is usually a sibling module.
func pyFromImport(n *sitter.Node, c *collector) {
	mod := n.ChildByFieldName("module_name")
	if mod == nil {
		return
	}
	raw := c.text(mod)
	if raw == "" || strings.Trim(raw, ".") != "" {
		c.addImport(raw)
		return
	}

	sawImport := false
	found := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "dotted_name":
			if sawImport {
				c.addImport(raw + c.text(child))
				found = true
			}
		case "aliased_import":
			if sawImport {
				c.addImport(raw + c.text(child.ChildByFieldName("name")))
				found = true
			}
		}
	}
	if !found {
		c.addImport(raw)
	}
}

func pyExported(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}
