//go:build cgo

package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// jsVisitor covers JavaScript, TypeScript and TSX; the grammars share node names.
type jsVisitor struct{}

func (jsVisitor) visit(n *sitter.Node, sc scope, c *collector) (bool, scope) {
	switch n.Type() {
	case "program":
		return true, scope{top: true}

	case "import_statement":
		if src := n.ChildByFieldName("source"); src != nil {
			c.addImport(stringLiteral(src, c))
		} else if req := firstNamedOfType(n, "import_require_clause"); req != nil {
			// import x = require('y')
			if s := firstNamedOfType(req, "string"); s != nil {
				c.addImport(stringLiteral(s, c))
			}
		}
		return false, sc

	case "export_statement":
		if src := n.ChildByFieldName("source"); src != nil {
			c.addImport(stringLiteral(src, c))
		}
		return true, scope{top: sc.top, exported: true, body: sc.body}

	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn != nil && (fn.Type() == "import" || isRequireCall(n, c)) {
			if s := firstNamedOfType(n.ChildByFieldName("arguments"), "string"); s != nil {
				c.addImport(stringLiteral(s, c))
			}
		}
		return true, scope{body: sc.body}

	case "function_declaration", "generator_function_declaration":
		if !sc.body {
			name := c.text(n.ChildByFieldName("name"))
			c.addSymbol(n, name, "", KindFunction, sc.exported, "", c.text(n.ChildByFieldName("parameters")))
		}
		return true, scope{body: true}

	case "class_declaration", "abstract_class_declaration":
		name := c.text(n.ChildByFieldName("name"))
		if !sc.body {
			c.addSymbol(n, name, "", KindClass, sc.exported, jsClassExtends(n, c), "")
		}
		return true, scope{class: name, exported: sc.exported, body: sc.body}

	case "class_body":
		return true, sc

	case "method_definition":
		if sc.class != "" && !sc.body {
			name := c.text(n.ChildByFieldName("name"))
			c.addSymbol(n, name, sc.class+"."+name, KindMethod, sc.exported, "", c.text(n.ChildByFieldName("parameters")))
		}
		return true, scope{body: true}

	case "public_field_definition", "field_definition":
		if sc.class != "" && !sc.body {
			nameNode := n.ChildByFieldName("name")
			if nameNode == nil {
				nameNode = n.ChildByFieldName("property")
			}
			name := c.text(nameNode)
			c.addSymbol(n, name, sc.class+"."+name, KindProperty, sc.exported, "", "")
		}
		return true, scope{body: true}

	case "interface_declaration":
		if !sc.body {
			name := c.text(n.ChildByFieldName("name"))
			extends := ""
			if clause := firstNamedOfType(n, "extends_type_clause"); clause != nil && clause.NamedChildCount() > 0 {
				extends = c.text(clause.NamedChild(0))
			}
			c.addSymbol(n, name, "", KindInterface, sc.exported, extends, "")
		}
		return false, sc

	case "type_alias_declaration":
		if !sc.body {
			c.addSymbol(n, c.text(n.ChildByFieldName("name")), "", KindType, sc.exported, "", "")
		}
		return false, sc

	case "enum_declaration":
		if !sc.body {
			c.addSymbol(n, c.text(n.ChildByFieldName("name")), "", KindEnum, sc.exported, "", "")
		}
		return false, sc

	case "lexical_declaration", "variable_declaration":
		if sc.top && !sc.body {
			jsDeclarators(n, sc, c)
		}
		return true, scope{body: true}

	case "arrow_function", "function", "function_expression", "generator_function":
		return true, scope{body: true}
	}

	return true, scope{body: sc.body}
}

// jsClassExtends returns the first extends target. JavaScript puts the
// expression directly under class_heritage; TypeScript wraps it in extends_clause.
func jsClassExtends(n *sitter.Node, c *collector) string {
	heritage := firstNamedOfType(n, "class_heritage")
	if heritage == nil {
		return ""
	}
	if clause := firstNamedOfType(heritage, "extends_clause"); clause != nil {
		if v := clause.ChildByFieldName("value"); v != nil {
			return c.text(v)
		}
		if clause.NamedChildCount() > 0 {
			return c.text(clause.NamedChild(0))
		}
		return ""
	}
	if first := heritage.NamedChild(0); first != nil && first.Type() != "implements_clause" {
		return c.text(first)
	}
	return ""
}

// jsDeclarators records module-level bindings: function-valued ones as
// functions, the remaining `const` bindings as consts.
func jsDeclarators(n *sitter.Node, sc scope, c *collector) {
	isConst := n.ChildCount() > 0 && n.Child(0).Type() == "const"
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := c.text(nameNode)
		value := decl.ChildByFieldName("value")
		switch {
		case value != nil && isJSFunction(value.Type()):
			c.addSymbol(decl, name, "", KindFunction, sc.exported, "", c.text(value.ChildByFieldName("parameters")))
		case value != nil && isRequireCall(value, c):
			// bindings of required modules are imports, not declarations
		case isConst:
			c.addSymbol(decl, name, "", KindConst, sc.exported, "", "")
		}
	}
}

func isJSFunction(t string) bool {
	switch t {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func isRequireCall(n *sitter.Node, c *collector) bool {
	if n.Type() != "call_expression" {
		return false
	}
	fn := n.ChildByFieldName("function")
	return fn != nil && fn.Type() == "identifier" && c.text(fn) == "require"
}
