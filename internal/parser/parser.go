//go:build cgo

package parser

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"codekb/internal/lang"
)

// poolSize bounds idle tree-sitter parsers kept per language.
const poolSize = 8

// Parser dispatches source text to a tree-sitter grammar and extracts facts.
// It is safe for concurrent use; tree-sitter parsers are pooled per language.
type Parser struct {
	opts     Options
	grammars map[lang.Language]*sitter.Language

	mu     sync.RWMutex
	free   map[lang.Language]chan *sitter.Parser
	closed bool
}

// New creates a parser with the grammars selected by opts.
func New(opts Options) *Parser {
	opts = opts.withDefaults()

	wanted := opts.Languages
	if len(wanted) == 0 {
		wanted = lang.All()
	}

	p := &Parser{
		opts:     opts,
		grammars: make(map[lang.Language]*sitter.Language),
		free:     make(map[lang.Language]chan *sitter.Parser),
	}
	for _, l := range wanted {
		if g := grammarFor(l); g != nil {
			p.grammars[l] = g
			p.free[l] = make(chan *sitter.Parser, poolSize)
		}
	}
	return p
}

// grammarFor returns the bundled grammar for l, or nil when none is bundled.
func grammarFor(l lang.Language) *sitter.Language {
	switch l {
	case lang.LangGo:
		return golang.GetLanguage()
	case lang.LangJavaScript:
		return javascript.GetLanguage()
	case lang.LangTypeScript:
		return typescript.GetLanguage()
	case lang.LangTSX:
		return tsx.GetLanguage()
	case lang.LangPython:
		return python.GetLanguage()
	default:
		return nil
	}
}

// visitorFor is the single language switch for fact extraction.
func visitorFor(l lang.Language) visitor {
	switch l.Family() {
	case lang.FamilyPython:
		return pythonVisitor{}
	case lang.FamilyJS:
		return jsVisitor{}
	case lang.FamilyGo:
		return goVisitor{}
	default:
		return nil
	}
}

// HasGrammar reports whether a grammar is loaded for l.
func (p *Parser) HasGrammar(l lang.Language) bool {
	_, ok := p.grammars[l]
	return ok
}

// Parse extracts imports and symbols from text. rel is the workspace-relative
// slash path used for symbol identities. Parse never panics on malformed input.
func (p *Parser) Parse(ctx context.Context, l lang.Language, rel string, text []byte) (res Result) {
	if len(text) > p.opts.MaxFileSizeBytes {
		return skipped(SkipSizeLimit)
	}
	grammar, ok := p.grammars[l]
	v := visitorFor(l)
	if !ok || v == nil {
		return skipped(SkipMissingGrammar)
	}
	if !utf8.Valid(text) {
		return skipped(SkipParseError)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return skipped(SkipMissingGrammar)
	}

	defer func() {
		if r := recover(); r != nil {
			res = skipped(SkipParseError)
		}
	}()

	tsParser := p.acquire(l, grammar)
	tree, err := tsParser.ParseCtx(ctx, nil, text)
	p.release(l, tsParser)
	if err != nil || tree == nil {
		return skipped(SkipParseError)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return skipped(SkipParseError)
	}

	c := &collector{
		src:    text,
		file:   rel,
		module: ModuleID(l, rel),
	}
	c.addModule()
	res.Truncated = walk(root, v, c, p.opts.MaxDepth)
	res.Imports = c.imports
	res.Symbols = c.symbols
	return res
}

func (p *Parser) acquire(l lang.Language, grammar *sitter.Language) *sitter.Parser {
	select {
	case tp := <-p.free[l]:
		return tp
	default:
		tp := sitter.NewParser()
		tp.SetLanguage(grammar)
		return tp
	}
}

func (p *Parser) release(l lang.Language, tp *sitter.Parser) {
	select {
	case p.free[l] <- tp:
	default:
		tp.Close()
	}
}

// Close releases pooled tree-sitter parsers. Parse calls after Close report
// missing_grammar.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.free {
		drain(ch)
	}
}

func drain(ch chan *sitter.Parser) {
	for {
		select {
		case tp := <-ch:
			tp.Close()
		default:
			return
		}
	}
}

// scope carries the syntactic context of a node during the walk.
type scope struct {
	class    string // enclosing class for members
	exported bool   // under an export wrapper or inside an exported class
	top      bool   // module-level statement
	body     bool   // inside a function body; only imports are collected
}

// visitor records facts for one node and decides whether to descend.
type visitor interface {
	visit(n *sitter.Node, sc scope, c *collector) (descend bool, child scope)
}

type frame struct {
	node  *sitter.Node
	depth int
	sc    scope
}

// walk visits the tree once with an explicit stack. It reports whether any
// subtree was cut off by maxDepth.
func walk(root *sitter.Node, v visitor, c *collector, maxDepth int) bool {
	truncated := false
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > maxDepth {
			truncated = true
			continue
		}

		descend, child := v.visit(f.node, f.sc, c)
		if !descend {
			continue
		}
		// Reverse order keeps facts in source order.
		for i := int(f.node.NamedChildCount()) - 1; i >= 0; i-- {
			if n := f.node.NamedChild(i); n != nil {
				stack = append(stack, frame{node: n, depth: f.depth + 1, sc: child})
			}
		}
	}
	return truncated
}

// collector accumulates facts for a single file.
type collector struct {
	src     []byte
	file    string
	module  string
	imports []string
	symbols []Symbol
}

func (c *collector) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(c.src[n.StartByte():n.EndByte()])
}

func (c *collector) addImport(raw string) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		c.imports = append(c.imports, raw)
	}
}

func (c *collector) addModule() {
	name := c.module
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		name = name[i+1:]
	}
	c.symbols = append(c.symbols, Symbol{
		ID:       c.module,
		Name:     name,
		Kind:     KindModule,
		File:     c.file,
		Exported: true,
		Line:     1,
	})
}

// addSymbol records a declaration. qualified is the name inside the module,
// e.g. "Class.method".
func (c *collector) addSymbol(n *sitter.Node, name, qualified string, kind SymbolKind, exported bool, extends, signature string) {
	if name == "" {
		return
	}
	if qualified == "" {
		qualified = name
	}
	c.symbols = append(c.symbols, Symbol{
		ID:        c.module + ":" + qualified,
		Name:      name,
		Kind:      kind,
		File:      c.file,
		Extends:   extends,
		Signature: compactSignature(signature),
		Exported:  exported,
		Line:      int(n.StartPoint().Row) + 1,
	})
}

const maxSignatureLen = 160

// compactSignature collapses whitespace and caps the length.
func compactSignature(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSignatureLen {
		s = s[:maxSignatureLen] + "..."
	}
	return s
}

// stringLiteral returns the unquoted content of a string node.
func stringLiteral(n *sitter.Node, c *collector) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "string_fragment" {
			return c.text(child)
		}
	}
	return strings.Trim(c.text(n), "\"'`")
}

// firstNamedOfType returns the first named child whose type is in types.
func firstNamedOfType(n *sitter.Node, types ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		for _, t := range types {
			if child.Type() == t {
				return child
			}
		}
	}
	return nil
}
