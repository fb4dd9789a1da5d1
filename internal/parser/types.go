// Package parser turns source text into import references and declared symbols.
//
// Parsing is a pure function of (language, path, text): the parser performs no
// I/O and never fails. Anything that prevents analysis is reported as a
// SkipReason on the Result instead of an error.
package parser

import (
	"path"
	"strings"

	"codekb/internal/lang"
)

const (
	// DefaultMaxFileSize is the size above which files are skipped unparsed.
	DefaultMaxFileSize = 256 * 1024
	// DefaultMaxDepth bounds syntax tree traversal depth.
	DefaultMaxDepth = 512
)

// SkipReason explains why a file contributed no facts.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipSizeLimit      SkipReason = "size_limit"
	SkipMissingGrammar SkipReason = "missing_grammar"
	SkipParseError     SkipReason = "parse_error"
	// SkipReadError is set by callers when the file content could not be read.
	SkipReadError SkipReason = "read_error"
)

// SkipReasons lists every reason in display order.
func SkipReasons() []SkipReason {
	return []SkipReason{SkipSizeLimit, SkipMissingGrammar, SkipParseError, SkipReadError}
}

// SymbolKind classifies a declaration.
type SymbolKind string

const (
	KindModule    SymbolKind = "module"
	KindFunction  SymbolKind = "function"
	KindClass     SymbolKind = "class"
	KindMethod    SymbolKind = "method"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindProperty  SymbolKind = "property"
	KindRecord    SymbolKind = "record"
	KindStruct    SymbolKind = "struct"
	KindEnum      SymbolKind = "enum"
)

// Symbol is a declaration extracted from a file.
type Symbol struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	File      string     `json:"file"`
	Extends   string     `json:"extends,omitempty"` // first base only
	Signature string     `json:"signature,omitempty"`
	Exported  bool       `json:"exported"`
	Line      int        `json:"line"`
}

// Result holds the facts extracted from one file.
type Result struct {
	Imports []string   `json:"imports"`
	Symbols []Symbol   `json:"symbols"`
	Skip    SkipReason `json:"skip,omitempty"`
	// Truncated is set when subtrees deeper than MaxDepth were not visited.
	Truncated bool `json:"truncated,omitempty"`
}

// Options configures a Parser.
type Options struct {
	MaxFileSizeBytes int
	MaxDepth         int
	// Languages restricts the grammars that are loaded. Empty loads every bundled grammar.
	Languages []lang.Language
}

func (o Options) withDefaults() Options {
	if o.MaxFileSizeBytes <= 0 {
		o.MaxFileSizeBytes = DefaultMaxFileSize
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// ModuleID derives the module identifier for a workspace-relative slash path.
// Python modules are dotted and packages drop their __init__ segment; other
// languages use the path without its extension.
func ModuleID(l lang.Language, rel string) string {
	id := strings.TrimSuffix(rel, path.Ext(rel))
	if l.Family() == lang.FamilyPython {
		id = strings.TrimSuffix(id, "/__init__")
		if id == "__init__" {
			return rel
		}
		return strings.ReplaceAll(id, "/", ".")
	}
	return id
}

func skipped(reason SkipReason) Result {
	return Result{Skip: reason}
}
