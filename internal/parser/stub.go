//go:build !cgo

package parser

import (
	"context"

	"codekb/internal/lang"
)

// Parser is the non-CGO stand-in: no grammar is available, so every file
// within the size limit is reported as missing_grammar.
type Parser struct {
	opts Options
}

// New creates a parser. Without CGO no grammars can be loaded.
func New(opts Options) *Parser {
	return &Parser{opts: opts.withDefaults()}
}

// HasGrammar reports whether a grammar is loaded for l.
func (p *Parser) HasGrammar(l lang.Language) bool {
	return false
}

// Parse applies the size limit and otherwise reports missing_grammar.
func (p *Parser) Parse(ctx context.Context, l lang.Language, rel string, text []byte) Result {
	if len(text) > p.opts.MaxFileSizeBytes {
		return skipped(SkipSizeLimit)
	}
	return skipped(SkipMissingGrammar)
}

// Close releases pooled resources.
func (p *Parser) Close() {}
