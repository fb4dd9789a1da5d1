package incremental

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"codekb/internal/graph"
	"codekb/internal/lang"
	"codekb/internal/parser"
	"codekb/internal/resolver"
)

// Extractor turns one file into graph facts: it reads, parses and resolves.
type Extractor struct {
	source   FileSource
	parser   SourceParser
	resolver *resolver.Resolver
	maxSize  int
	now      func() time.Time
}

// NewExtractor creates an extractor. maxSize skips larger files before reading.
func NewExtractor(source FileSource, p SourceParser, r *resolver.Resolver, maxSize int) *Extractor {
	if maxSize <= 0 {
		maxSize = parser.DefaultMaxFileSize
	}
	return &Extractor{
		source:   source,
		parser:   p,
		resolver: r,
		maxSize:  maxSize,
		now:      time.Now,
	}
}

// Extract returns the facts of rel. exists is false when the file is gone or
// cannot be read; an unreadable file is reported with Skip set to read_error
// and is otherwise treated as deleted. Parse failures yield a node with no
// imports or symbols and the skip reason set.
func (e *Extractor) Extract(ctx context.Context, rel string) (facts graph.FileFacts, exists bool) {
	l, ok := lang.FromPath(rel)
	if !ok {
		return graph.FileFacts{}, false
	}

	sig, err := e.source.Stat(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return graph.FileFacts{}, false
		}
		return e.skipped(rel, l, parser.SkipReadError), false
	}

	node := graph.FileNode{
		Path:         rel,
		Language:     l,
		Size:         sig.Size,
		ModTimeNanos: sig.ModTimeNanos,
		ParsedAt:     e.now().UTC(),
	}
	if sig.Size > int64(e.maxSize) {
		node.Skip = parser.SkipSizeLimit
		return graph.FileFacts{File: node}, true
	}

	text, err := e.source.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return graph.FileFacts{}, false
		}
		return e.skipped(rel, l, parser.SkipReadError), false
	}

	res := e.parser.Parse(ctx, l, rel, text)
	node.Skip = res.Skip
	return graph.FileFacts{
		File:    node,
		Imports: res.Imports,
		Edges:   e.Link(rel, res.Imports),
		Symbols: res.Symbols,
	}, true
}

func (e *Extractor) skipped(rel string, l lang.Language, reason parser.SkipReason) graph.FileFacts {
	return graph.FileFacts{File: graph.FileNode{
		Path:     rel,
		Language: l,
		ParsedAt: e.now().UTC(),
		Skip:     reason,
	}}
}

// Link resolves the imports of src against the current workspace. Go imports
// bind to every file of the package; other languages bind to the first
// existing candidate. Imports that resolve nowhere keep the raw string as
// their destination.
func (e *Extractor) Link(src string, imports []string) []graph.ImportEdge {
	if len(imports) == 0 {
		return nil
	}
	l, _ := lang.FromPath(src)
	edges := make([]graph.ImportEdge, 0, len(imports))
	for _, raw := range imports {
		targets := e.resolver.Resolve(src, raw)
		if len(targets) == 0 {
			edges = append(edges, graph.ImportEdge{Src: src, Dst: raw, Raw: raw})
			continue
		}
		if l.Family() != lang.FamilyGo {
			targets = targets[:1]
		}
		for _, dst := range targets {
			edges = append(edges, graph.ImportEdge{Src: src, Dst: dst, Raw: raw, Resolved: true})
		}
	}
	return edges
}
