package kb

import (
	"sort"
	"strings"

	"codekb/internal/graph"
	"codekb/internal/parser"
)

func renderSymbols(snap *graph.Snapshot, opts Options) Report {
	w := newBudgetWriter(opts.SymbolsChars)
	w.Line("# Symbols")
	w.Blank()

	facts := snap.AllFacts()
	// Most imported files first so truncation drops the periphery.
	sort.SliceStable(facts, func(i, j int) bool {
		hi, hj := snap.HubScore(facts[i].File.Path), snap.HubScore(facts[j].File.Path)
		if hi != hj {
			return hi > hj
		}
		return facts[i].File.Path < facts[j].File.Path
	})

	listed := 0
	for _, f := range facts {
		syms := exported(f.Symbols)
		if len(syms) == 0 {
			continue
		}
		w.Linef("## `%s`", f.File.Path)
		w.Blank()
		for _, s := range syms {
			w.Line(symbolLine(s))
		}
		w.Blank()
		listed++
	}
	if listed == 0 {
		w.Line("No exported symbols.")
	}
	return newReport(SymbolsFile, w)
}

// exported drops module pseudo-symbols and unexported declarations.
func exported(syms []parser.Symbol) []parser.Symbol {
	var out []parser.Symbol
	for _, s := range syms {
		if s.Kind == parser.KindModule || !s.Exported {
			continue
		}
		out = append(out, s)
	}
	return out
}

func symbolLine(s parser.Symbol) string {
	var b strings.Builder
	b.WriteString("- `")
	b.WriteString(s.Name)
	b.WriteString("` ")
	b.WriteString(string(s.Kind))
	if s.Extends != "" {
		b.WriteString(" extends `")
		b.WriteString(s.Extends)
		b.WriteString("`")
	}
	if s.Signature != "" {
		b.WriteString(": `")
		b.WriteString(s.Signature)
		b.WriteString("`")
	}
	if s.Line > 0 {
		b.WriteString(" (L")
		b.WriteString(itoa(s.Line))
		b.WriteString(")")
	}
	return b.String()
}
