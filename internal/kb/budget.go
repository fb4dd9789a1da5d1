package kb

import (
	"fmt"
	"strings"
)

// budgetWriter accumulates markdown up to a fixed number of characters. Once
// a line does not fit, later lines are counted but dropped, and Finish
// appends a note saying how many were omitted.
type budgetWriter struct {
	sb      strings.Builder
	limit   int
	omitted int
}

// reserve is kept free for the truncation note.
const reserve = 64

func newBudgetWriter(limit int) *budgetWriter {
	return &budgetWriter{limit: limit}
}

// Line appends s plus a newline. It reports whether the line was written.
func (b *budgetWriter) Line(s string) bool {
	if b.omitted > 0 || b.sb.Len()+len(s)+1 > b.limit-reserve {
		b.omitted++
		return false
	}
	b.sb.WriteString(s)
	b.sb.WriteByte('\n')
	return true
}

// Linef is Line with formatting.
func (b *budgetWriter) Linef(format string, args ...any) bool {
	return b.Line(fmt.Sprintf(format, args...))
}

// Blank appends an empty line.
func (b *budgetWriter) Blank() bool {
	return b.Line("")
}

// Truncated reports whether any line was dropped.
func (b *budgetWriter) Truncated() bool {
	return b.omitted > 0
}

// Finish returns the document, at most limit characters long.
func (b *budgetWriter) Finish() string {
	if b.omitted == 0 {
		return b.sb.String()
	}
	note := fmt.Sprintf("\n_Truncated: %d more lines omitted._\n", b.omitted)
	out := b.sb.String() + note
	if len(out) > b.limit {
		out = out[:b.limit]
	}
	return out
}
