// Package position converts between the byte offsets used by internal
// AST processing and the line/UTF-16-code-unit positions the LSP wire
// format uses. Conversions are explicit and happen only at the boundary
// where a Location leaves or enters the server.
package position

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// Mapper precomputes line-start byte offsets for one document's content,
// so repeated conversions over the same content don't rescan it.
type Mapper struct {
	content    string
	lineStarts []int
}

// NewMapper builds a Mapper over content.
func NewMapper(content string) *Mapper {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Mapper{content: content, lineStarts: starts}
}

// OffsetToPosition converts a byte offset into a 0-based line plus a
// UTF-16 code-unit column. Offsets past the end of content clamp to the
// final position.
func (m *Mapper) OffsetToPosition(offset int) rubyindex.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(m.content) {
		offset = len(m.content)
	}

	line := m.lineForOffset(offset)
	lineStart := m.lineStarts[line]

	col := 0
	for i := lineStart; i < offset; {
		r, size := utf8.DecodeRuneInString(m.content[i:])
		if size == 0 {
			break
		}
		col += utf16.RuneLen(r)
		i += size
	}
	return rubyindex.Position{Line: line, Column: col}
}

// PositionToOffset converts a 0-based line and UTF-16 column back into a
// byte offset. Columns past the end of the line clamp to the line end;
// lines past the end of the document clamp to the document end.
func (m *Mapper) PositionToOffset(pos rubyindex.Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(m.lineStarts) {
		return len(m.content)
	}

	offset := m.lineStarts[pos.Line]
	lineEnd := len(m.content)
	if pos.Line+1 < len(m.lineStarts) {
		lineEnd = m.lineStarts[pos.Line+1] - 1
	}

	remaining := pos.Column
	for offset < lineEnd && remaining > 0 {
		r, size := utf8.DecodeRuneInString(m.content[offset:])
		if size == 0 {
			break
		}
		units := utf16.RuneLen(r)
		if units > remaining {
			break
		}
		remaining -= units
		offset += size
	}
	return offset
}

// RangeFromOffsets builds a Range from a byte [start, end) span.
func (m *Mapper) RangeFromOffsets(start, end int) rubyindex.Range {
	return rubyindex.Range{
		Start: m.OffsetToPosition(start),
		End:   m.OffsetToPosition(end),
	}
}

// lineForOffset binary-searches lineStarts for the line containing
// offset.
func (m *Mapper) lineForOffset(offset int) int {
	lo, hi := 0, len(m.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if m.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// LineCount returns the number of lines in the content.
func (m *Mapper) LineCount() int {
	return len(m.lineStarts)
}

// Line returns the text of the 0-based line, without its trailing
// newline.
func (m *Mapper) Line(n int) string {
	if n < 0 || n >= len(m.lineStarts) {
		return ""
	}
	start := m.lineStarts[n]
	end := len(m.content)
	if n+1 < len(m.lineStarts) {
		end = m.lineStarts[n+1] - 1
	}
	return strings.TrimSuffix(m.content[start:end], "\r")
}
