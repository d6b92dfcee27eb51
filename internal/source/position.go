package source

import (
	"sort"
	"unicode/utf8"

	"fortio.org/safecast"
)

const maxUint32 = ^uint32(0)

// SafeUint32 narrows n to uint32, clamping negatives to 0 and overflow to max.
func SafeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return maxUint32
	}
	return v
}

func (f *File) size() uint32 {
	return SafeUint32(len(f.Content))
}

// LineCount returns the number of lines; an empty file has one line.
func (f *File) LineCount() int {
	return len(f.LineIdx) + 1
}

// LineBounds returns the byte range of line without its terminator.
// A trailing '\r' before '\n' is excluded.
func (f *File) LineBounds(line int) (start, end uint32) {
	if line < 0 {
		return 0, 0
	}
	if line >= f.LineCount() {
		n := f.size()
		return n, n
	}
	if line > 0 {
		start = f.LineIdx[line-1] + 1
	}
	end = f.size()
	if line < len(f.LineIdx) {
		end = f.LineIdx[line]
	}
	if end > start && f.Content[end-1] == '\r' {
		end--
	}
	return start, end
}

// LineText returns the text of line without its terminator.
func (f *File) LineText(line int) string {
	start, end := f.LineBounds(line)
	return string(f.Content[start:end])
}

// Text returns the source text covered by span.
func (f *File) Text(span Span) string {
	n := f.size()
	start, end := span.Start, span.End
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	if end < start {
		return ""
	}
	return string(f.Content[start:end])
}

// OffsetOf converts an editor position to a byte offset. Columns past the end
// of a line clamp to the line end; lines past the end clamp to file end.
// A column that falls inside a surrogate pair resolves to the rune start.
func (f *File) OffsetOf(pos Position) uint32 {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	if pos.Line >= f.LineCount() {
		return f.size()
	}
	lineStart, lineEnd := f.LineBounds(pos.Line)
	units := 0
	off := lineStart
	for off < lineEnd && units < pos.Character {
		r, size := utf8.DecodeRune(f.Content[off:lineEnd])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		off += SafeUint32(size)
	}
	return off
}

// PositionOf converts a byte offset to an editor position. Offsets inside a
// multi-byte rune resolve to the rune start; offsets inside a line terminator
// resolve to the line end.
func (f *File) PositionOf(offset uint32) Position {
	if offset > f.size() {
		offset = f.size()
	}
	lineIdx := f.LineIdx
	line := sort.Search(len(lineIdx), func(i int) bool { return lineIdx[i] >= offset })
	lineStart, lineEnd := f.LineBounds(line)
	if offset > lineEnd {
		offset = lineEnd
	}
	units := 0
	for off := lineStart; off < offset; {
		r, size := utf8.DecodeRune(f.Content[off:offset])
		if r == utf8.RuneError && size <= 1 && !utf8.FullRune(f.Content[off:offset]) {
			break
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		off += SafeUint32(size)
	}
	return Position{Line: line, Character: units}
}

// RangeOf converts a span into an editor range.
func (f *File) RangeOf(span Span) Range {
	return Range{Start: f.PositionOf(span.Start), End: f.PositionOf(span.End)}
}

// SpanOf converts an editor range into a span of this file.
func (f *File) SpanOf(r Range) Span {
	start := f.OffsetOf(r.Start)
	end := f.OffsetOf(r.End)
	if end < start {
		end = start
	}
	return Span{File: f.ID, Start: start, End: end}
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}
