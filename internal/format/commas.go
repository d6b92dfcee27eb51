package format

import (
	"kmpls/internal/source"
	"kmpls/internal/token"
)

type commaEdit struct {
	start int
	end   int
	data  string
}

// NormalizeCommas returns a copy of content with whitespace around commas
// normalized on lines first..last (last < 0 means through the end).
//
// Rules:
//   - spaces before ',' on the same line are removed;
//   - a single space follows ',' unless the next token is ')', ']', '>',
//     another comma, or sits on the next line or behind a comment.
//
// Line breaks are never added or removed, so line numbers stay valid.
func NormalizeCommas(sf *source.File, toks []token.Token, first, last int) []byte {
	content := sf.Content
	inRange := func(off uint32) bool {
		line := int(sf.PositionOf(off).Line)
		return line >= first && (last < 0 || line <= last)
	}
	var edits []commaEdit
	for i, tk := range toks {
		if tk.Kind != token.Comma || !inRange(tk.Span.Start) {
			continue
		}
		if i > 0 && onlySpaces(tk.Leading) && len(tk.Leading) > 0 {
			prev := toks[i-1]
			addCommaEdit(&edits, content, int(prev.Span.End), int(tk.Span.Start), "")
		}
		if i+1 >= len(toks) {
			continue
		}
		next := toks[i+1]
		switch next.Kind {
		case token.RParen, token.RBracket, token.Gt, token.Comma, token.EOF:
			continue
		}
		if !onlySpaces(next.Leading) {
			continue
		}
		addCommaEdit(&edits, content, int(tk.Span.End), int(next.Span.Start), " ")
	}
	if len(edits) == 0 {
		return append([]byte(nil), content...)
	}
	out := make([]byte, 0, len(content)+len(edits))
	pos := 0
	for _, e := range edits {
		out = append(out, content[pos:e.start]...)
		out = append(out, e.data...)
		pos = e.end
	}
	return append(out, content[pos:]...)
}

func onlySpaces(trivia []token.Trivia) bool {
	for _, tv := range trivia {
		if tv.Kind != token.TriviaSpace {
			return false
		}
	}
	return true
}

// addCommaEdit records a replacement unless the gap already matches. Edits
// arrive in token order, so the list stays sorted and non-overlapping.
func addCommaEdit(out *[]commaEdit, buf []byte, start, end int, data string) {
	if start > end || end > len(buf) {
		return
	}
	if string(buf[start:end]) == data {
		return
	}
	*out = append(*out, commaEdit{start: start, end: end, data: data})
}
