package format

import (
	"bytes"
	"strings"

	"kmpls/internal/lexer"
	"kmpls/internal/source"
	"kmpls/internal/token"
)

// Options control the whitespace passes.
type Options struct {
	IndentWidth int // columns per tab stop
	UseTabs     bool
	// MaxBlankLines caps runs of empty lines; zero means one.
	MaxBlankLines int
	// KeepCommas disables the comma spacing pass.
	KeepCommas bool
}

func (o Options) withDefaults() Options {
	if o.IndentWidth <= 0 {
		o.IndentWidth = 4
	}
	if o.MaxBlankLines <= 0 {
		o.MaxBlankLines = 1
	}
	return o
}

// Source formats a whole file.
func Source(path string, content []byte, opt Options) []byte {
	return Lines(path, content, opt, 0, -1)
}

// Lines formats lines first..last of content and copies the rest
// unchanged. last < 0 means through the end, in which case trailing blank
// lines are dropped and the final newline is ensured.
func Lines(path string, content []byte, opt Options, first, last int) []byte {
	opt = opt.withDefaults()
	if len(bytes.TrimSpace(content)) == 0 && last < 0 && first == 0 {
		return nil
	}
	sf := source.NewFile(path, content)
	toks := lexer.Tokenize(sf, lexer.Options{})
	if !opt.KeepCommas {
		content = NormalizeCommas(sf, toks, first, last)
		sf = source.NewFile(path, content)
		toks = lexer.Tokenize(sf, lexer.Options{})
	}
	guard := verbatimLines(sf, toks)

	w := NewWriter(len(content), opt)
	eol := "\n"
	lines := strings.SplitAfter(string(content), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, raw := range lines {
		line, end := splitEOL(raw)
		if i == 0 && end != "" {
			eol = end
		}
		if i < first || (last >= 0 && i > last) {
			w.Verbatim(line, end)
			continue
		}
		g := guard[i]
		body := line
		if !g.end {
			body = strings.TrimRight(body, " \t")
		}
		if g.start {
			w.Verbatim(body, end)
			continue
		}
		if body == "" {
			if end == "" {
				continue
			}
			w.Blank(end)
			continue
		}
		cols, rest := indentOf(body, opt.IndentWidth)
		w.Line(cols, rest, end)
	}
	if last < 0 {
		w.Finish(eol)
	}
	return w.Bytes()
}

func splitEOL(raw string) (line, eol string) {
	if strings.HasSuffix(raw, "\r\n") {
		return raw[:len(raw)-2], "\r\n"
	}
	if strings.HasSuffix(raw, "\n") {
		return raw[:len(raw)-1], "\n"
	}
	return raw, ""
}

// indentOf measures leading whitespace in columns, expanding tabs to the
// next stop.
func indentOf(line string, width int) (int, string) {
	cols := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			cols++
		case '\t':
			cols += width - cols%width
		default:
			return cols, line[i:]
		}
	}
	return cols, ""
}

// lineGuard marks the parts of a line that belong to a multi-line raw
// string and must not be touched.
type lineGuard struct {
	start bool // the line begins inside the literal
	end   bool // the line break is inside the literal
}

func verbatimLines(sf *source.File, toks []token.Token) []lineGuard {
	guard := make([]lineGuard, sf.LineCount()+1)
	for _, tk := range toks {
		if tk.Kind != token.RawStringLit {
			continue
		}
		from := int(sf.PositionOf(tk.Span.Start).Line)
		to := int(sf.PositionOf(tk.Span.End).Line)
		for l := from; l <= to && l < len(guard); l++ {
			if l > from {
				guard[l].start = true
			}
			if l < to {
				guard[l].end = true
			}
		}
	}
	return guard
}
