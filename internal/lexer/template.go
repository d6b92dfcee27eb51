package lexer

import (
	"kmpls/internal/source"
	"kmpls/internal/token"
)

// TemplateExpr is one embedded expression of a string template.
type TemplateExpr struct {
	// Span covers the name for "$name" and the inner expression for "${...}".
	Span   source.Span
	Simple bool
}

// TemplateExprs lists the template expressions inside a string token.
// Tokens of other kinds yield nil.
func TemplateExprs(file *source.File, tok token.Token) []TemplateExpr {
	var quotes uint32
	switch tok.Kind {
	case token.StringLit:
		quotes = 1
	case token.RawStringLit:
		quotes = 3
	default:
		return nil
	}
	if tok.Span.Len() < 2*quotes {
		return nil
	}
	raw := quotes == 3
	lx := NewRange(file, tok.Span.Start+quotes, tok.Span.End-quotes, Options{})
	c := &lx.cursor
	var out []TemplateExpr
	for !c.EOF() {
		b := c.Peek()
		switch {
		case b == '\\' && !raw:
			c.Bump()
			c.Bump()
		case b == '$' && c.PeekAt(1) == '{':
			c.Bump()
			c.Bump()
			inner := c.Off
			lx.skipTemplateExpr(raw)
			end := c.Off
			if end > inner && file.Content[end-1] == '}' {
				end--
			}
			out = append(out, TemplateExpr{Span: source.Span{File: file.ID, Start: inner, End: end}})
		case b == '$' && isIdentStartByte(c.PeekAt(1)):
			c.Bump()
			start := c.Mark()
			for isIdentContinueByte(c.Peek()) {
				c.Bump()
			}
			out = append(out, TemplateExpr{Span: c.SpanFrom(start), Simple: true})
		default:
			c.Bump()
		}
	}
	return out
}
