package lexer

import (
	"kmpls/internal/token"
)

// scanString сканирует "..." и """...""". Шаблоны ${...} пропускаются со
// счётчиком скобок, вложенные строки внутри шаблона сканируются рекурсивно.
func (lx *Lexer) scanString() token.Token {
	start := lx.cursor.Mark()
	if b0, b1, b2, ok := lx.cursor.Peek3(); ok && b0 == '"' && b1 == '"' && b2 == '"' {
		return lx.scanRawString(start)
	}
	lx.cursor.Bump() // opening '"'
	for !lx.cursor.EOF() {
		b := lx.cursor.Peek()
		switch {
		case b == '"':
			lx.cursor.Bump()
			sp := lx.cursor.SpanFrom(start)
			return token.Token{Kind: token.StringLit, Span: sp, Text: lx.text(sp)}
		case b == '\\':
			lx.cursor.Bump()
			if lx.cursor.EOF() || lx.cursor.Peek() == '\n' {
				continue
			}
			lx.cursor.Bump()
		case b == '$' && lx.cursor.PeekAt(1) == '{':
			lx.cursor.Bump()
			lx.cursor.Bump()
			lx.skipTemplateExpr(false)
		case b == '\n':
			sp := lx.cursor.SpanFrom(start)
			lx.report(ErrUnterminatedString, sp, "newline in string literal")
			return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
		default:
			lx.cursor.Bump()
		}
	}
	sp := lx.cursor.SpanFrom(start)
	lx.report(ErrUnterminatedString, sp, "unterminated string literal")
	return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
}

// scanRawString: закрывающая последовательность: последние три кавычки
// серии, лишние кавычки перед ними принадлежат содержимому.
func (lx *Lexer) scanRawString(start Mark) token.Token {
	lx.cursor.Bump()
	lx.cursor.Bump()
	lx.cursor.Bump()
	for !lx.cursor.EOF() {
		b := lx.cursor.Peek()
		if b == '"' {
			run := 0
			for lx.cursor.Peek() == '"' {
				lx.cursor.Bump()
				run++
			}
			if run >= 3 {
				sp := lx.cursor.SpanFrom(start)
				return token.Token{Kind: token.RawStringLit, Span: sp, Text: lx.text(sp)}
			}
			continue
		}
		if b == '$' && lx.cursor.PeekAt(1) == '{' {
			lx.cursor.Bump()
			lx.cursor.Bump()
			lx.skipTemplateExpr(true)
			continue
		}
		lx.cursor.Bump()
	}
	sp := lx.cursor.SpanFrom(start)
	lx.report(ErrUnterminatedString, sp, "unterminated raw string literal")
	return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
}

// skipTemplateExpr consumes up to and including the '}' closing a "${".
// Only raw strings allow the expression to span lines.
func (lx *Lexer) skipTemplateExpr(raw bool) {
	depth := 1
	for !lx.cursor.EOF() {
		switch lx.cursor.Peek() {
		case '{':
			depth++
			lx.cursor.Bump()
		case '}':
			depth--
			lx.cursor.Bump()
			if depth == 0 {
				return
			}
		case '"':
			lx.scanString()
		case '\'':
			lx.scanChar()
		case '\n':
			if !raw {
				// перевод строки внутри шаблона обычной строки, строка не закрыта
				return
			}
			lx.cursor.Bump()
		default:
			lx.cursor.Bump()
		}
	}
}

func (lx *Lexer) scanChar() token.Token {
	start := lx.cursor.Mark()
	lx.cursor.Bump() // opening '\''
	for !lx.cursor.EOF() {
		b := lx.cursor.Peek()
		switch b {
		case '\'':
			lx.cursor.Bump()
			sp := lx.cursor.SpanFrom(start)
			return token.Token{Kind: token.CharLit, Span: sp, Text: lx.text(sp)}
		case '\\':
			lx.cursor.Bump()
			if !lx.cursor.EOF() && lx.cursor.Peek() != '\n' {
				lx.cursor.Bump()
			}
		case '\n':
			sp := lx.cursor.SpanFrom(start)
			lx.report(ErrUnterminatedChar, sp, "unterminated character literal")
			return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
		default:
			lx.cursor.Bump()
		}
	}
	sp := lx.cursor.SpanFrom(start)
	lx.report(ErrUnterminatedChar, sp, "unterminated character literal")
	return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
}
