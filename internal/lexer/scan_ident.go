package lexer

import (
	"kmpls/internal/token"
)

const utf8RuneSelf = 0x80

// scanIdentOrKeyword сканирует идентификатор (в том числе `в обратных
// кавычках`) и проверяет жёсткие ключевые слова через LookupKeyword.
func (lx *Lexer) scanIdentOrKeyword() token.Token {
	start := lx.cursor.Mark()

	if lx.cursor.Peek() == '`' {
		lx.cursor.Bump()
		for !lx.cursor.EOF() {
			b := lx.cursor.Peek()
			if b == '`' {
				lx.cursor.Bump()
				sp := lx.cursor.SpanFrom(start)
				return token.Token{Kind: token.Ident, Span: sp, Text: lx.text(sp)}
			}
			if b == '\n' {
				break
			}
			lx.cursor.Bump()
		}
		sp := lx.cursor.SpanFrom(start)
		lx.report(ErrUnterminatedString, sp, "unterminated backtick identifier")
		return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
	}

	r, sz := lx.peekRune()
	if sz == 0 {
		sp := lx.cursor.SpanFrom(start)
		return token.Token{Kind: token.Invalid, Span: sp}
	}
	if r < utf8RuneSelf {
		if !isIdentStartByte(byte(r)) {
			return lx.scanOperatorOrPunct()
		}
		lx.cursor.Bump()
	} else {
		if !isIdentStartRune(r) {
			lx.bumpRune()
			sp := lx.cursor.SpanFrom(start)
			lx.report(ErrUnknownChar, sp, "unknown character")
			return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
		}
		lx.bumpRune()
	}
	for {
		r2, sz2 := lx.peekRune()
		if sz2 == 0 || !isIdentContinueRune(r2) {
			break
		}
		lx.bumpRune()
	}

	sp := lx.cursor.SpanFrom(start)
	text := lx.text(sp)
	if k, ok := token.LookupKeyword(text); ok {
		return token.Token{Kind: k, Span: sp, Text: text}
	}
	return token.Token{Kind: token.Ident, Span: sp, Text: text}
}
