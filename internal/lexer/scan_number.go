package lexer

import (
	"kmpls/internal/token"
)

// Поддержка: 0, 123, 1_000, 0b1010, 0xFF, 1.5, .5, 1e-3, 2.5E+10,
// суффиксы f/F (Float), L (Long), u/U (беззнаковые).
// Диапазоны вида 1..10 не съедаются: точка, за которой снова точка, к числу не относится.
func (lx *Lexer) scanNumber() token.Token {
	start := lx.cursor.Mark()
	kind := token.IntLit

	if lx.cursor.Peek() == '.' {
		lx.cursor.Bump()
		kind = token.FloatLit
		lx.eatDecDigits()
		lx.scanExponent(start)
		return lx.finishNumber(start, kind)
	}

	if lx.cursor.Peek() == '0' {
		switch lx.cursor.PeekAt(1) {
		case 'x', 'X':
			lx.cursor.Bump()
			lx.cursor.Bump()
			if !isHex(lx.cursor.Peek()) {
				sp := lx.cursor.SpanFrom(start)
				lx.report(ErrBadNumber, sp, "expected hexadecimal digit")
				return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
			}
			for isHex(lx.cursor.Peek()) || lx.cursor.Peek() == '_' {
				lx.cursor.Bump()
			}
			return lx.finishNumber(start, kind)
		case 'b', 'B':
			lx.cursor.Bump()
			lx.cursor.Bump()
			for b := lx.cursor.Peek(); b == '0' || b == '1' || b == '_'; b = lx.cursor.Peek() {
				lx.cursor.Bump()
			}
			return lx.finishNumber(start, kind)
		}
	}

	lx.eatDecDigits()

	// дробная часть: только если за точкой цифра
	if lx.cursor.Peek() == '.' && isDec(lx.cursor.PeekAt(1)) {
		lx.cursor.Bump()
		kind = token.FloatLit
		lx.eatDecDigits()
	}
	if lx.scanExponent(start) {
		kind = token.FloatLit
	}
	return lx.finishNumber(start, kind)
}

func (lx *Lexer) eatDecDigits() {
	for isDec(lx.cursor.Peek()) || lx.cursor.Peek() == '_' {
		lx.cursor.Bump()
	}
}

func (lx *Lexer) scanExponent(start Mark) bool {
	b := lx.cursor.Peek()
	if b != 'e' && b != 'E' {
		return false
	}
	save := lx.cursor.Mark()
	lx.cursor.Bump()
	if lx.cursor.Peek() == '+' || lx.cursor.Peek() == '-' {
		lx.cursor.Bump()
	}
	if !isDec(lx.cursor.Peek()) {
		lx.cursor.Reset(save)
		lx.report(ErrBadNumber, lx.cursor.SpanFrom(start), "expected digit after exponent")
		return false
	}
	lx.eatDecDigits()
	return true
}

func (lx *Lexer) finishNumber(start Mark, kind token.Kind) token.Token {
	for {
		switch lx.cursor.Peek() {
		case 'f', 'F':
			kind = token.FloatLit
			lx.cursor.Bump()
			continue
		case 'L', 'u', 'U':
			lx.cursor.Bump()
			continue
		}
		break
	}
	sp := lx.cursor.SpanFrom(start)
	if isIdentContinueByte(lx.cursor.Peek()) {
		for isIdentContinueByte(lx.cursor.Peek()) {
			lx.cursor.Bump()
		}
		sp = lx.cursor.SpanFrom(start)
		lx.report(ErrBadNumber, sp, "invalid number literal suffix")
		return token.Token{Kind: token.Invalid, Span: sp, Text: lx.text(sp)}
	}
	return token.Token{Kind: kind, Span: sp, Text: lx.text(sp)}
}
