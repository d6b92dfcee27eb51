package lexer

import (
	"kmpls/internal/token"
)

// collectLeadingTrivia собирает подряд идущие trivia перед значимым токеном.
//   - ' ', '\t', '\f' и BOM коалесцируются в один TriviaSpace
//   - '\n', '\r\n' и одиночный '\r' коалесцируются в один TriviaNewline
//   - //... до конца строки -> TriviaLineComment
//   - /* ... */ -> TriviaBlockComment (вложенность поддерживается)
//   - /** ... */ -> TriviaDocBlock
//   - #! в самом начале файла -> TriviaShebang
func (lx *Lexer) collectLeadingTrivia() {
	lx.hold = lx.hold[:0]
	for !lx.cursor.EOF() {
		start := lx.cursor.Mark()
		b := lx.cursor.Peek()

		if b == ' ' || b == '\t' || b == '\f' || lx.atBOM() {
			for {
				if lx.atBOM() {
					lx.cursor.Off += 3
					continue
				}
				b2 := lx.cursor.Peek()
				if b2 != ' ' && b2 != '\t' && b2 != '\f' {
					break
				}
				lx.cursor.Bump()
			}
			lx.pushTrivia(token.TriviaSpace, start)
			continue
		}

		if b == '\n' || b == '\r' {
			for {
				b2 := lx.cursor.Peek()
				if b2 != '\n' && b2 != '\r' {
					break
				}
				lx.cursor.Bump()
			}
			lx.pushTrivia(token.TriviaNewline, start)
			continue
		}

		if b == '#' && lx.cursor.Off == 0 && lx.cursor.PeekAt(1) == '!' {
			for !lx.cursor.EOF() && lx.cursor.Peek() != '\n' {
				lx.cursor.Bump()
			}
			lx.pushTrivia(token.TriviaShebang, start)
			continue
		}

		if b == '/' && lx.scanCommentIntoHold() {
			continue
		}
		break
	}
}

func (lx *Lexer) atBOM() bool {
	b0, b1, b2, ok := lx.cursor.Peek3()
	return ok && b0 == 0xEF && b1 == 0xBB && b2 == 0xBF
}

func (lx *Lexer) pushTrivia(kind token.TriviaKind, start Mark) {
	sp := lx.cursor.SpanFrom(start)
	lx.hold = append(lx.hold, token.Trivia{Kind: kind, Span: sp, Text: lx.text(sp)})
}

func (lx *Lexer) scanCommentIntoHold() bool {
	start := lx.cursor.Mark()
	switch lx.cursor.PeekAt(1) {
	case '/':
		for !lx.cursor.EOF() && lx.cursor.Peek() != '\n' {
			lx.cursor.Bump()
		}
		// '\r' из CRLF оставляем newline-тривии
		if lx.cursor.Off > uint32(start) && lx.file.Content[lx.cursor.Off-1] == '\r' {
			lx.cursor.Off--
		}
		lx.pushTrivia(token.TriviaLineComment, start)
		return true

	case '*':
		lx.cursor.Bump()
		lx.cursor.Bump()
		kind := token.TriviaBlockComment
		if lx.cursor.Peek() == '*' && lx.cursor.PeekAt(1) != '/' {
			kind = token.TriviaDocBlock
		}
		depth := 1
		for !lx.cursor.EOF() && depth > 0 {
			if b0, b1, ok := lx.cursor.Peek2(); ok {
				if b0 == '/' && b1 == '*' {
					lx.cursor.Bump()
					lx.cursor.Bump()
					depth++
					continue
				}
				if b0 == '*' && b1 == '/' {
					lx.cursor.Bump()
					lx.cursor.Bump()
					depth--
					continue
				}
			}
			lx.cursor.Bump()
		}
		sp := lx.cursor.SpanFrom(start)
		if depth > 0 {
			lx.report(ErrUnterminatedComment, sp, "unterminated block comment")
		}
		lx.pushTrivia(kind, start)
		return true

	default:
		// это не комментарий, пусть сканируется как оператор '/'
		return false
	}
}
