package lexer

import (
	"kmpls/internal/source"
	"kmpls/internal/token"
)

type Lexer struct {
	file   *source.File
	cursor Cursor
	opts   Options
	look   *token.Token   // 1 элементный буфер для токена
	hold   []token.Trivia // накопленные leading trivia
}

func New(file *source.File, opts Options) *Lexer {
	return &Lexer{
		file:   file,
		cursor: NewCursor(file),
		opts:   opts,
	}
}

// NewRange lexes only [start, end) of file. Used to re-lex string template
// expressions in place, so spans stay file-relative.
func NewRange(file *source.File, start, end uint32, opts Options) *Lexer {
	return &Lexer{
		file:   file,
		cursor: NewRangeCursor(file, start, end),
		opts:   opts,
	}
}

// Tokenize lexes the whole file. The returned slice always ends with EOF.
func Tokenize(file *source.File, opts Options) []token.Token {
	lx := New(file, opts)
	return lx.drain(len(file.Content)/4 + 1)
}

// TokenizeRange lexes [start, end) of file, ending with EOF.
func TokenizeRange(file *source.File, start, end uint32, opts Options) []token.Token {
	lx := NewRange(file, start, end, opts)
	return lx.drain(8)
}

func (lx *Lexer) drain(capHint int) []token.Token {
	out := make([]token.Token, 0, capHint)
	for {
		tok := lx.Next()
		out = append(out, tok)
		if tok.Kind == token.EOF {
			return out
		}
	}
}

// Next возвращает следующий значимый токен с уже собранным Leading.
// После EOF всегда возвращает EOF; trivia перед EOF приклеиваются к нему,
// чтобы комментарии в конце файла не терялись.
func (lx *Lexer) Next() token.Token {
	if lx.look != nil {
		tok := *lx.look
		lx.look = nil
		return tok
	}

	lx.collectLeadingTrivia()

	if lx.cursor.EOF() {
		tok := token.Token{Kind: token.EOF, Span: lx.emptySpan(), Leading: lx.hold}
		lx.hold = nil
		return tok
	}

	ch := lx.cursor.Peek()
	var tok token.Token

	switch {
	case isIdentStartByte(ch), ch == '`':
		tok = lx.scanIdentOrKeyword()
	case ch >= utf8RuneSelf:
		// возможный Unicode идентификатор
		tok = lx.scanIdentOrKeyword()
	case isDec(ch):
		tok = lx.scanNumber()
	case ch == '.' && lx.isNumberAfterDot():
		tok = lx.scanNumber()
	case ch == '"':
		tok = lx.scanString()
	case ch == '\'':
		tok = lx.scanChar()
	default:
		tok = lx.scanOperatorOrPunct()
	}

	tok.Leading = lx.hold
	lx.hold = nil
	return tok
}

// Peek возвращает следующий токен, не потребляя его.
func (lx *Lexer) Peek() token.Token {
	t := lx.Next()
	lx.look = &t
	return t
}

func (lx *Lexer) emptySpan() source.Span {
	return source.Span{File: lx.file.ID, Start: lx.cursor.Off, End: lx.cursor.Off}
}

func (lx *Lexer) text(sp source.Span) string {
	return string(lx.file.Content[sp.Start:sp.End])
}
