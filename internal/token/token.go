package token

import (
	"strings"

	"kmpls/internal/source"
)

// Token represents a single source token with its location and trivia.
type Token struct {
	Kind    Kind
	Span    source.Span
	Text    string
	Leading []Trivia
}

// IsLiteral reports whether the token is a numeric, character, string, boolean
// or null literal.
func (t Token) IsLiteral() bool {
	switch t.Kind {
	case IntLit, FloatLit, CharLit, StringLit, RawStringLit, KwTrue, KwFalse, KwNull:
		return true
	default:
		return false
	}
}

// IsKeyword reports whether the token is a hard keyword.
func (t Token) IsKeyword() bool {
	return t.Kind >= KwPackage && t.Kind <= KwIn
}

// IsPunctOrOp reports whether the token is punctuation or an operator.
func (t Token) IsPunctOrOp() bool {
	return t.Kind >= Plus && t.Kind < kindCount
}

// IsIdent reports whether the token is an identifier.
func (t Token) IsIdent() bool { return t.Kind == Ident }

// IsWord reports whether the token is an identifier or the given soft keyword.
func (t Token) IsWord(word string) bool {
	return t.Kind == Ident && t.Text == word
}

// Name returns the identifier text with backticks removed.
func (t Token) Name() string {
	if len(t.Text) >= 2 && t.Text[0] == '`' && t.Text[len(t.Text)-1] == '`' {
		return t.Text[1 : len(t.Text)-1]
	}
	return t.Text
}

// NewlineBefore reports whether leading trivia contains a line break.
func (t Token) NewlineBefore() bool {
	for _, tv := range t.Leading {
		if tv.Kind == TriviaNewline {
			return true
		}
		if tv.Kind == TriviaBlockComment || tv.Kind == TriviaDocBlock {
			if strings.Contains(tv.Text, "\n") {
				return true
			}
		}
	}
	return false
}

// Doc returns the text of the closest KDoc block preceding the token, if any.
func (t Token) Doc() string {
	for i := len(t.Leading) - 1; i >= 0; i-- {
		tv := t.Leading[i]
		switch tv.Kind {
		case TriviaDocBlock:
			return tv.Text
		case TriviaSpace, TriviaNewline:
			continue
		default:
			return ""
		}
	}
	return ""
}
