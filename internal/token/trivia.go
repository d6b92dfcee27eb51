package token

import "kmpls/internal/source"

type TriviaKind uint8

const (
	TriviaSpace TriviaKind = iota
	TriviaNewline
	TriviaLineComment
	TriviaBlockComment
	TriviaDocBlock // /** ... */ (KDoc)
	TriviaShebang
)

type Trivia struct {
	Kind TriviaKind
	Span source.Span
	Text string
}

// IsComment reports whether the trivia is any comment form.
func (t Trivia) IsComment() bool {
	switch t.Kind {
	case TriviaLineComment, TriviaBlockComment, TriviaDocBlock, TriviaShebang:
		return true
	default:
		return false
	}
}
