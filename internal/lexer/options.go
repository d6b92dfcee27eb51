package lexer

import (
	"kmpls/internal/source"
)

// Reporter: тонкий интерфейс, чтобы лексер не зависел от слоя диагностик.
type Reporter interface {
	Report(code string, span source.Span, msg string)
}

// Error codes reported by the lexer.
const (
	ErrUnterminatedString  = "LEX_UNTERMINATED_STRING"
	ErrUnterminatedChar    = "LEX_UNTERMINATED_CHAR"
	ErrUnterminatedComment = "LEX_UNTERMINATED_COMMENT"
	ErrBadNumber           = "LEX_BAD_NUMBER"
	ErrUnknownChar         = "LEX_UNKNOWN_CHAR"
)

type Options struct {
	Reporter Reporter // может быть nil, тогда ошибки игнорируем, но продолжаем лексить
}

func (lx *Lexer) report(code string, sp source.Span, msg string) {
	if lx.opts.Reporter != nil {
		lx.opts.Reporter.Report(code, sp, msg)
	}
}
