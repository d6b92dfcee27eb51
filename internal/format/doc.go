// Package format normalizes whitespace in source files without re-printing
// them: indentation, trailing blanks, blank-line runs, comma spacing and the
// final newline.
//
// Назначение: форматирование для LSP (formatting/rangeFormatting) и CLI.
// Не делает: полноценного pretty-print, переноса строк или IO.
// Зависимости: internal/lexer, internal/source, internal/token.
package format
