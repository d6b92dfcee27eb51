// Package token defines lexical token kinds and trivia for kmpls sources.
// Invariants:
//   - Token.Text is exactly the source slice covered by Token.Span.
//   - Whitespace, newlines and comments never appear in the token stream; they
//     are attached to the following token as Leading trivia.
//   - Soft keywords and modifiers (constructor, init, expect, actual, data,
//     override, ...) are lexed as Ident. The parser decides their role from
//     position, which keeps them usable as ordinary names.
//   - String templates are a single StringLit/RawStringLit token; template
//     expressions are re-lexed on demand by the lexer package.
package token
