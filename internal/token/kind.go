package token

// Kind represents the category of a source token.
type Kind uint8

const (
	// Invalid indicates an erroneous token.
	Invalid Kind = iota
	// EOF marks the end of the source input.
	EOF

	// Ident represents an identifier, soft keyword or backticked name.
	Ident

	// IntLit is an integer literal (123, 0xFF, 1_000L, 7u).
	IntLit
	// FloatLit is a floating point literal (1.5, 2e10, 3f).
	FloatLit
	// CharLit is a character literal ('a', '\n').
	CharLit
	// StringLit is a "..." literal, possibly with templates.
	StringLit
	// RawStringLit is a """...""" literal, possibly with templates.
	RawStringLit

	KwPackage   // package
	KwImport    // import
	KwClass     // class
	KwInterface // interface
	KwObject    // object
	KwFun       // fun
	KwVal       // val
	KwVar       // var
	KwTypeAlias // typealias
	KwThis      // this
	KwSuper     // super
	KwNull      // null
	KwTrue      // true
	KwFalse     // false
	KwIf        // if
	KwElse      // else
	KwWhen      // when
	KwFor       // for
	KwWhile     // while
	KwDo        // do
	KwReturn    // return
	KwBreak     // break
	KwContinue  // continue
	KwTry       // try
	KwCatch     // catch
	KwFinally   // finally
	KwThrow     // throw
	KwAs        // as
	KwIs        // is
	KwIn        // in

	Plus          // +
	Minus         // -
	Star          // *
	Slash         // /
	Percent       // %
	Assign        // =
	PlusAssign    // +=
	MinusAssign   // -=
	StarAssign    // *=
	SlashAssign   // /=
	PercentAssign // %=
	PlusPlus      // ++
	MinusMinus    // --
	EqEq          // ==
	EqEqEq        // ===
	Bang          // !
	BangEq        // !=
	BangEqEq      // !==
	BangBang      // !!
	Lt            // <
	LtEq          // <=
	Gt            // >
	GtEq          // >=
	AndAnd        // &&
	OrOr          // ||
	Amp           // &
	Pipe          // |
	Question      // ?
	QuestionDot   // ?.
	Elvis         // ?:
	Colon         // :
	ColonColon    // ::
	Semicolon     // ;
	Comma         // ,
	Dot           // .
	DotDot        // ..
	RangeUntil    // ..<
	Arrow         // ->
	FatArrow      // =>
	LParen        // (
	RParen        // )
	LBrace        // {
	RBrace        // }
	LBracket      // [
	RBracket      // ]
	At            // @
	Hash          // #
	Dollar        // $

	kindCount
)

var kindNames = [kindCount]string{
	Invalid:      "Invalid",
	EOF:          "EOF",
	Ident:        "Ident",
	IntLit:       "IntLit",
	FloatLit:     "FloatLit",
	CharLit:      "CharLit",
	StringLit:    "StringLit",
	RawStringLit: "RawStringLit",
}

// String returns the source spelling for keywords and operators, and a
// descriptive name for the remaining kinds.
func (k Kind) String() string {
	if k >= kindCount {
		return "Kind(?)"
	}
	if name := kindNames[k]; name != "" {
		return name
	}
	if s, ok := spellings[k]; ok {
		return s
	}
	return "Kind(?)"
}
