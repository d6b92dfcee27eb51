package token

var keywords = map[string]Kind{
	"package":   KwPackage,
	"import":    KwImport,
	"class":     KwClass,
	"interface": KwInterface,
	"object":    KwObject,
	"fun":       KwFun,
	"val":       KwVal,
	"var":       KwVar,
	"typealias": KwTypeAlias,
	"this":      KwThis,
	"super":     KwSuper,
	"null":      KwNull,
	"true":      KwTrue,
	"false":     KwFalse,
	"if":        KwIf,
	"else":      KwElse,
	"when":      KwWhen,
	"for":       KwFor,
	"while":     KwWhile,
	"do":        KwDo,
	"return":    KwReturn,
	"break":     KwBreak,
	"continue":  KwContinue,
	"try":       KwTry,
	"catch":     KwCatch,
	"finally":   KwFinally,
	"throw":     KwThrow,
	"as":        KwAs,
	"is":        KwIs,
	"in":        KwIn,
}

var spellings = func() map[Kind]string {
	out := map[Kind]string{
		Plus: "+", Minus: "-", Star: "*", Slash: "/", Percent: "%",
		Assign: "=", PlusAssign: "+=", MinusAssign: "-=", StarAssign: "*=",
		SlashAssign: "/=", PercentAssign: "%=", PlusPlus: "++", MinusMinus: "--",
		EqEq: "==", EqEqEq: "===", Bang: "!", BangEq: "!=", BangEqEq: "!==",
		BangBang: "!!", Lt: "<", LtEq: "<=", Gt: ">", GtEq: ">=",
		AndAnd: "&&", OrOr: "||", Amp: "&", Pipe: "|", Question: "?",
		QuestionDot: "?.", Elvis: "?:", Colon: ":", ColonColon: "::",
		Semicolon: ";", Comma: ",", Dot: ".", DotDot: "..", RangeUntil: "..<",
		Arrow: "->", FatArrow: "=>", LParen: "(", RParen: ")", LBrace: "{",
		RBrace: "}", LBracket: "[", RBracket: "]", At: "@", Hash: "#", Dollar: "$",
	}
	for word, k := range keywords {
		out[k] = word
	}
	return out
}()

// LookupKeyword возвращает вид токена для жёсткого ключевого слова.
// Регистр учитывается.
func LookupKeyword(ident string) (Kind, bool) {
	k, ok := keywords[ident]
	return k, ok
}

// Keywords returns the hard keyword spellings.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for word := range keywords {
		out = append(out, word)
	}
	return out
}

// modifiers are soft keywords that may prefix a declaration.
var modifiers = map[string]struct{}{
	"expect": {}, "actual": {},
	"public": {}, "private": {}, "protected": {}, "internal": {},
	"abstract": {}, "open": {}, "final": {}, "sealed": {}, "override": {},
	"data": {}, "enum": {}, "annotation": {}, "inner": {}, "value": {},
	"companion": {}, "inline": {}, "noinline": {}, "crossinline": {},
	"suspend": {}, "operator": {}, "infix": {}, "tailrec": {}, "external": {},
	"lateinit": {}, "const": {}, "vararg": {},
}

// IsModifier reports whether word may act as a declaration modifier.
func IsModifier(word string) bool {
	_, ok := modifiers[word]
	return ok
}

// SoftKeywords lists contextual words offered by completion alongside the
// hard keywords.
func SoftKeywords() []string {
	return []string{
		"expect", "actual", "override", "private", "public", "internal", "protected",
		"abstract", "open", "sealed", "data", "enum", "companion", "inline", "suspend",
		"operator", "infix", "lateinit", "const", "vararg", "constructor", "init", "by",
		"where", "get", "set",
	}
}
