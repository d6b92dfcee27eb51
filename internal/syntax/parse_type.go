package syntax

import (
	"strings"

	"kmpls/internal/token"
)

// parseType parses a type reference and records refs for every user type it
// names.
func (p *parser) parseType() *TypeRef {
	start := p.tok().Span.Start
	if p.atWord("suspend") && p.peek(1).Kind == token.LParen {
		p.next()
	}
	var t *TypeRef
	switch {
	case p.at(token.LParen):
		t = p.parseParenType()
	case p.at(token.Ident):
		t = p.parseUserType()
		if p.at(token.Dot) && p.peek(1).Kind == token.LParen {
			// receiver function type: A.(B) -> C
			p.next()
			fn := p.parseParenType()
			fn.Receiver = t
			t = fn
		}
	default:
		p.errorf(ErrExpected, p.tok().Span, "expected a type")
		return &TypeRef{Span: p.span(start)}
	}
	for p.at(token.Question) {
		p.next()
		t.Nullable = true
	}
	// definitely non-null types: T & Any
	if p.at(token.Amp) && p.peek(1).Kind == token.Ident {
		p.next()
		p.parseUserType()
	}
	t.Span = p.span(start)
	t.Text = p.text(t.Span)
	return t
}

func (p *parser) parseParenType() *TypeRef {
	p.next() // (
	var params []*TypeRef
	for !p.at(token.RParen) && !p.atEOF() {
		// named function type parameters: (name: Type) -> R
		if p.at(token.Ident) && p.peek(1).Kind == token.Colon {
			p.next()
			p.next()
		}
		params = append(params, p.parseType())
		if !p.eat(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "')'")
	if p.at(token.Arrow) {
		p.next()
		res := p.parseType()
		return &TypeRef{Function: true, Params: params, Result: res}
	}
	if len(params) == 1 {
		inner := *params[0]
		return &inner
	}
	return &TypeRef{Params: params}
}

func (p *parser) parseUserType() *TypeRef {
	t := &TypeRef{}
	var quals []string
	for {
		idx := p.pos
		tk, ok := p.expect(token.Ident, "type name")
		if !ok {
			break
		}
		if t.Name != "" {
			quals = append(quals, t.Name)
		}
		t.Name = tk.Name()
		t.NameSpan = tk.Span
		t.Args = nil
		nameRef := idx
		if p.at(token.Lt) {
			t.Args = p.parseTypeArgs()
		}
		if p.at(token.Dot) && p.peek(1).Kind == token.Ident && (p.typeStop < 0 || p.pos < p.typeStop) {
			p.next()
			continue
		}
		t.Qualifier = strings.Join(quals, ".")
		p.addRef(Ref{
			Name:      t.Name,
			Span:      t.NameSpan,
			Kind:      RefType,
			Qualifier: t.Qualifier,
			RecvRef:   -1,
			FirstArg:  -1,
		}, nameRef)
		break
	}
	return t
}

func (p *parser) parseTypeArgs() []*TypeRef {
	p.next() // <
	var args []*TypeRef
	for !p.at(token.Gt) && !p.atEOF() {
		if p.at(token.Star) {
			p.next()
		} else {
			if (p.atWord("out") || p.at(token.KwIn)) && (p.peek(1).Kind == token.Ident || p.peek(1).Kind == token.LParen) {
				p.next()
			}
			args = append(args, p.parseType())
		}
		if !p.eat(token.Comma) {
			break
		}
	}
	p.expect(token.Gt, "'>'")
	return args
}

// parseTypeParams parses <T, out R : Bound>.
func (p *parser) parseTypeParams() []TypeParam {
	p.next() // <
	var out []TypeParam
	for !p.at(token.Gt) && !p.atEOF() {
		p.skipAnnotations()
		for p.at(token.KwIn) || p.atWord("out") || p.atWord("reified") {
			if p.peek(1).Kind != token.Ident {
				break
			}
			p.next()
		}
		tk, ok := p.expect(token.Ident, "type parameter name")
		if !ok {
			break
		}
		tp := TypeParam{Name: tk.Name(), Span: tk.Span}
		if p.eat(token.Colon) {
			tp.Bound = p.parseType()
		}
		out = append(out, tp)
		if !p.eat(token.Comma) {
			break
		}
	}
	p.expect(token.Gt, "'>'")
	return out
}

// skipWhere consumes a "where T : A, U : B" clause.
func (p *parser) skipWhere() {
	if !p.atWord("where") {
		return
	}
	p.next()
	for p.at(token.Ident) {
		p.next()
		if !p.eat(token.Colon) {
			break
		}
		p.parseType()
		if !p.eat(token.Comma) {
			break
		}
	}
}

func (p *parser) skipTypeArgs() {
	depth := 0
	for !p.atEOF() {
		switch p.tok().Kind {
		case token.Lt:
			depth++
		case token.Gt:
			depth--
		}
		p.next()
		if depth <= 0 {
			return
		}
	}
}

// typeArgsBeforeCall reports whether the "<" at token index i opens type
// arguments of a call such as listOf<String>().
func (p *parser) typeArgsBeforeCall(i int) bool {
	depth := 0
	for j := i; j < len(p.toks); j++ {
		switch p.toks[j].Kind {
		case token.Lt:
			depth++
		case token.Gt:
			depth--
			if depth == 0 {
				if j+1 >= len(p.toks) {
					return false
				}
				n := p.toks[j+1]
				switch n.Kind {
				case token.LParen, token.ColonColon:
					return !n.NewlineBefore()
				case token.LBrace:
					return !n.NewlineBefore()
				}
				return false
			}
		case token.Ident, token.Comma, token.Dot, token.Question, token.Star,
			token.LParen, token.RParen, token.Arrow, token.Colon, token.KwIn:
		default:
			return false
		}
		if p.toks[j].NewlineBefore() && j != i {
			return false
		}
	}
	return false
}
