package syntax

import (
	"kmpls/internal/lexer"
	"kmpls/internal/source"
	"kmpls/internal/token"
)

type stopMode uint8

const (
	// stopNewline ends the expression at a line break that cannot continue it.
	stopNewline stopMode = 1 << iota
	stopComma
	stopLBrace
)

const maxNesting = 256

// scanExpr consumes one expression in the current scope. It always stops at
// an unmatched closing bracket, a semicolon or EOF.
func (p *parser) scanExpr(mode stopMode) {
	var stack []int
	first := true
	for !p.atEOF() {
		t := p.tok()
		if len(stack) == 0 {
			switch t.Kind {
			case token.Semicolon, token.RParen, token.RBracket, token.RBrace:
				return
			case token.Comma:
				if mode&stopComma != 0 {
					return
				}
			case token.LBrace:
				if mode&stopLBrace != 0 {
					return
				}
			}
			if !first && mode&stopNewline != 0 && t.NewlineBefore() && !p.continuesLine() {
				return
			}
		}
		first = false
		before := p.pos
		p.step(&stack)
		if p.pos == before && len(stack) == 0 {
			if p.at(token.RBrace) {
				return
			}
			p.next()
		}
	}
}

// scanStatement consumes one top-level script statement.
func (p *parser) scanStatement() { p.scanExpr(stopNewline) }

// continuesLine reports whether the current token, which starts a new line,
// continues the expression ended by the previous token.
func (p *parser) continuesLine() bool {
	switch p.tok().Kind {
	case token.Dot, token.QuestionDot, token.Elvis, token.AndAnd, token.OrOr,
		token.KwAs, token.KwElse, token.ColonColon:
		return true
	}
	prevIdx := p.pos - 1
	if prevIdx < 0 {
		return false
	}
	switch p.toks[prevIdx].Kind {
	case token.Dot, token.QuestionDot, token.Elvis, token.AndAnd, token.OrOr,
		token.Plus, token.Minus, token.Star, token.Slash, token.Percent,
		token.Assign, token.PlusAssign, token.MinusAssign, token.StarAssign,
		token.SlashAssign, token.PercentAssign, token.EqEq, token.EqEqEq,
		token.BangEq, token.BangEqEq, token.Lt, token.LtEq, token.Gt, token.GtEq,
		token.Comma, token.LParen, token.LBracket, token.Arrow, token.Colon,
		token.ColonColon, token.DotDot, token.RangeUntil, token.Bang,
		token.KwIn, token.KwIs, token.KwAs, token.KwElse, token.KwDo, token.KwTry, token.At:
		return true
	case token.RParen:
		// if (...) / while (...) headers continue on the next line
		if open, ok := p.openOf[prevIdx]; ok && open > 0 {
			switch p.toks[open-1].Kind {
			case token.KwIf, token.KwWhile, token.KwFor, token.KwWhen, token.KwCatch:
				return true
			}
		}
	}
	return false
}

// blockContents consumes statements up to and including the "}" matching
// open, which has already been consumed.
func (p *parser) blockContents(open token.Token) {
	var stack []int
	for !p.atEOF() {
		if len(stack) == 0 {
			switch p.tok().Kind {
			case token.RBrace:
				p.next()
				return
			case token.RParen, token.RBracket:
				p.errorf(ErrUnexpected, p.tok().Span, "unexpected %q", p.tok().Text)
				p.next()
				continue
			}
		}
		before := p.pos
		p.step(&stack)
		if p.pos == before && len(stack) == 0 && !p.at(token.RBrace) {
			p.next()
		}
	}
	p.errorf(ErrUnclosed, open.Span, "unclosed '{'")
}

// parseBlock consumes "{ ... }" as a new scope.
func (p *parser) parseBlock(kind ScopeKind, owner *Decl) *Scope {
	open := p.next()
	s := p.pushScope(kind, open.Span.Start, owner)
	if p.nesting > maxNesting {
		p.pos--
		p.skipBalanced()
	} else {
		p.nesting++
		p.blockContents(open)
		p.nesting--
	}
	p.popScope(s)
	return s
}

// scanGroup consumes a parenthesized or bracketed group, recording refs.
func (p *parser) scanGroup() {
	var stack []int
	p.step(&stack)
	for len(stack) > 0 && !p.atEOF() {
		before := p.pos
		p.step(&stack)
		if p.pos == before {
			return
		}
	}
}

// step consumes one token or one nested construct.
func (p *parser) step(stack *[]int) {
	t := p.tok()
	i := p.pos
	switch t.Kind {
	case token.LParen, token.LBracket:
		*stack = append(*stack, i)
		p.next()
	case token.RParen, token.RBracket:
		if n := len(*stack); n > 0 {
			p.openOf[i] = (*stack)[n-1]
			*stack = (*stack)[:n-1]
		}
		p.next()
	case token.RBrace:
		if len(*stack) > 0 {
			p.errorf(ErrUnclosed, p.toks[(*stack)[0]].Span, "unclosed %q", p.toks[(*stack)[0]].Text)
			*stack = (*stack)[:0]
			return
		}
		p.next()
	case token.LBrace:
		p.parseBraceExpr()
	case token.KwVal, token.KwVar:
		p.parseLocalProperty()
	case token.KwFun, token.KwClass, token.KwInterface, token.KwTypeAlias:
		p.parseLocalDecl()
	case token.KwObject:
		if n := p.peek(1).Kind; n == token.Colon || n == token.LBrace {
			p.parseObjectExpr()
		} else {
			p.parseLocalDecl()
		}
	case token.KwFor:
		p.parseFor()
	case token.KwCatch:
		p.parseCatch()
	case token.KwWhen:
		p.parseWhen()
	case token.KwIf, token.KwWhile:
		p.next()
		if p.at(token.LParen) {
			p.scanGroup()
		}
		if p.at(token.LBrace) {
			p.parseBlock(ScopeBlock, nil)
		}
	case token.KwElse, token.KwTry, token.KwFinally, token.KwDo:
		p.next()
		if p.at(token.LBrace) {
			p.parseBlock(ScopeBlock, nil)
		}
	case token.KwAs, token.KwIs:
		p.next()
		p.eat(token.Question)
		if p.at(token.Ident) || p.at(token.LParen) {
			p.parseType()
		}
	case token.Bang:
		p.next()
		if p.at(token.KwIs) {
			p.next()
			if p.at(token.Ident) || p.at(token.LParen) {
				p.parseType()
			}
		}
	case token.At:
		switch p.prev().Kind {
		case token.KwReturn, token.KwBreak, token.KwContinue, token.KwThis, token.KwSuper:
			p.next()
			if p.at(token.Ident) && len(p.tok().Leading) == 0 {
				p.next()
			}
		default:
			p.skipAnnotations()
		}
	case token.Ident:
		if token.IsModifier(t.Text) && modifierFollows(p.peek(1)) && !p.peek(1).NewlineBefore() {
			p.parseLocalDecl()
			return
		}
		p.identRef(*stack)
	case token.StringLit, token.RawStringLit:
		p.templateRefs(t)
		p.next()
	default:
		p.next()
	}
}

// identRef records the identifier at the current position.
func (p *parser) identRef(stack []int) {
	i := p.pos
	t := p.next()
	if p.at(token.At) && len(p.tok().Leading) == 0 {
		// label definition
		return
	}
	r := Ref{Name: t.Name(), Span: t.Span, Kind: RefName, RecvRef: -1, FirstArg: -1}
	if i > 0 {
		pt := p.toks[i-1]
		switch pt.Kind {
		case token.Dot, token.QuestionDot:
			r.Kind = RefMember
			p.receiverOf(&r, i-1)
		case token.ColonColon:
			if i >= 2 && p.toks[i-2].Kind != token.ColonColon && receiverLike(p.toks[i-2].Kind) && len(pt.Leading) == 0 {
				r.Kind = RefMember
				p.receiverOf(&r, i-1)
			} else {
				r.Kind = RefCallable
			}
		case token.LParen, token.Comma:
			if p.at(token.Assign) && len(stack) > 0 && p.toks[stack[len(stack)-1]].Kind == token.LParen {
				r.Kind = RefNamedArg
				if open := stack[len(stack)-1]; open > 0 {
					// RecvRef points at the call that owns the argument
					r.RecvRef = p.refAt[open-1]
				}
			}
		}
	}
	if r.Kind != RefNamedArg {
		switch {
		case p.at(token.LParen) && !p.tok().NewlineBefore():
			r.Call = true
			r.Args = p.countArgs(p.pos)
		case p.at(token.LBrace) && !p.tok().NewlineBefore():
			r.Call = true
			r.Args = 1
		case p.at(token.Lt) && p.typeArgsBeforeCall(p.pos):
			r.Call = true
		}
	}
	idx := p.addRef(r, i)
	if r.Call && p.at(token.Lt) {
		p.parseTypeArgs()
		if p.at(token.LParen) {
			p.file.Refs[idx].Args = p.countArgs(p.pos)
		} else if p.at(token.LBrace) {
			p.file.Refs[idx].Args = 1
		}
	}
	if p.file.Refs[idx].Call && p.at(token.LParen) && p.peek(1).Kind == token.Ident {
		// remember a simple first argument for scope functions like with(x) { }
		if n := p.peek(2).Kind; n == token.RParen || n == token.Comma {
			p.file.Refs[idx].FirstArg = len(p.file.Refs)
		}
	}
}

func receiverLike(k token.Kind) bool {
	switch k {
	case token.Ident, token.KwThis, token.KwSuper, token.RParen, token.Gt, token.Question:
		return true
	}
	return false
}

// receiverOf fills the receiver of a member ref whose dot is at index dot.
func (p *parser) receiverOf(r *Ref, dot int) {
	r.Recv = RecvUnknown
	j := dot - 1
	for j >= 0 && p.toks[j].Kind == token.BangBang {
		j--
	}
	if j < 0 {
		return
	}
	switch pt := p.toks[j]; pt.Kind {
	case token.Ident:
		if k := p.refAt[j]; k >= 0 {
			r.Recv, r.RecvRef = RecvRef, k
		}
	case token.RParen:
		if open, ok := p.openOf[j]; ok && open > 0 {
			if k := p.refAt[open-1]; k >= 0 && p.toks[open-1].Kind == token.Ident {
				r.Recv, r.RecvRef = RecvRef, k
			}
		}
	case token.RBrace:
		if k, ok := p.lambdaCall[j]; ok {
			r.Recv, r.RecvRef = RecvRef, k
		}
	case token.KwThis:
		r.Recv = RecvThis
	case token.KwSuper:
		r.Recv = RecvSuper
	case token.StringLit, token.RawStringLit, token.IntLit, token.FloatLit, token.CharLit:
		r.Recv, r.RecvLit = RecvLiteral, pt.Kind
	case token.KwTrue, token.KwFalse:
		r.Recv, r.RecvLit = RecvLiteral, token.KwTrue
	}
}

// countArgs counts the arguments of the call whose "(" is at index i,
// including a trailing lambda.
func (p *parser) countArgs(i int) int {
	depth, commas := 0, 0
	j := i
	for ; j < len(p.toks); j++ {
		switch p.toks[j].Kind {
		case token.LParen, token.LBracket, token.LBrace:
			depth++
		case token.RParen, token.RBracket, token.RBrace:
			depth--
		case token.Comma:
			if depth == 1 {
				commas++
			}
		case token.EOF:
			return commas + 1
		}
		if depth == 0 {
			break
		}
	}
	n := 0
	if i+1 < len(p.toks) && p.toks[i+1].Kind != token.RParen {
		n = commas + 1
	}
	if j+1 < len(p.toks) && p.toks[j+1].Kind == token.LBrace && !p.toks[j+1].NewlineBefore() {
		n++
	}
	return n
}

// parseBraceExpr handles "{" in expression position: a lambda, or a block
// after else/try/finally/do and when branches.
func (p *parser) parseBraceExpr() {
	openIdx := p.pos
	pt := p.prev()
	switch pt.Kind {
	case token.Arrow, token.KwElse, token.KwTry, token.KwFinally, token.KwDo:
		if openIdx > 0 {
			p.parseBlock(ScopeBlock, nil)
			return
		}
	}
	callRef := -1
	if openIdx > 0 && !p.tok().NewlineBefore() {
		switch pt.Kind {
		case token.Ident:
			callRef = p.refAt[openIdx-1]
		case token.RParen:
			if open, ok := p.openOf[openIdx-1]; ok && open > 0 {
				callRef = p.refAt[open-1]
			}
		case token.Gt:
			for j := openIdx - 1; j > 0; j-- {
				if p.toks[j].Kind == token.Lt {
					callRef = p.refAt[j-1]
					break
				}
			}
		}
	}
	if callRef < 0 && openIdx > 0 && pt.Kind == token.LParen && openIdx >= 2 {
		callRef = p.refAt[openIdx-2]
	}
	open := p.next()
	s := p.pushScope(ScopeLambda, open.Span.Start, nil)
	s.CallRef = callRef
	if p.nesting > maxNesting {
		p.pos--
		p.skipBalanced()
	} else {
		p.nesting++
		p.lambdaParams(open)
		p.blockContents(open)
		p.nesting--
	}
	p.popScope(s)
	if callRef >= 0 {
		p.lambdaCall[p.pos-1] = callRef
	}
}

// lambdaParams declares explicit lambda parameters, or the implicit "it".
func (p *parser) lambdaParams(open token.Token) {
	arrow := -1
	depth := 0
scan:
	for j := p.pos; j < len(p.toks); j++ {
		switch p.toks[j].Kind {
		case token.Arrow:
			if depth == 0 {
				arrow = j
				break scan
			}
		case token.Ident, token.Comma, token.Colon, token.Dot, token.Lt, token.Gt, token.Question, token.Star:
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth < 0 {
				break scan
			}
		default:
			break scan
		}
	}
	if arrow < 0 {
		at := source.Span{File: p.src.ID, Start: open.Span.Start, End: open.Span.Start}
		p.addLocal(&Local{Name: "it", NameSpan: at, Kind: LocalIt})
		return
	}
	for p.pos < arrow && !p.atEOF() {
		switch {
		case p.at(token.LParen):
			p.next()
			for p.at(token.Ident) {
				p.lambdaParam()
				if !p.eat(token.Comma) {
					break
				}
			}
			p.expect(token.RParen, "')'")
		case p.at(token.Ident):
			p.lambdaParam()
		default:
			p.next()
		}
		p.eat(token.Comma)
	}
	p.eat(token.Arrow)
}

func (p *parser) lambdaParam() {
	tk := p.next()
	var l *Local
	if tk.Text != "_" {
		l = p.addLocal(&Local{Name: tk.Name(), NameSpan: tk.Span, Kind: LocalLambdaParam})
	}
	if p.eat(token.Colon) {
		t := p.parseType()
		if l != nil {
			l.Type = t
		}
	}
}

func (p *parser) parseLocalProperty() {
	kw := p.next()
	kind := LocalVal
	if kw.Kind == token.KwVar {
		kind = LocalVar
	}
	var locals []*Local
	var typ *TypeRef
	if p.at(token.LParen) {
		p.next()
		for !p.at(token.RParen) && !p.atEOF() {
			if !p.at(token.Ident) {
				break
			}
			tk := p.next()
			var t *TypeRef
			if p.eat(token.Colon) {
				t = p.parseType()
			}
			if tk.Text != "_" {
				locals = append(locals, &Local{Name: tk.Name(), NameSpan: tk.Span, Kind: kind, Type: t})
			}
			if !p.eat(token.Comma) {
				break
			}
		}
		p.expect(token.RParen, "')'")
	} else {
		tk, ok := p.expect(token.Ident, "variable name")
		if !ok {
			return
		}
		locals = append(locals, &Local{Name: tk.Name(), NameSpan: tk.Span, Kind: kind})
	}
	if p.eat(token.Colon) {
		typ = p.parseType()
	}
	var init source.Span
	if p.at(token.Assign) || p.atWord("by") {
		p.next()
		start := p.tok().Span.Start
		p.scanExpr(stopNewline)
		init = p.span(start)
	}
	for _, l := range locals {
		if l.Type == nil && len(locals) == 1 {
			l.Type = typ
		}
		l.Init = init
		p.addLocal(l)
	}
}

func (p *parser) parseLocalDecl() {
	d, ok := p.parseDeclaration(nil)
	if !ok {
		if p.at(token.Ident) {
			p.identRef(nil)
		} else {
			p.next()
		}
		return
	}
	if d == nil || d.Name == "" {
		return
	}
	d.Local = true
	p.file.LocalDecls = append(p.file.LocalDecls, d)
	l := &Local{Name: d.Name, NameSpan: d.NameSpan, Decl: d, Type: d.Type, Init: d.Init}
	switch d.Kind {
	case DeclFunction:
		l.Kind = LocalFun
	case DeclProperty:
		l.Kind = LocalVal
		if d.Mutable {
			l.Kind = LocalVar
		}
	default:
		l.Kind = LocalClass
	}
	p.addLocal(l)
}

func (p *parser) parseObjectExpr() {
	kw := p.next()
	d := p.newDecl(DeclObject, nil, nil)
	d.NameSpan = source.Span{File: p.src.ID, Start: kw.Span.Start, End: kw.Span.Start}
	d.Local = true
	s, saved := p.enterDecl(d, ScopeClass, kw.Span.Start)
	if p.eat(token.Colon) {
		d.Supertypes = p.parseSupertypes()
	}
	if p.at(token.LBrace) {
		d.Body = p.parseClassBody(d)
	}
	p.leaveDecl(s, saved)
	d.Span = p.span(kw.Span.Start)
	p.file.LocalDecls = append(p.file.LocalDecls, d)
}

func (p *parser) parseFor() {
	kw := p.next()
	s := p.pushScope(ScopeBlock, kw.Span.Start, nil)
	if p.at(token.LParen) {
		p.next()
		var vars []*Local
		switch {
		case p.at(token.LParen):
			p.next()
			for p.at(token.Ident) {
				tk := p.next()
				vars = append(vars, &Local{Name: tk.Name(), NameSpan: tk.Span, Kind: LocalLoopVar})
				if p.eat(token.Colon) {
					vars[len(vars)-1].Type = p.parseType()
				}
				if !p.eat(token.Comma) {
					break
				}
			}
			p.expect(token.RParen, "')'")
		case p.at(token.Ident):
			tk := p.next()
			vars = append(vars, &Local{Name: tk.Name(), NameSpan: tk.Span, Kind: LocalLoopVar})
			if p.eat(token.Colon) {
				vars[0].Type = p.parseType()
			}
		}
		var iter source.Span
		if p.eat(token.KwIn) {
			start := p.tok().Span.Start
			p.scanExpr(0)
			iter = p.span(start)
		}
		if len(vars) == 1 {
			vars[0].Init = iter
		}
		for _, v := range vars {
			if v.Name != "_" {
				p.addLocal(v)
			}
		}
		p.expect(token.RParen, "')'")
	}
	if p.at(token.LBrace) {
		p.parseBlock(ScopeBlock, nil)
	} else {
		p.scanExpr(stopNewline)
	}
	p.popScope(s)
}

func (p *parser) parseCatch() {
	kw := p.next()
	s := p.pushScope(ScopeBlock, kw.Span.Start, nil)
	if p.eat(token.LParen) {
		if p.at(token.Ident) {
			tk := p.next()
			l := p.addLocal(&Local{Name: tk.Name(), NameSpan: tk.Span, Kind: LocalCatchParam})
			if p.eat(token.Colon) {
				l.Type = p.parseType()
			}
		}
		p.expect(token.RParen, "')'")
	}
	if p.at(token.LBrace) {
		p.parseBlock(ScopeBlock, nil)
	}
	p.popScope(s)
}

func (p *parser) parseWhen() {
	kw := p.next()
	s := p.pushScope(ScopeBlock, kw.Span.Start, nil)
	if p.at(token.LParen) {
		p.next()
		if p.at(token.KwVal) {
			p.parseLocalProperty()
		} else {
			p.scanExpr(0)
		}
		p.expect(token.RParen, "')'")
	}
	if p.at(token.LBrace) {
		p.parseBlock(ScopeBlock, nil)
	}
	p.popScope(s)
}

// templateRefs records refs for the embedded expressions of a string token.
func (p *parser) templateRefs(t token.Token) {
	for _, ex := range lexer.TemplateExprs(p.src, t) {
		if ex.Simple {
			p.addRef(Ref{Name: p.text(ex.Span), Span: ex.Span, Kind: RefName, RecvRef: -1, FirstArg: -1}, -1)
			continue
		}
		toks := lexer.TokenizeRange(p.src, ex.Span.Start, ex.Span.End, lexer.Options{})
		sub := newParser(p.file, toks)
		sub.scope = p.scope
		sub.decl = p.decl
		sub.nesting = p.nesting + 1
		var stack []int
		for !sub.atEOF() && sub.nesting <= maxNesting {
			before := sub.pos
			sub.step(&stack)
			if sub.pos == before {
				sub.next()
			}
		}
	}
}
