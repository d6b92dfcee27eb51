package syntax

import (
	"kmpls/internal/source"
	"kmpls/internal/token"
)

// parseDeclaration parses a declaration together with its annotations and
// modifiers. ok is false when the tokens do not start a declaration, the
// position is left unchanged then. Init blocks yield ok with a nil Decl.
func (p *parser) parseDeclaration(parent *Decl) (*Decl, bool) {
	startIdx := p.pos
	first := p.tok()
	doc := cleanDoc(first.Doc())
	anns := p.skipAnnotations()
	mods := p.parseModifiers()

	var d *Decl
	switch {
	case p.at(token.KwClass):
		d = p.parseClass(parent, mods, DeclClass)
	case p.at(token.KwInterface):
		d = p.parseClass(parent, mods, DeclInterface)
	case p.at(token.KwFun) && p.peek(1).Kind == token.KwInterface:
		p.next()
		d = p.parseClass(parent, mods, DeclInterface)
	case p.at(token.KwFun):
		d = p.parseFunction(parent, mods)
	case p.at(token.KwObject):
		d = p.parseObject(parent, mods)
	case p.at(token.KwVal), p.at(token.KwVar):
		d = p.parseProperty(parent, mods)
	case p.at(token.KwTypeAlias):
		d = p.parseTypeAlias(parent, mods)
	case parent != nil && p.atWord("constructor") && p.peek(1).Kind == token.LParen:
		d = p.parseSecondaryCtor(parent, mods)
	case parent != nil && p.atWord("init") && p.peek(1).Kind == token.LBrace:
		p.next()
		saved := p.decl
		p.decl = parent
		p.parseBlock(ScopeFunction, parent)
		p.decl = saved
		return nil, true
	default:
		p.pos = startIdx
		return nil, false
	}
	d.Annotations = anns
	d.Doc = doc
	d.Span = p.span(first.Span.Start)
	return d, true
}

func (p *parser) newDecl(kind DeclKind, parent *Decl, mods []Modifier) *Decl {
	return &Decl{Kind: kind, Parent: parent, Modifiers: mods}
}

// parseModifiers consumes soft-keyword modifiers that precede a declaration
// keyword on the same line.
func (p *parser) parseModifiers() []Modifier {
	var mods []Modifier
	for p.at(token.Ident) && token.IsModifier(p.tok().Text) && modifierFollows(p.peek(1)) {
		tk := p.next()
		mods = append(mods, Modifier{Name: tk.Text, Span: tk.Span})
		p.skipAnnotations()
	}
	return mods
}

func modifierFollows(n token.Token) bool {
	switch n.Kind {
	case token.KwClass, token.KwInterface, token.KwFun, token.KwVal, token.KwVar,
		token.KwObject, token.KwTypeAlias:
		return true
	case token.At:
		return !n.NewlineBefore()
	case token.Ident:
		return !n.NewlineBefore() && (token.IsModifier(n.Text) || n.Text == "constructor")
	}
	return false
}

func hasModifier(mods []Modifier, name string) bool {
	for _, m := range mods {
		if m.Name == name {
			return true
		}
	}
	return false
}

func (p *parser) declName(d *Decl) bool {
	tk, ok := p.expect(token.Ident, "a name")
	if !ok {
		p.errorf(ErrMissingName, tk.Span, "missing %s name", d.Kind)
		d.NameSpan = source.Span{File: p.src.ID, Start: tk.Span.Start, End: tk.Span.Start}
		return false
	}
	d.Name = tk.Name()
	d.NameSpan = tk.Span
	return true
}

func (p *parser) enterDecl(d *Decl, kind ScopeKind, start uint32) (*Scope, *Decl) {
	s := p.pushScope(kind, start, d)
	d.Scope = s
	saved := p.decl
	p.decl = d
	for _, tp := range d.TypeParams {
		p.addLocal(&Local{Name: tp.Name, NameSpan: tp.Span, Kind: LocalTypeParam, Decl: d})
	}
	return s, saved
}

func (p *parser) leaveDecl(s *Scope, saved *Decl) {
	p.popScope(s)
	p.decl = saved
}

func (p *parser) parseClass(parent *Decl, mods []Modifier, kind DeclKind) *Decl {
	kw := p.next()
	if kind == DeclClass && hasModifier(mods, "enum") {
		kind = DeclEnum
	}
	d := p.newDecl(kind, parent, mods)
	p.declName(d)
	if p.at(token.Lt) {
		d.TypeParams = p.parseTypeParams()
	}
	s, saved := p.enterDecl(d, ScopeClass, kw.Span.Start)

	save := p.pos
	ctorStart := p.tok().Span.Start
	p.skipAnnotations()
	p.parseModifiers()
	if p.atWord("constructor") && p.peek(1).Kind == token.LParen {
		p.next()
	}
	if p.at(token.LParen) {
		d.HasPrimaryCtor = true
		d.Params = p.parseParams()
		d.PrimaryCtorSpan = p.span(ctorStart)
		for _, prm := range d.Params {
			p.addLocal(&Local{Name: prm.Name, NameSpan: prm.NameSpan, Kind: LocalParam, Type: prm.Type, Param: prm, Decl: d})
		}
	} else {
		p.pos = save
	}
	if p.eat(token.Colon) {
		d.Supertypes = p.parseSupertypes()
	}
	p.skipWhere()
	if p.at(token.LBrace) {
		d.Body = p.parseClassBody(d)
	}
	p.leaveDecl(s, saved)
	return d
}

func (p *parser) parseSupertypes() []*TypeRef {
	var out []*TypeRef
	for p.at(token.Ident) || p.at(token.LParen) {
		t := p.parseType()
		out = append(out, t)
		if p.at(token.LParen) && !p.tok().NewlineBefore() {
			p.scanGroup()
		}
		if p.atWord("by") {
			p.next()
			p.scanExpr(stopComma | stopLBrace | stopNewline)
		}
		if !p.eat(token.Comma) {
			break
		}
	}
	return out
}

func (p *parser) parseClassBody(d *Decl) source.Span {
	open := p.next()
	if d.Kind == DeclEnum {
		p.parseEnumEntries(d)
	}
	for !p.at(token.RBrace) && !p.atEOF() {
		if p.eat(token.Semicolon) {
			continue
		}
		before := p.pos
		m, ok := p.parseDeclaration(d)
		if ok {
			p.recovering = false
			if m != nil {
				d.Members = append(d.Members, m)
			}
			if p.pos == before {
				p.next()
			}
			continue
		}
		p.recover("expected a member declaration")
	}
	p.closeBrace(open)
	return p.span(open.Span.Start)
}

func (p *parser) closeBrace(open token.Token) {
	if p.at(token.RBrace) {
		p.next()
		return
	}
	p.errorf(ErrUnclosed, open.Span, "unclosed '{'")
}

func (p *parser) parseEnumEntries(d *Decl) {
	afterComma := false
	for {
		save := p.pos
		p.skipAnnotations()
		if !p.at(token.Ident) || !(afterComma || enumEntryEnd(p.peek(1))) {
			p.pos = save
			break
		}
		if token.IsModifier(p.tok().Text) && modifierFollows(p.peek(1)) {
			p.pos = save
			break
		}
		tk := p.next()
		e := p.newDecl(DeclEnumEntry, d, nil)
		e.Name = tk.Name()
		e.NameSpan = tk.Span
		e.Doc = cleanDoc(tk.Doc())
		if p.at(token.LParen) {
			p.scanGroup()
		}
		if p.at(token.LBrace) {
			s, saved := p.enterDecl(e, ScopeClass, tk.Span.Start)
			e.Body = p.parseClassBody(e)
			p.leaveDecl(s, saved)
		}
		e.Span = p.span(tk.Span.Start)
		d.Members = append(d.Members, e)
		if !p.eat(token.Comma) {
			break
		}
		afterComma = true
	}
	p.eat(token.Semicolon)
}

func enumEntryEnd(n token.Token) bool {
	switch n.Kind {
	case token.Comma, token.LParen, token.LBrace, token.Semicolon, token.RBrace:
		return true
	}
	return false
}

func (p *parser) parseObject(parent *Decl, mods []Modifier) *Decl {
	kw := p.next()
	d := p.newDecl(DeclObject, parent, mods)
	d.Companion = hasModifier(mods, "companion")
	if p.at(token.Ident) {
		p.declName(d)
	} else if d.Companion {
		d.Name = "Companion"
		d.NameSpan = kw.Span
	} else {
		p.declName(d)
	}
	s, saved := p.enterDecl(d, ScopeClass, kw.Span.Start)
	if p.eat(token.Colon) {
		d.Supertypes = p.parseSupertypes()
	}
	if p.at(token.LBrace) {
		d.Body = p.parseClassBody(d)
	}
	p.leaveDecl(s, saved)
	return d
}

// receiverSplit finds the token index of the declared name in a possibly
// receiver-qualified callable header: "String.foo", "List<T>.bar".
func (p *parser) receiverSplit() int {
	i := p.pos
	nameIdx := -1
	for i < len(p.toks) && p.toks[i].Kind == token.Ident {
		nameIdx = i
		i++
		if i < len(p.toks) && p.toks[i].Kind == token.Lt {
			i = p.skipAngleAt(i)
		}
		for i < len(p.toks) && p.toks[i].Kind == token.Question {
			i++
		}
		if i+1 < len(p.toks) && p.toks[i].Kind == token.Dot && p.toks[i+1].Kind == token.Ident {
			i++
			continue
		}
		break
	}
	return nameIdx
}

func (p *parser) skipAngleAt(i int) int {
	depth := 0
	for ; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case token.Lt:
			depth++
		case token.Gt:
			depth--
			if depth == 0 {
				return i + 1
			}
		case token.EOF, token.LBrace, token.Assign:
			return i
		}
	}
	return i
}

// parseReceiverAndName fills Receiver and Name for functions and properties.
func (p *parser) parseReceiverAndName(d *Decl) {
	if p.at(token.LParen) && d.Kind == DeclFunction {
		// anonymous function or function-typed receiver
		closeIdx := p.matchParen(p.pos)
		if closeIdx+1 < len(p.toks) && p.toks[closeIdx+1].Kind == token.Arrow {
			d.Receiver = p.parseType()
			p.expect(token.Dot, "'.'")
		} else {
			d.NameSpan = source.Span{File: p.src.ID, Start: p.tok().Span.Start, End: p.tok().Span.Start}
			return
		}
	}
	nameIdx := p.receiverSplit()
	if nameIdx > p.pos {
		d.Receiver = p.parseTypeUntil(nameIdx - 1)
		p.expect(token.Dot, "'.'")
	}
	p.declName(d)
}

// parseTypeUntil parses a type whose qualification may not pass token stop.
func (p *parser) parseTypeUntil(stop int) *TypeRef {
	saved := p.typeStop
	p.typeStop = stop
	t := p.parseType()
	p.typeStop = saved
	return t
}

func (p *parser) matchParen(i int) int {
	depth := 0
	for j := i; j < len(p.toks); j++ {
		switch p.toks[j].Kind {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth == 0 {
				return j
			}
		case token.EOF:
			return j
		}
	}
	return len(p.toks) - 1
}

func (p *parser) parseFunction(parent *Decl, mods []Modifier) *Decl {
	kw := p.next()
	d := p.newDecl(DeclFunction, parent, mods)
	if p.at(token.Lt) {
		d.TypeParams = p.parseTypeParams()
	}
	p.parseReceiverAndName(d)
	s, saved := p.enterDecl(d, ScopeFunction, kw.Span.Start)
	if p.at(token.LParen) {
		d.Params = p.parseParams()
	} else {
		p.errorf(ErrExpected, p.tok().Span, "expected '(' after function name")
	}
	p.paramLocals(d)
	if p.eat(token.Colon) {
		d.Type = p.parseType()
	}
	p.skipWhere()
	p.parseCallableBody(d)
	p.leaveDecl(s, saved)
	return d
}

func (p *parser) paramLocals(d *Decl) {
	for _, prm := range d.Params {
		if prm.Name == "" {
			continue
		}
		p.addLocal(&Local{Name: prm.Name, NameSpan: prm.NameSpan, Kind: LocalParam, Type: prm.Type, Param: prm, Decl: d})
	}
}

func (p *parser) parseCallableBody(d *Decl) {
	switch {
	case p.at(token.LBrace):
		start := p.tok().Span.Start
		open := p.next()
		p.blockContents(open)
		d.BodyKind = BodyBlock
		d.Body = p.span(start)
	case p.at(token.Assign):
		p.next()
		start := p.tok().Span.Start
		p.scanExpr(stopNewline)
		d.BodyKind = BodyExpr
		d.Body = p.span(start)
	}
}

func (p *parser) parseProperty(parent *Decl, mods []Modifier) *Decl {
	kw := p.next()
	d := p.newDecl(DeclProperty, parent, mods)
	d.Mutable = kw.Kind == token.KwVar
	if p.at(token.Lt) {
		d.TypeParams = p.parseTypeParams()
	}
	p.parseReceiverAndName(d)
	if p.eat(token.Colon) {
		d.Type = p.parseType()
	}
	p.skipWhere()
	saved := p.decl
	p.decl = d
	switch {
	case p.at(token.Assign):
		p.next()
		start := p.tok().Span.Start
		p.scanExpr(stopNewline)
		d.Init = p.span(start)
	case p.atWord("by"):
		p.next()
		d.Delegated = true
		start := p.tok().Span.Start
		p.scanExpr(stopNewline)
		d.Init = p.span(start)
	}
	p.parseAccessors(d)
	p.decl = saved
	return d
}

func (p *parser) parseAccessors(d *Decl) {
	for range 2 {
		save := p.pos
		p.skipAnnotations()
		p.parseAccessorModifiers()
		if !(p.atWord("get") || p.atWord("set")) || !accessorFollows(p.peek(1)) {
			p.pos = save
			return
		}
		kw := p.next()
		s := p.pushScope(ScopeFunction, kw.Span.Start, d)
		at := source.Span{File: p.src.ID, Start: kw.Span.Start, End: kw.Span.Start}
		p.addLocal(&Local{Name: "field", NameSpan: at, Kind: LocalVal, Type: d.Type, Decl: d})
		if p.eat(token.LParen) {
			if p.at(token.Ident) {
				tk := p.next()
				l := p.addLocal(&Local{Name: tk.Name(), NameSpan: tk.Span, Kind: LocalSetterValue, Type: d.Type, Decl: d})
				if p.eat(token.Colon) {
					l.Type = p.parseType()
				}
			}
			p.expect(token.RParen, "')'")
		}
		if p.eat(token.Colon) {
			p.parseType()
		}
		switch {
		case p.at(token.LBrace):
			p.next()
			p.blockContents(p.prev())
		case p.at(token.Assign):
			p.next()
			p.scanExpr(stopNewline)
		}
		p.popScope(s)
	}
}

func (p *parser) parseAccessorModifiers() {
	for p.at(token.Ident) && token.IsModifier(p.tok().Text) {
		n := p.peek(1)
		if !(n.IsWord("get") || n.IsWord("set") || (n.Kind == token.Ident && token.IsModifier(n.Text))) {
			return
		}
		p.next()
	}
}

func accessorFollows(n token.Token) bool {
	switch n.Kind {
	case token.LParen, token.RBrace, token.EOF, token.Semicolon:
		return true
	}
	return n.NewlineBefore()
}

func (p *parser) parseTypeAlias(parent *Decl, mods []Modifier) *Decl {
	p.next()
	d := p.newDecl(DeclTypeAlias, parent, mods)
	p.declName(d)
	if p.at(token.Lt) {
		d.TypeParams = p.parseTypeParams()
	}
	if _, ok := p.expect(token.Assign, "'='"); ok {
		d.Type = p.parseType()
	}
	return d
}

func (p *parser) parseSecondaryCtor(parent *Decl, mods []Modifier) *Decl {
	kw := p.next()
	d := p.newDecl(DeclConstructor, parent, mods)
	d.Name = parent.Name
	d.NameSpan = kw.Span
	s, saved := p.enterDecl(d, ScopeFunction, kw.Span.Start)
	d.Params = p.parseParams()
	p.paramLocals(d)
	if p.eat(token.Colon) {
		if p.at(token.KwThis) || p.at(token.KwSuper) {
			p.next()
		}
		if p.at(token.LParen) {
			p.scanGroup()
		}
	}
	p.parseCallableBody(d)
	p.leaveDecl(s, saved)
	return d
}

// parseParams parses a parenthesized parameter list.
func (p *parser) parseParams() []*Param {
	p.next() // (
	var params []*Param
	for !p.at(token.RParen) && !p.atEOF() && !p.at(token.RBrace) {
		start := p.tok().Span.Start
		p.skipAnnotations()
		prm := &Param{}
		for p.at(token.Ident) && token.IsModifier(p.tok().Text) {
			n := p.peek(1)
			if n.Kind != token.Ident && n.Kind != token.KwVal && n.Kind != token.KwVar && n.Kind != token.At {
				break
			}
			tk := p.next()
			prm.Modifiers = append(prm.Modifiers, Modifier{Name: tk.Text, Span: tk.Span})
			p.skipAnnotations()
		}
		prm.Vararg = hasModifier(prm.Modifiers, "vararg")
		if p.at(token.KwVal) || p.at(token.KwVar) {
			prm.Property = true
			prm.Mutable = p.next().Kind == token.KwVar
		}
		tk, ok := p.expect(token.Ident, "parameter name")
		if !ok {
			p.scanExpr(stopComma)
			if !p.eat(token.Comma) {
				break
			}
			continue
		}
		prm.Name = tk.Name()
		prm.NameSpan = tk.Span
		if p.eat(token.Colon) {
			prm.Type = p.parseType()
		}
		if p.at(token.Assign) {
			p.next()
			ds := p.tok().Span.Start
			p.scanExpr(stopComma)
			prm.HasDefault = true
			prm.Default = p.span(ds)
		}
		prm.Span = p.span(start)
		params = append(params, prm)
		if !p.eat(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "')'")
	return params
}
