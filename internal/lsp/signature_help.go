package lsp

import (
	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

type signatureCandidate struct {
	sym    *analyzer.Symbol
	label  string
	doc    string
	params []*syntax.Param
}

func (s *Server) handleSignatureHelp(msg *rpcMessage) error {
	var params textDocumentPositionParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	result := buildSignatureHelp(s.sess, canonicalURI(params.TextDocument.URI), params.Position)
	if result == nil {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, result)
}

func buildSignatureHelp(sess *session.Session, uri string, pos position) *signatureHelp {
	help, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) (*signatureHelp, error) {
		return signatureHelpAt(sem, semOffset(sem, pos)), nil
	})
	if !ok {
		return nil
	}
	return help
}

// openCall is the innermost argument list still open at the cursor.
type openCall struct {
	callee   token.Token
	argIndex int
}

// findOpenCall scans tokens up to off keeping a stack of open brackets. A
// brace above the innermost parenthesis means the cursor sits in a body, not
// in an argument list.
func findOpenCall(toks []token.Token, off int) (openCall, bool) {
	type frame struct {
		kind   token.Kind
		at     int
		commas int
	}
	var stack []frame
	for i, tk := range toks {
		if int(tk.Span.Start) >= off || tk.Kind == token.EOF {
			break
		}
		switch tk.Kind {
		case token.LParen, token.LBracket, token.LBrace:
			stack = append(stack, frame{kind: tk.Kind, at: i})
		case token.RParen, token.RBracket, token.RBrace:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case token.Comma:
			if len(stack) > 0 {
				stack[len(stack)-1].commas++
			}
		}
	}
	for j := len(stack) - 1; j >= 0; j-- {
		fr := stack[j]
		if fr.kind == token.LBrace {
			return openCall{}, false
		}
		if fr.kind != token.LParen {
			continue
		}
		callee, ok := calleeBefore(toks, fr.at)
		if !ok {
			continue
		}
		return openCall{callee: callee, argIndex: fr.commas}, true
	}
	return openCall{}, false
}

// calleeBefore returns the identifier naming the call whose "(" is at
// toks[open], skipping explicit type arguments.
func calleeBefore(toks []token.Token, open int) (token.Token, bool) {
	k := open - 1
	if k >= 0 && toks[k].Kind == token.Gt {
		depth := 0
		for ; k >= 0; k-- {
			switch toks[k].Kind {
			case token.Gt:
				depth++
			case token.Lt:
				depth--
			}
			if depth == 0 {
				break
			}
		}
		k--
	}
	if k < 0 || toks[k].Kind != token.Ident {
		return token.Token{}, false
	}
	return toks[k], true
}

func signatureHelpAt(sem *analyzer.Semantic, off int) *signatureHelp {
	call, ok := findOpenCall(sem.File().Tokens, off)
	if !ok {
		return nil
	}
	calleeOff := int(call.callee.Span.Start)
	resolved, _ := sem.Resolve(calleeOff)
	cands := signatureCandidates(sem, call.callee.Name(), calleeOff, resolved)
	if len(cands) == 0 {
		return nil
	}
	infos := make([]signatureInformation, 0, len(cands))
	active := -1
	for i, c := range cands {
		info := signatureInformation{Label: c.label, Documentation: c.doc, Parameters: make([]parameterInformation, 0, len(c.params))}
		for _, prm := range c.params {
			info.Parameters = append(info.Parameters, parameterInformation{Label: prm.Label()})
		}
		infos = append(infos, info)
		if resolved != nil && c.sym.Key() == resolved.Key() && active < 0 {
			active = i
		}
	}
	if active < 0 {
		active = 0
		for i, c := range cands {
			if len(c.params) > call.argIndex || hasVararg(c.params) {
				active = i
				break
			}
		}
	}
	param := call.argIndex
	if ps := cands[active].params; len(ps) > 0 && param >= len(ps) && ps[len(ps)-1].Vararg {
		param = len(ps) - 1
	}
	return &signatureHelp{Signatures: infos, ActiveSignature: active, ActiveParameter: param}
}

func hasVararg(params []*syntax.Param) bool {
	for _, p := range params {
		if p.Vararg {
			return true
		}
	}
	return false
}

// signatureCandidates gathers the overloads visible under name: members of
// an explicit receiver, or the scope levels at the call, plus constructors
// when the name is a class.
func signatureCandidates(sem *analyzer.Semantic, name string, calleeOff int, resolved *analyzer.Symbol) []signatureCandidate {
	var syms []*analyzer.Symbol
	if resolved != nil {
		syms = append(syms, resolved)
	}
	if t, recv, ok := sem.ReceiverBefore(calleeOff); ok {
		members := sem.MembersOf(t)
		if recv != nil {
			members = sem.StaticMembersOf(recv)
		}
		for _, m := range members {
			if m.Name == name {
				syms = append(syms, m)
			}
		}
	} else {
		for _, sc := range sem.ScopesAt(calleeOff) {
			for _, sym := range sc.Symbols {
				if sym.Name == name {
					syms = append(syms, sym)
				}
			}
		}
		for _, t := range sem.ImplicitReceivers(calleeOff) {
			for _, m := range sem.MembersOf(t) {
				if m.Name == name {
					syms = append(syms, m)
				}
			}
		}
	}
	seen := make(map[string]struct{})
	var out []signatureCandidate
	add := func(c signatureCandidate) {
		key := c.sym.Key() + "|" + c.label
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	for _, sym := range syms {
		switch {
		case sym.Decl == nil:
			continue
		case sym.Decl.Kind == syntax.DeclFunction || sym.Decl.Kind == syntax.DeclConstructor:
			add(signatureCandidate{sym: sym, label: sem.SignatureOf(sym), doc: sym.Decl.Doc, params: sym.Decl.Params})
		case sym.Decl.Kind == syntax.DeclClass || sym.Decl.Kind == syntax.DeclEnum:
			for _, c := range constructorCandidates(sym) {
				add(c)
			}
		}
	}
	return out
}

func constructorCandidates(sym *analyzer.Symbol) []signatureCandidate {
	d := sym.Decl
	var out []signatureCandidate
	if d.HasPrimaryCtor || !hasSecondaryCtor(d) {
		out = append(out, signatureCandidate{sym: sym, label: callLabel(d.Name, d.Params), doc: d.Doc, params: d.Params})
	}
	for _, m := range d.Members {
		if m.Kind == syntax.DeclConstructor {
			ctor := *sym
			ctor.Kind = analyzer.SymConstructor
			ctor.Decl = m
			ctor.NameSpan = m.NameSpan
			out = append(out, signatureCandidate{sym: &ctor, label: callLabel(d.Name, m.Params), doc: m.Doc, params: m.Params})
		}
	}
	return out
}

func hasSecondaryCtor(d *syntax.Decl) bool {
	for _, m := range d.Members {
		if m.Kind == syntax.DeclConstructor {
			return true
		}
	}
	return false
}

func callLabel(name string, params []*syntax.Param) string {
	label := name + "("
	for i, p := range params {
		if i > 0 {
			label += ", "
		}
		label += p.Label()
	}
	return label + ")"
}
