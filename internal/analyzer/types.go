package analyzer

import (
	"strconv"
	"strings"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

// Type is a declared or inferred type. Generic parameters that are not
// bound yet stay as TypeParam placeholders.
type Type struct {
	Name      string
	Args      []Type
	Nullable  bool
	TypeParam bool
	Decl      *syntax.Decl // classifier declaration; nil when unknown
	Path      string       // file declaring Decl
	Function  bool
	Receiver  *Type
	Params    []Type
	Result    *Type
}

// IsZero reports whether nothing is known about the type.
func (t Type) IsZero() bool { return t.Name == "" && !t.Function }

func (t Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Type) write(b *strings.Builder) {
	if t.Function {
		if t.Nullable {
			b.WriteByte('(')
		}
		if t.Receiver != nil {
			t.Receiver.write(b)
			b.WriteByte('.')
		}
		b.WriteByte('(')
		for i, p := range t.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			p.write(b)
		}
		b.WriteString(") -> ")
		if t.Result != nil && !t.Result.IsZero() {
			t.Result.write(b)
		} else {
			b.WriteString("Unit")
		}
		if t.Nullable {
			b.WriteString(")?")
		}
		return
	}
	b.WriteString(t.Name)
	if len(t.Args) > 0 {
		b.WriteByte('<')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			if a.IsZero() {
				b.WriteByte('*')
				continue
			}
			a.write(b)
		}
		b.WriteByte('>')
	}
	if t.Nullable {
		b.WriteByte('?')
	}
}

// TypeOf returns the type of the expression or declaration at offset.
func (s *Semantic) TypeOf(offset int) (Type, bool) {
	off := source.SafeUint32(offset)
	if i, ok := s.file.RefAt(off); ok {
		var t Type
		if r := &s.file.Refs[i]; r.Kind == syntax.RefType {
			t = s.classifierType(s.resolveRefIdx(i), r.Name, nil, false)
		} else {
			t = s.typeOfRefIdx(i)
		}
		return t, !t.IsZero()
	}
	if sym, ok := s.DeclarationAt(offset); ok {
		t := s.typeOfSymbol(sym)
		return t, !t.IsZero()
	}
	if k := s.file.TokenIndexAt(off); k < len(s.file.Tokens) {
		tk := s.file.Tokens[k]
		if tk.IsLiteral() && tk.Span.Start <= off {
			t := s.literalType(tk.Kind, tk.Text)
			return t, !t.IsZero()
		}
	}
	return Type{}, false
}

// TypeOfSymbol returns the declared or inferred type of sym.
func (s *Semantic) TypeOfSymbol(sym *Symbol) (Type, bool) {
	t := s.typeOfSymbol(sym)
	return t, !t.IsZero()
}

// SignatureOf renders sym's header, filling in an inferred type when none
// is written.
func (s *Semantic) SignatureOf(sym *Symbol) string {
	if sym == nil {
		return ""
	}
	inferred := ""
	switch {
	case sym.Decl != nil && (sym.Decl.Kind == syntax.DeclFunction || sym.Decl.Kind == syntax.DeclProperty) && sym.Decl.Type == nil:
		inferred = s.typeOfSymbol(sym).String()
	case sym.Local != nil && sym.Local.Type == nil:
		inferred = s.typeOfSymbol(sym).String()
	}
	return sym.signature(inferred)
}

func (s *Semantic) builtinType(name string) Type {
	return s.classifierType(firstClassifier(prelude().byName[name]), name, nil, false)
}

func (s *Semantic) literalType(kind token.Kind, text string) Type {
	switch kind {
	case token.IntLit:
		lower := strings.ToLower(text)
		switch {
		case strings.HasPrefix(lower, "0x"):
			if strings.HasSuffix(lower, "l") {
				return s.builtinType("Long")
			}
			return s.builtinType("Int")
		case strings.HasSuffix(lower, "ul"):
			return s.builtinType("ULong")
		case strings.HasSuffix(lower, "u"):
			return s.builtinType("UInt")
		case strings.HasSuffix(lower, "l"):
			return s.builtinType("Long")
		}
		return s.builtinType("Int")
	case token.FloatLit:
		if strings.HasSuffix(strings.ToLower(text), "f") {
			return s.builtinType("Float")
		}
		return s.builtinType("Double")
	case token.CharLit:
		return s.builtinType("Char")
	case token.StringLit, token.RawStringLit:
		return s.builtinType("String")
	case token.KwTrue, token.KwFalse:
		return s.builtinType("Boolean")
	case token.KwNull:
		t := s.builtinType("Nothing")
		t.Nullable = true
		return t
	}
	return Type{}
}

// typeFromRef converts a written type; names in bind replace generic
// parameters.
func (s *Semantic) typeFromRef(tr *syntax.TypeRef, bind map[string]Type) Type {
	if tr == nil {
		return Type{}
	}
	if tr.Function {
		t := Type{Function: true, Nullable: tr.Nullable}
		for _, p := range tr.Params {
			t.Params = append(t.Params, s.typeFromRef(p, bind))
		}
		if tr.Result != nil {
			r := s.typeFromRef(tr.Result, bind)
			t.Result = &r
		}
		if tr.Receiver != nil {
			r := s.typeFromRef(tr.Receiver, bind)
			t.Receiver = &r
		}
		return t
	}
	if tr.Name == "" {
		return Type{}
	}
	if tr.Qualifier == "" {
		if b, ok := bind[tr.Name]; ok {
			b.Nullable = b.Nullable || tr.Nullable
			return b
		}
	}
	var args []Type
	for _, a := range tr.Args {
		args = append(args, s.typeFromRef(a, bind))
	}
	sym := s.resolveTypeName(tr.Name, tr.Qualifier, tr.NameSpan.Start, nil)
	return s.classifierType(sym, tr.Name, args, tr.Nullable)
}

func (s *Semantic) classifierType(sym *Symbol, name string, args []Type, nullable bool) Type {
	switch {
	case sym == nil || sym.Decl == nil && sym.Kind != SymTypeParam:
		return Type{Name: name, Args: args, Nullable: nullable}
	case sym.Kind == SymTypeParam:
		return Type{Name: sym.Name, TypeParam: true, Nullable: nullable}
	case sym.Kind == SymTypeAlias:
		key := "alias:" + sym.Key()
		v := s.view(sym.Path)
		if v == nil || sym.Decl.Type == nil || s.st.inferring[key] {
			return Type{Name: name, Args: args, Nullable: nullable}
		}
		s.st.inferring[key] = true
		defer delete(s.st.inferring, key)
		bind := make(map[string]Type, len(sym.Decl.TypeParams))
		for i, tp := range sym.Decl.TypeParams {
			if i < len(args) {
				bind[tp.Name] = args[i]
			}
		}
		t := v.typeFromRef(sym.Decl.Type, bind)
		t.Nullable = t.Nullable || nullable
		return t
	case sym.Kind == SymEnumEntry && sym.Decl.Parent != nil:
		return Type{Name: sym.Decl.Parent.Name, Decl: sym.Decl.Parent, Path: sym.Path, Nullable: nullable}
	}
	return Type{Name: sym.Name, Args: args, Nullable: nullable, Decl: sym.Decl, Path: sym.Path}
}

// declBind maps the generic parameters of d and its enclosing classes to
// placeholders, keeping entries already in bind.
func (s *Semantic) declBind(d *syntax.Decl, bind map[string]Type) map[string]Type {
	if bind == nil {
		bind = make(map[string]Type)
	}
	for cur := d; cur != nil; cur = cur.Parent {
		for _, tp := range cur.TypeParams {
			if _, ok := bind[tp.Name]; !ok {
				bind[tp.Name] = Type{Name: tp.Name, TypeParam: true}
			}
		}
	}
	return bind
}

func (s *Semantic) scopeBind(sc *syntax.Scope) map[string]Type {
	bind := make(map[string]Type)
	for ; sc != nil; sc = sc.Parent {
		if sc.Owner != nil {
			s.declBind(sc.Owner, bind)
		}
		for _, l := range sc.Locals {
			if l.Kind == syntax.LocalTypeParam {
				if _, ok := bind[l.Name]; !ok {
					bind[l.Name] = Type{Name: l.Name, TypeParam: true}
				}
			}
		}
	}
	return bind
}

func (s *Semantic) typeOfSymbol(sym *Symbol) Type {
	if sym == nil || sym.Kind == SymExternal || sym.Kind == SymPackage {
		return Type{}
	}
	key := sym.Key()
	if s.st.inferring[key] {
		return Type{}
	}
	s.st.inferring[key] = true
	defer delete(s.st.inferring, key)

	v := s.view(sym.Path)
	if v == nil {
		return Type{}
	}
	switch {
	case sym.Decl != nil:
		return v.declType(sym.Decl)
	case sym.Param != nil:
		t := v.typeFromRef(sym.Param.Type, v.declBind(sym.Owner, nil))
		if sym.Param.Vararg && !t.IsZero() {
			arr := v.builtinType("Array")
			arr.Args = []Type{t}
			return arr
		}
		return t
	case sym.Local != nil:
		return v.localType(sym.Local)
	}
	return Type{}
}

func (s *Semantic) declType(d *syntax.Decl) Type {
	switch d.Kind {
	case syntax.DeclEnumEntry, syntax.DeclConstructor:
		if d.Parent != nil {
			return s.declType(d.Parent)
		}
		return Type{}
	case syntax.DeclTypeAlias:
		return s.classifierType(declSymbol(d, s.path, s.Module(), s.pkg), d.Name, nil, false)
	case syntax.DeclFunction:
		if d.Type != nil {
			return s.typeFromRef(d.Type, s.declBind(d, nil))
		}
		if d.BodyKind == syntax.BodyExpr {
			return s.exprType(d.Body)
		}
		return s.builtinType("Unit")
	case syntax.DeclProperty:
		if d.Type != nil {
			return s.typeFromRef(d.Type, s.declBind(d, nil))
		}
		if !d.Delegated {
			return s.exprType(d.Init)
		}
		return Type{}
	}
	if d.Kind.IsClassifier() {
		t := Type{Name: d.Name, Decl: d, Path: s.path}
		for _, tp := range d.TypeParams {
			t.Args = append(t.Args, Type{Name: tp.Name, TypeParam: true})
		}
		return t
	}
	return Type{}
}

func (s *Semantic) localType(l *syntax.Local) Type {
	if l.Type != nil {
		return s.typeFromRef(l.Type, s.scopeBind(l.Scope))
	}
	switch l.Kind {
	case syntax.LocalVal, syntax.LocalVar:
		if l.Decl != nil && l.Decl.Delegated {
			return Type{}
		}
		return s.exprType(l.Init)
	case syntax.LocalLoopVar:
		return s.elementType(s.exprType(l.Init))
	case syntax.LocalIt, syntax.LocalLambdaParam:
		return s.lambdaParamType(l)
	case syntax.LocalSetterValue:
		if l.Decl != nil {
			return s.declType(l.Decl)
		}
	}
	return Type{}
}

func (s *Semantic) elementType(t Type) Type {
	if t.IsZero() {
		return t
	}
	if t.Name == "IntRange" || t.Name == "IntArray" {
		return s.builtinType("Int")
	}
	if t.Name == "String" || t.Name == "CharSequence" {
		return s.builtinType("Char")
	}
	if iter := firstClassifier(prelude().byName["Iterable"]); iter != nil {
		if as, ok := s.asSupertype(t, iter.Decl); ok && len(as.Args) > 0 {
			return as.Args[0]
		}
	}
	if len(t.Args) > 0 {
		return t.Args[0]
	}
	return Type{}
}

// asSupertype views t as the generic instance of target, following
// supertypes with substitution.
func (s *Semantic) asSupertype(t Type, target *syntax.Decl) (Type, bool) {
	return s.asSupertypeDepth(t, target, 0)
}

func (s *Semantic) asSupertypeDepth(t Type, target *syntax.Decl, depth int) (Type, bool) {
	if t.Decl == nil || depth > 12 {
		return Type{}, false
	}
	if t.Decl == target {
		return t, true
	}
	v := s.view(t.Path)
	if v == nil {
		return Type{}, false
	}
	bind := make(map[string]Type, len(t.Decl.TypeParams))
	for i, tp := range t.Decl.TypeParams {
		if i < len(t.Args) {
			bind[tp.Name] = t.Args[i]
		}
	}
	for _, st := range t.Decl.Supertypes {
		sup := v.typeFromRef(st, v.declBind(t.Decl, bind))
		if r, ok := s.asSupertypeDepth(sup, target, depth+1); ok {
			return r, true
		}
	}
	return Type{}, false
}

func substitute(t Type, bind map[string]Type) Type {
	if len(bind) == 0 {
		return t
	}
	if t.TypeParam {
		if b, ok := bind[t.Name]; ok && !(b.TypeParam && b.Name == t.Name) {
			b.Nullable = b.Nullable || t.Nullable
			return b
		}
		return t
	}
	if len(t.Args) > 0 {
		args := make([]Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = substitute(a, bind)
		}
		t.Args = args
	}
	if t.Function {
		params := make([]Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = substitute(p, bind)
		}
		t.Params = params
		if t.Result != nil {
			r := substitute(*t.Result, bind)
			t.Result = &r
		}
		if t.Receiver != nil {
			r := substitute(*t.Receiver, bind)
			t.Receiver = &r
		}
	}
	return t
}

// unify binds generic placeholders in want from the concrete got.
func (s *Semantic) unify(want, got Type, bind map[string]Type) {
	if got.IsZero() {
		return
	}
	if want.TypeParam {
		if b, ok := bind[want.Name]; !ok || b.TypeParam {
			if want.Nullable {
				got.Nullable = false
			}
			bind[want.Name] = got
		}
		return
	}
	if want.Function && got.Function {
		for i := range min(len(want.Params), len(got.Params)) {
			s.unify(want.Params[i], got.Params[i], bind)
		}
		if want.Result != nil && got.Result != nil {
			s.unify(*want.Result, *got.Result, bind)
		}
		return
	}
	if want.Decl != nil && got.Decl != nil {
		if as, ok := s.asSupertype(got, want.Decl); ok {
			got = as
		}
	}
	if want.Name == got.Name {
		for i := range min(len(want.Args), len(got.Args)) {
			s.unify(want.Args[i], got.Args[i], bind)
		}
	}
}

// typeOfRefIdx returns the type of the expression a ref stands for: the
// result for calls, the value type otherwise.
func (s *Semantic) typeOfRefIdx(i int) Type {
	if i < 0 || i >= len(s.file.Refs) {
		return Type{}
	}
	r := &s.file.Refs[i]
	sym := s.resolveRefIdx(i)
	if sym == nil || r.Kind == syntax.RefCallable {
		return Type{}
	}
	switch {
	case sym.Kind == SymFunction && sym.Decl != nil:
		if !r.Call {
			return Type{}
		}
		v := s.view(sym.Path)
		if v == nil {
			return Type{}
		}
		ret := s.typeOfSymbol(sym)
		return substitute(ret, s.callBindings(i, sym))
	case sym.Kind.IsClassifier() && r.Call && sym.Decl != nil:
		t := s.typeOfSymbol(sym)
		bind := s.callBindings(i, sym)
		return substitute(t, bind)
	}
	t := s.typeOfSymbol(sym)
	if r.Kind == syntax.RefMember && (sym.Kind == SymProperty || sym.Kind == SymParam) {
		t = substitute(t, s.receiverBind(r, sym))
	}
	return t
}

// receiverType returns the type of the explicit receiver of a member ref.
func (s *Semantic) receiverType(r *syntax.Ref) (Type, bool) {
	switch r.Recv {
	case syntax.RecvRef:
		recv := s.resolveRefIdx(r.RecvRef)
		if recv == nil || (recv.Kind.IsClassifier() && !s.file.Refs[r.RecvRef].Call) {
			return Type{}, false
		}
		t := s.typeOfRefIdx(r.RecvRef)
		return t, !t.IsZero()
	case syntax.RecvThis:
		return s.thisType(r.Span.Start, r.Scope)
	case syntax.RecvLiteral:
		t := s.literalType(r.RecvLit, "")
		return t, !t.IsZero()
	}
	return Type{}, false
}

// receiverBind binds the owner's generic parameters from the receiver type.
func (s *Semantic) receiverBind(r *syntax.Ref, sym *Symbol) map[string]Type {
	bind := make(map[string]Type)
	recv, ok := s.receiverType(r)
	if !ok {
		return bind
	}
	owner := sym.Owner
	if sym.Decl != nil {
		owner = sym.Decl.Parent
		if sym.Decl.Receiver != nil {
			if v := s.view(sym.Path); v != nil {
				s.unify(v.typeFromRef(sym.Decl.Receiver, v.declBind(sym.Decl, nil)), recv, bind)
			}
			return bind
		}
	}
	if owner == nil {
		return bind
	}
	if as, ok := s.asSupertype(recv, owner); ok {
		for k, tp := range owner.TypeParams {
			if k < len(as.Args) {
				bind[tp.Name] = as.Args[k]
			}
		}
	}
	return bind
}

// callBindings infers generic arguments of a call from its receiver and
// its value arguments.
func (s *Semantic) callBindings(i int, sym *Symbol) map[string]Type {
	r := &s.file.Refs[i]
	bind := s.receiverBind(r, sym)
	v := s.view(sym.Path)
	if v == nil || sym.Decl == nil {
		return bind
	}
	params := sym.Decl.Params
	owner := sym.Decl
	if sym.Kind.IsClassifier() {
		if !sym.Decl.HasPrimaryCtor {
			return bind
		}
	}
	args := s.callArgs(r)
	for j, p := range params {
		if j >= len(args.spans) {
			break
		}
		if p.Type == nil {
			continue
		}
		want := v.typeFromRef(p.Type, v.declBind(owner, nil))
		if want.Function {
			continue
		}
		s.unify(want, s.exprType(args.spans[j]), bind)
	}
	return bind
}

type callArgs struct {
	spans []source.Span
	// trailing is set when the last span is a lambda after the parentheses
	trailing bool
}

// callArgs splits the arguments of the call written at r.
func (s *Semantic) callArgs(r *syntax.Ref) callArgs {
	var out callArgs
	toks := s.file.Tokens
	k := s.file.TokenIndexAt(r.Span.Start) + 1
	if k < len(toks) && toks[k].Kind == token.Lt {
		if c := matchClose(toks, k); c > k {
			k = c + 1
		}
	}
	if k < len(toks) && toks[k].Kind == token.LParen {
		c := matchClose(toks, k)
		start := k + 1
		depth := 0
		for j := k + 1; j < c && j < len(toks); j++ {
			switch toks[j].Kind {
			case token.LParen, token.LBracket, token.LBrace:
				depth++
			case token.RParen, token.RBracket, token.RBrace:
				depth--
			case token.Comma:
				if depth == 0 {
					out.spans = append(out.spans, spanOf(toks, start, j))
					start = j + 1
				}
			}
		}
		if start < c {
			out.spans = append(out.spans, spanOf(toks, start, c))
		}
		k = c + 1
	}
	if k < len(toks) && toks[k].Kind == token.LBrace {
		c := matchClose(toks, k)
		out.spans = append(out.spans, source.Span{File: toks[k].Span.File, Start: toks[k].Span.Start, End: toks[min(c, len(toks)-1)].Span.End})
		out.trailing = true
	}
	return out
}

func spanOf(toks []token.Token, from, to int) source.Span {
	if from >= to {
		return source.Span{}
	}
	return source.Span{File: toks[from].Span.File, Start: toks[from].Span.Start, End: toks[to-1].Span.End}
}

// matchClose returns the index of the bracket closing toks[open].
func matchClose(toks []token.Token, open int) int {
	var want token.Kind
	opener := toks[open].Kind
	switch opener {
	case token.LParen:
		want = token.RParen
	case token.LBracket:
		want = token.RBracket
	case token.LBrace:
		want = token.RBrace
	case token.Lt:
		want = token.Gt
	default:
		return open
	}
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].Kind {
		case opener:
			depth++
		case want:
			depth--
			if depth == 0 {
				return i
			}
		case token.EOF:
			return i
		}
	}
	return len(toks) - 1
}

// exprType infers the type of the expression written in sp.
func (s *Semantic) exprType(sp source.Span) Type {
	if sp.Empty() {
		return Type{}
	}
	toks := s.file.Tokens
	i := s.file.TokenIndexAt(sp.Start)
	end := i
	for end < len(toks) && toks[end].Kind != token.EOF && toks[end].Span.Start < sp.End {
		end++
	}
	if i >= end {
		return Type{}
	}
	t, j := s.primary(i, end)
	for j < end {
		tk := toks[j]
		switch tk.Kind {
		case token.EqEq, token.BangEq, token.EqEqEq, token.BangEqEq, token.Lt, token.Gt, token.LtEq, token.GtEq,
			token.AndAnd, token.OrOr, token.KwIs, token.KwIn, token.Bang:
			return s.builtinType("Boolean")
		case token.KwAs:
			k := j + 1
			nullable := false
			if k < end && toks[k].Kind == token.Question {
				k++
				nullable = true
			}
			if k < end {
				if idx, ok := s.refIndex(toks[k].Span.Start); ok {
					r := &s.file.Refs[idx]
					ct := s.classifierType(s.resolveRefIdx(idx), r.Name, nil, nullable)
					return ct
				}
			}
			return Type{}
		case token.DotDot, token.RangeUntil:
			return s.builtinType("IntRange")
		case token.Elvis:
			if t.IsZero() {
				rt, _ := s.primary(j+1, end)
				return rt
			}
			t.Nullable = false
			return t
		case token.Plus, token.Minus, token.Star, token.Slash, token.Percent:
			if t.IsZero() {
				rt, _ := s.primary(j+1, end)
				return rt
			}
			return t
		case token.Ident:
			// infix call: a to b
			cands := s.extensionsFor(t, tk.Name())
			if len(cands) == 0 {
				if t.Decl != nil {
					if m := s.memberOfType(t, tk.Name(), true, 1); m != nil && m.Kind == SymFunction {
						cands = []*Symbol{m}
					}
				}
			}
			if len(cands) == 0 {
				return Type{}
			}
			fn := cands[0]
			fv := s.view(fn.Path)
			if fv == nil {
				return Type{}
			}
			bind := make(map[string]Type)
			if fn.Decl.Receiver != nil {
				s.unify(fv.typeFromRef(fn.Decl.Receiver, fv.declBind(fn.Decl, nil)), t, bind)
			}
			if len(fn.Decl.Params) > 0 && fn.Decl.Params[0].Type != nil {
				rt, _ := s.primary(j+1, end)
				s.unify(fv.typeFromRef(fn.Decl.Params[0].Type, fv.declBind(fn.Decl, nil)), rt, bind)
			}
			return substitute(s.typeOfSymbol(fn), bind)
		default:
			return t
		}
	}
	return t
}

// primary infers the leading operand in toks[i:end] and returns the index
// after it.
func (s *Semantic) primary(i, end int) (Type, int) {
	toks := s.file.Tokens
	if i >= end {
		return Type{}, end
	}
	tk := toks[i]
	var t Type
	j := i + 1
	switch tk.Kind {
	case token.IntLit, token.FloatLit, token.CharLit, token.StringLit, token.RawStringLit, token.KwTrue, token.KwFalse, token.KwNull:
		t = s.literalType(tk.Kind, tk.Text)
	case token.KwThis:
		t, _ = s.thisType(tk.Span.Start, nil)
	case token.KwIf:
		if j < end && toks[j].Kind == token.LParen {
			c := matchClose(toks, j)
			if c+1 >= end || toks[c+1].Kind == token.LBrace {
				return Type{}, end
			}
			bt, _ := s.primary(c+1, end)
			return bt, end
		}
		return Type{}, end
	case token.LParen:
		c := matchClose(toks, i)
		t = s.exprType(spanOf(toks, i+1, c))
		j = c + 1
	case token.Minus, token.Plus:
		return s.primary(i+1, end)
	case token.Bang:
		_, k := s.primary(i+1, end)
		return s.builtinType("Boolean"), k
	case token.Ident:
		idx, ok := s.refIndex(tk.Span.Start)
		if !ok {
			return Type{}, end
		}
		t = s.typeOfRefIdx(idx)
		j = s.skipCallSuffix(j, end)
	default:
		return Type{}, end
	}
	// postfix chain: .member, ?.member, !!, [index]
	for j < end {
		switch toks[j].Kind {
		case token.BangBang:
			t.Nullable = false
			j++
			continue
		case token.LBracket:
			c := matchClose(toks, j)
			if get := s.memberOfType(t, "get", true, 1); get != nil && get.Decl != nil {
				t = substitute(s.typeOfSymbol(get), s.ownerBind(t, get))
			} else {
				t = Type{}
			}
			j = c + 1
			continue
		case token.Dot, token.QuestionDot:
			if j+1 < end && toks[j+1].Kind == token.Ident {
				safe := toks[j].Kind == token.QuestionDot
				idx, ok := s.refIndex(toks[j+1].Span.Start)
				if !ok {
					return Type{}, end
				}
				t = s.typeOfRefIdx(idx)
				if safe && !t.IsZero() {
					t.Nullable = true
				}
				j = s.skipCallSuffix(j+2, end)
				continue
			}
		}
		break
	}
	return t, j
}

// ownerBind binds the generic parameters of member's class from t.
func (s *Semantic) ownerBind(t Type, member *Symbol) map[string]Type {
	bind := make(map[string]Type)
	if member.Decl == nil || member.Decl.Parent == nil {
		return bind
	}
	owner := member.Decl.Parent
	if as, ok := s.asSupertype(t, owner); ok {
		for k, tp := range owner.TypeParams {
			if k < len(as.Args) {
				bind[tp.Name] = as.Args[k]
			}
		}
	}
	return bind
}

func (s *Semantic) skipCallSuffix(j, end int) int {
	toks := s.file.Tokens
	if j < end && toks[j].Kind == token.Lt && !toks[j].NewlineBefore() {
		if c := matchClose(toks, j); c < end && c > j {
			if c+1 < end && (toks[c+1].Kind == token.LParen || toks[c+1].Kind == token.LBrace) {
				j = c + 1
			}
		}
	}
	if j < end && toks[j].Kind == token.LParen && !toks[j].NewlineBefore() {
		j = matchClose(toks, j) + 1
	}
	if j < end && toks[j].Kind == token.LBrace && !toks[j].NewlineBefore() {
		j = matchClose(toks, j) + 1
	}
	return j
}

// thisType returns the innermost implicit receiver at off.
func (s *Semantic) thisType(off uint32, scope *syntax.Scope) (Type, bool) {
	if scope == nil {
		scope = s.file.ScopeAt(off)
	}
	for sc := scope; sc != nil; sc = sc.Parent {
		switch sc.Kind {
		case syntax.ScopeLambda:
			if recv, ok := s.lambdaReceiver(sc); ok {
				return recv, true
			}
		case syntax.ScopeFunction:
			if sc.Owner != nil && sc.Owner.Receiver != nil {
				t := s.typeFromRef(sc.Owner.Receiver, s.declBind(sc.Owner, nil))
				return t, !t.IsZero()
			}
		case syntax.ScopeClass:
			if sc.Owner != nil {
				return s.declType(sc.Owner), true
			}
		}
	}
	return Type{}, false
}

// lambdaFunction returns the function type expected for the lambda opening
// sc, with generics bound from the enclosing call.
func (s *Semantic) lambdaFunction(sc *syntax.Scope) (Type, bool) {
	if sc == nil || sc.Kind != syntax.ScopeLambda || sc.CallRef < 0 || sc.CallRef >= len(s.file.Refs) {
		return Type{}, false
	}
	key := "lambda:" + s.path + "#" + strconv.Itoa(int(sc.Span.Start))
	if s.st.inferring[key] {
		return Type{}, false
	}
	s.st.inferring[key] = true
	defer delete(s.st.inferring, key)

	sym := s.resolveRefIdx(sc.CallRef)
	if sym == nil || sym.Decl == nil || sym.Kind != SymFunction {
		return Type{}, false
	}
	v := s.view(sym.Path)
	if v == nil {
		return Type{}, false
	}
	params := sym.Decl.Params
	if len(params) == 0 {
		return Type{}, false
	}
	args := s.callArgs(&s.file.Refs[sc.CallRef])
	prm := params[len(params)-1]
	for j, a := range args.spans {
		if a.Start <= sc.Span.Start && sc.Span.Start <= a.End {
			if !(args.trailing && j == len(args.spans)-1) && j < len(params) {
				prm = params[j]
			}
			break
		}
	}
	pt := v.typeFromRef(prm.Type, v.declBind(sym.Decl, nil))
	if !pt.Function {
		return Type{}, false
	}
	return substitute(pt, s.callBindings(sc.CallRef, sym)), true
}

func (s *Semantic) lambdaReceiver(sc *syntax.Scope) (Type, bool) {
	fn, ok := s.lambdaFunction(sc)
	if !ok || fn.Receiver == nil || fn.Receiver.IsZero() || fn.Receiver.TypeParam {
		return Type{}, false
	}
	return *fn.Receiver, true
}

func (s *Semantic) lambdaParamType(l *syntax.Local) Type {
	fn, ok := s.lambdaFunction(l.Scope)
	if !ok {
		return Type{}
	}
	k := 0
	if l.Kind == syntax.LocalLambdaParam {
		for _, other := range l.Scope.Locals {
			if other == l {
				break
			}
			if other.Kind == syntax.LocalLambdaParam {
				k++
			}
		}
	}
	if k < len(fn.Params) && !fn.Params[k].TypeParam {
		return fn.Params[k]
	}
	return Type{}
}
