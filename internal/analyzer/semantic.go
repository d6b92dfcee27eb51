package analyzer

import (
	"slices"
	"strings"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

// Semantic answers queries about one file inside a semantic scope. It is
// not safe for concurrent use and must not outlive the scope.
type Semantic struct {
	ctx    *Context
	file   *syntax.File
	module *module
	path   string
	pkg    string
	st     *scopeState

	refCache   map[int]*Symbol
	refByStart map[uint32]int
}

// scopeState is shared by the semantic views of every file touched while
// answering one query.
type scopeState struct {
	views     map[string]*Semantic
	inferring map[string]bool
}

func newSemantic(c *Context, f *syntax.File, moduleName string) *Semantic {
	s := &Semantic{
		ctx:  c,
		file: f,
		path: f.Path,
		pkg:  f.Package.Name,
		st: &scopeState{
			views:     make(map[string]*Semantic),
			inferring: make(map[string]bool),
		},
		refCache: make(map[int]*Symbol),
	}
	if c != nil && moduleName != "" {
		s.module = c.byName[moduleName]
	}
	s.st.views[s.path] = s
	return s
}

// File returns the tree the scope was entered for.
func (s *Semantic) File() *syntax.File { return s.file }

// Attached reports whether the file has module context.
func (s *Semantic) Attached() bool { return s.module != nil }

// Module returns the module name, or "" for detached trees.
func (s *Semantic) Module() string {
	if s.module == nil {
		return ""
	}
	return s.module.name
}

// view returns the semantic view of another file in the same scope.
func (s *Semantic) view(path string) *Semantic {
	if path == "" || path == s.path {
		return s
	}
	if v, ok := s.st.views[path]; ok {
		return v
	}
	var v *Semantic
	switch {
	case path == PreludePath:
		v = &Semantic{file: prelude().file, path: PreludePath, pkg: "kotlin"}
	case s.ctx != nil:
		f, ok := s.ctx.files[path]
		if !ok {
			return nil
		}
		v = &Semantic{ctx: s.ctx, file: f, path: path, pkg: f.Package.Name, module: s.ctx.byName[s.ctx.fileModule[path]]}
	default:
		return nil
	}
	v.st = s.st
	v.refCache = make(map[int]*Symbol)
	s.st.views[path] = v
	return v
}

// Resolve returns the symbol referenced or declared at offset.
func (s *Semantic) Resolve(offset int) (*Symbol, bool) {
	off := source.SafeUint32(offset)
	if i, ok := s.file.RefAt(off); ok {
		if sym := s.resolveRefIdx(i); sym != nil {
			return sym, true
		}
	}
	return s.DeclarationAt(offset)
}

// ResolveRef resolves one reference of the scope's file.
func (s *Semantic) ResolveRef(r syntax.Ref) (*Symbol, bool) {
	if i, ok := s.refIndex(r.Span.Start); ok {
		sym := s.resolveRefIdx(i)
		return sym, sym != nil
	}
	sym := s.resolveRef(&r)
	return sym, sym != nil
}

// ResolveRefAt resolves the reference with the given index in File.Refs.
func (s *Semantic) ResolveRefAt(i int) (*Symbol, bool) {
	sym := s.resolveRefIdx(i)
	return sym, sym != nil
}

// DeclarationAt returns the declaration whose name covers offset.
func (s *Semantic) DeclarationAt(offset int) (*Symbol, bool) {
	off := source.SafeUint32(offset)
	if d := s.file.DeclAt(off); d != nil {
		return declSymbol(d, s.path, s.Module(), s.pkg), true
	}
	if l := s.file.LocalAt(off); l != nil {
		return localSymbol(l, s.path, s.Module(), s.pkg), true
	}
	return nil, false
}

func (s *Semantic) refIndex(start uint32) (int, bool) {
	if s.refByStart == nil {
		s.refByStart = make(map[uint32]int, len(s.file.Refs))
		for i := range s.file.Refs {
			s.refByStart[s.file.Refs[i].Span.Start] = i
		}
	}
	i, ok := s.refByStart[start]
	return i, ok
}

func (s *Semantic) resolveRefIdx(i int) *Symbol {
	if i < 0 || i >= len(s.file.Refs) {
		return nil
	}
	if sym, ok := s.refCache[i]; ok {
		return sym
	}
	s.refCache[i] = nil // guard against receiver cycles
	sym := s.resolveRef(&s.file.Refs[i])
	s.refCache[i] = sym
	return sym
}

func (s *Semantic) resolveRef(r *syntax.Ref) *Symbol {
	switch r.Kind {
	case syntax.RefImport:
		for _, imp := range s.file.Imports {
			if imp.NameSpan == r.Span || imp.AliasSpan == r.Span {
				return s.resolveQualified(imp.Path)
			}
		}
		return nil
	case syntax.RefType:
		return s.resolveTypeName(r.Name, r.Qualifier, r.Span.Start, r.Scope)
	case syntax.RefNamedArg:
		callee := s.resolveRefIdx(r.RecvRef)
		return s.namedParam(callee, r.Name)
	case syntax.RefMember:
		return s.resolveMember(r)
	case syntax.RefCallable:
		if r.Recv != syntax.RecvNone {
			return s.resolveMember(r)
		}
	}
	return s.resolveName(r.Name, r.Span.Start, r.Scope, r.Call, r.Args)
}

// resolveName walks local scopes, enclosing classifiers and implicit
// receivers, then the file, the package across the dependsOn closure,
// imports and builtins.
func (s *Semantic) resolveName(name string, off uint32, scope *syntax.Scope, call bool, args int) *Symbol {
	if scope == nil {
		scope = s.file.ScopeAt(off)
	}
	for sc := scope; sc != nil; sc = sc.Parent {
		for i := len(sc.Locals) - 1; i >= 0; i-- {
			l := sc.Locals[i]
			if l.Name == name && l.Kind != syntax.LocalTypeParam && syntax.LocalVisible(l, off) {
				return localSymbol(l, s.path, s.Module(), s.pkg)
			}
		}
		switch sc.Kind {
		case syntax.ScopeClass:
			if sc.Owner != nil {
				if sym := s.memberOfDecl(sc.Owner, name, call, args, true); sym != nil {
					return sym
				}
			}
		case syntax.ScopeFunction:
			if sc.Owner != nil && sc.Owner.Receiver != nil {
				if sym := s.memberOfType(s.typeFromRef(sc.Owner.Receiver, nil), name, call, args); sym != nil {
					return sym
				}
			}
		case syntax.ScopeLambda:
			if recv, ok := s.lambdaReceiver(sc); ok {
				if sym := s.memberOfType(recv, name, call, args); sym != nil {
					return sym
				}
			}
		}
	}
	if sym := pick(s.topLevel(name, false), call, args); sym != nil {
		return sym
	}
	if sym := pick(s.packageSymbols(name, false), call, args); sym != nil {
		return sym
	}
	if sym := s.importedName(name, call, args); sym != nil {
		return sym
	}
	if sym := pick(prelude().byName[name], call, args); sym != nil {
		return sym
	}
	if s.isPackageRoot(name) {
		return &Symbol{Name: name, Kind: SymPackage, Qualified: name}
	}
	return nil
}

func (s *Semantic) isPackageRoot(name string) bool {
	if _, ok := rootPackages[name]; ok {
		return true
	}
	if s.ctx != nil {
		_, ok := s.ctx.pkgNames[name]
		return ok
	}
	return false
}

// topLevel returns the file's top-level declarations named name; extensions
// are included only when withReceiver is set.
func (s *Semantic) topLevel(name string, withReceiver bool) []*Symbol {
	var out []*Symbol
	for _, d := range s.file.Decls {
		if d.Name == name && (d.Receiver != nil) == withReceiver {
			out = append(out, declSymbol(d, s.path, s.Module(), s.pkg))
		}
	}
	return out
}

// packageSymbols collects same-package declarations from the module and its
// transitive dependsOn modules; actual declarations come before expect ones.
func (s *Semantic) packageSymbols(name string, withReceiver bool) []*Symbol {
	if s.module == nil {
		return nil
	}
	var actual, rest []*Symbol
	for _, m := range s.module.closure {
		for _, sym := range m.packages[s.pkg][name] {
			if sym.Path == s.path || (sym.Decl.Receiver != nil) != withReceiver {
				continue
			}
			if sym.IsExpect() {
				rest = append(rest, sym)
			} else {
				actual = append(actual, sym)
			}
		}
	}
	return append(actual, rest...)
}

func (s *Semantic) importedName(name string, call bool, args int) *Symbol {
	for _, imp := range s.file.Imports {
		if !imp.Star && imp.Name == name {
			if s.ctx != nil {
				if sym := pick(s.preferVisible(s.ctx.qualified[imp.Path]), call, args); sym != nil {
					return sym
				}
			}
			return s.resolveQualified(imp.Path)
		}
	}
	for _, imp := range s.file.Imports {
		if !imp.Star {
			continue
		}
		if sym := pick(s.starPackage(imp.Path, name, false), call, args); sym != nil {
			return sym
		}
	}
	return nil
}

// starPackage returns the declarations named name in pkg across all modules.
func (s *Semantic) starPackage(pkg, name string, withReceiver bool) []*Symbol {
	var out []*Symbol
	if s.ctx != nil {
		for _, m := range s.ctx.modules {
			for _, sym := range m.packages[pkg][name] {
				if sym.Path != s.path && (sym.Decl.Receiver != nil) == withReceiver {
					out = append(out, sym)
				}
			}
		}
		if len(out) == 0 {
			// import of a classifier's nested members: import a.b.Outer.*
			for _, sym := range s.ctx.qualified[pkg+"."+name] {
				out = append(out, sym)
			}
		}
	}
	return s.preferVisible(out)
}

// preferVisible orders candidates so that declarations from the current
// module closure and actual declarations come first.
func (s *Semantic) preferVisible(cands []*Symbol) []*Symbol {
	if len(cands) < 2 {
		return cands
	}
	rank := func(sym *Symbol) int {
		r := 2
		if s.module != nil {
			for _, m := range s.module.closure {
				if m.name == sym.Module {
					r = 0
					break
				}
			}
		}
		if sym.IsExpect() {
			r++
		}
		return r
	}
	out := slices.Clone(cands)
	slices.SortStableFunc(out, func(a, b *Symbol) int { return rank(a) - rank(b) })
	return out
}

// resolveQualified resolves a dotted name to a workspace declaration, a
// builtin, a workspace package or an external name.
func (s *Semantic) resolveQualified(q string) *Symbol {
	if s.ctx != nil {
		if cands := s.preferVisible(s.ctx.qualified[q]); len(cands) > 0 {
			return cands[0]
		}
		if _, ok := s.ctx.pkgNames[q]; ok {
			return &Symbol{Name: lastSegment(q), Kind: SymPackage, Qualified: q}
		}
	}
	if rest, ok := strings.CutPrefix(q, "kotlin."); ok && !strings.Contains(rest, ".") {
		if cands := prelude().byName[rest]; len(cands) > 0 {
			return cands[0]
		}
	}
	return &Symbol{Name: lastSegment(q), Kind: SymExternal, Qualified: q}
}

func lastSegment(q string) string {
	if i := strings.LastIndexByte(q, '.'); i >= 0 {
		return q[i+1:]
	}
	return q
}

// resolveTypeName resolves a type position name.
func (s *Semantic) resolveTypeName(name, qualifier string, off uint32, scope *syntax.Scope) *Symbol {
	if qualifier != "" {
		if sym := s.resolveQualified(qualifier + "." + name); sym.Kind != SymExternal {
			return sym
		}
		// Outer.Inner where Outer resolves locally
		head, rest, _ := strings.Cut(qualifier, ".")
		outer := s.resolveTypeName(head, "", off, scope)
		for _, seg := range append(splitNonEmpty(rest), name) {
			if outer == nil || outer.Decl == nil {
				return nil
			}
			v := s.view(outer.Path)
			if v == nil {
				return nil
			}
			outer = v.nestedClassifier(outer.Decl, seg)
		}
		return outer
	}
	if scope == nil {
		scope = s.file.ScopeAt(off)
	}
	for sc := scope; sc != nil; sc = sc.Parent {
		for i := len(sc.Locals) - 1; i >= 0; i-- {
			l := sc.Locals[i]
			if l.Name == name && (l.Kind == syntax.LocalTypeParam || l.Kind == syntax.LocalClass) {
				return localSymbol(l, s.path, s.Module(), s.pkg)
			}
		}
		if sc.Kind == syntax.ScopeClass && sc.Owner != nil {
			if sym := s.nestedClassifier(sc.Owner, name); sym != nil {
				return sym
			}
		}
	}
	if sym := firstClassifier(s.topLevel(name, false)); sym != nil {
		return sym
	}
	if sym := firstClassifier(s.packageSymbols(name, false)); sym != nil {
		return sym
	}
	if sym := s.importedName(name, false, 0); sym != nil && (sym.Kind.IsClassifier() || sym.Kind == SymExternal) {
		return sym
	}
	return firstClassifier(prelude().byName[name])
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

func firstClassifier(cands []*Symbol) *Symbol {
	for _, c := range cands {
		if c.Kind.IsClassifier() {
			return c
		}
	}
	return nil
}

func (s *Semantic) nestedClassifier(owner *syntax.Decl, name string) *Symbol {
	for _, m := range owner.Members {
		if m.Name == name && (m.Kind.IsClassifier() || m.Kind == syntax.DeclEnumEntry) {
			return declSymbol(m, s.path, s.Module(), s.pkg)
		}
	}
	return nil
}

// pick chooses among same-level candidates: for calls the first callable
// whose parameter count fits, otherwise the first non-function.
func pick(cands []*Symbol, call bool, args int) *Symbol {
	if len(cands) == 0 {
		return nil
	}
	if !call {
		for _, c := range cands {
			if c.Kind != SymFunction {
				return c
			}
		}
		return cands[0]
	}
	var callable *Symbol
	for _, c := range cands {
		switch {
		case c.Kind == SymFunction || c.Kind == SymConstructor:
			if callable == nil {
				callable = c
			}
			if arityFits(c.Decl.Params, args) {
				return c
			}
		case c.Kind.IsClassifier():
			return c
		}
	}
	if callable != nil {
		return callable
	}
	return cands[0]
}

func arityFits(params []*syntax.Param, args int) bool {
	required, total := 0, len(params)
	for _, p := range params {
		if p.Vararg {
			total = -1
			continue
		}
		if !p.HasDefault {
			required++
		}
	}
	if args < required {
		// a trailing lambda may fill the last parameter
		return false
	}
	return total < 0 || args <= total
}

// namedParam resolves a named argument against the callee's parameters.
func (s *Semantic) namedParam(callee *Symbol, name string) *Symbol {
	if callee == nil || callee.Decl == nil {
		return nil
	}
	params := callee.Decl.Params
	owner := callee.Decl
	if callee.Kind.IsClassifier() && !callee.Decl.HasPrimaryCtor {
		for _, m := range callee.Decl.Members {
			if m.Kind == syntax.DeclConstructor {
				params, owner = m.Params, m
				break
			}
		}
	}
	for _, p := range params {
		if p.Name == name {
			return paramSymbol(p, owner, callee.Path, callee.Module, callee.Package)
		}
	}
	return nil
}

// memberOfDecl looks name up among owner's members, property parameters,
// companion members (when static) and supertypes declared in the
// workspace or the builtins.
func (s *Semantic) memberOfDecl(owner *syntax.Decl, name string, call bool, args int, static bool) *Symbol {
	seen := make(map[*syntax.Decl]bool)
	return s.memberOfDeclSeen(owner, name, call, args, static, seen)
}

func (s *Semantic) memberOfDeclSeen(owner *syntax.Decl, name string, call bool, args int, static bool, seen map[*syntax.Decl]bool) *Symbol {
	if owner == nil || seen[owner] {
		return nil
	}
	seen[owner] = true
	var cands []*Symbol
	for _, m := range owner.Members {
		if m.Name == name && m.Kind != syntax.DeclConstructor && m.Receiver == nil && !m.Companion {
			cands = append(cands, declSymbol(m, s.path, s.Module(), s.pkg))
		}
	}
	if owner.Kind.IsClassifier() {
		for _, p := range owner.Params {
			if p.Property && p.Name == name {
				cands = append(cands, paramSymbol(p, owner, s.path, s.Module(), s.pkg))
			}
		}
	}
	if sym := pick(cands, call, args); sym != nil {
		return sym
	}
	if static {
		for _, m := range owner.Members {
			if m.Companion {
				if sym := s.memberOfDeclSeen(m, name, call, args, false, seen); sym != nil {
					return sym
				}
				if m.Name == name {
					return declSymbol(m, s.path, s.Module(), s.pkg)
				}
			}
		}
		if sym := s.nestedClassifier(owner, name); sym != nil {
			return sym
		}
	}
	for _, st := range owner.Supertypes {
		t := s.typeFromRef(st, nil)
		v := s.view(t.Path)
		if t.Decl == nil || v == nil {
			continue
		}
		if sym := v.memberOfDeclSeen(t.Decl, name, call, args, false, seen); sym != nil {
			return sym
		}
	}
	if owner.Kind == syntax.DeclEnum {
		if enum := firstClassifier(prelude().byName["Enum"]); enum != nil {
			if sym := s.view(PreludePath).memberOfDeclSeen(enum.Decl, name, call, args, false, seen); sym != nil {
				return sym
			}
		}
	}
	return nil
}

// resolveMember resolves a ref written after a receiver.
func (s *Semantic) resolveMember(r *syntax.Ref) *Symbol {
	switch r.Recv {
	case syntax.RecvRef:
		recvRef := &s.file.Refs[r.RecvRef]
		recv := s.resolveRefIdx(r.RecvRef)
		if recv == nil {
			return nil
		}
		switch {
		case recv.Kind == SymPackage || recv.Kind == SymExternal:
			return s.resolveQualified(recv.Qualified + "." + r.Name)
		case recv.Kind.IsClassifier() && !recvRef.Call && recv.Decl != nil:
			v := s.view(recv.Path)
			if v == nil {
				return nil
			}
			decl := recv.Decl
			if recv.Kind == SymTypeAlias {
				t := s.typeOfSymbol(recv)
				if t.Decl == nil {
					return nil
				}
				decl, v = t.Decl, s.view(t.Path)
			}
			if sym := v.memberOfDecl(decl, r.Name, r.Call, r.Args, true); sym != nil {
				return sym
			}
			if decl.Kind == syntax.DeclObject {
				return s.memberOfType(s.typeOfSymbol(recv), r.Name, r.Call, r.Args)
			}
			return nil
		}
		return s.memberOfType(s.typeOfRefIdx(r.RecvRef), r.Name, r.Call, r.Args)
	case syntax.RecvThis:
		t, ok := s.thisType(r.Span.Start, r.Scope)
		if !ok {
			return nil
		}
		return s.memberOfType(t, r.Name, r.Call, r.Args)
	case syntax.RecvSuper:
		cls := s.enclosingClass(r.Scope)
		if cls == nil {
			return nil
		}
		for _, st := range cls.Supertypes {
			if sym := s.memberOfType(s.typeFromRef(st, nil), r.Name, r.Call, r.Args); sym != nil {
				return sym
			}
		}
		return nil
	case syntax.RecvLiteral:
		return s.memberOfType(s.literalType(r.RecvLit, ""), r.Name, r.Call, r.Args)
	}
	return nil
}

// memberOfType resolves name on a value of type t: class members first,
// then extensions whose receiver accepts t, then members of Any.
func (s *Semantic) memberOfType(t Type, name string, call bool, args int) *Symbol {
	if t.Decl != nil {
		if v := s.view(t.Path); v != nil {
			if sym := v.memberOfDecl(t.Decl, name, call, args, t.Decl.Kind == syntax.DeclObject); sym != nil {
				return sym
			}
		}
	}
	if sym := pick(s.extensionsFor(t, name), call, args); sym != nil {
		return sym
	}
	if anyCls := firstClassifier(prelude().byName["Any"]); anyCls != nil {
		return s.view(PreludePath).memberOfDecl(anyCls.Decl, name, call, args, false)
	}
	return nil
}

// extensionsFor lists extension callables named name whose receiver accepts t.
func (s *Semantic) extensionsFor(t Type, name string) []*Symbol {
	var cands []*Symbol
	cands = append(cands, s.topLevel(name, true)...)
	cands = append(cands, s.packageSymbols(name, true)...)
	for _, imp := range s.file.Imports {
		switch {
		case imp.Star:
			cands = append(cands, s.starPackage(imp.Path, name, true)...)
		case imp.Name == name && s.ctx != nil:
			for _, sym := range s.ctx.qualified[imp.Path] {
				if sym.Decl.Receiver != nil {
					cands = append(cands, sym)
				}
			}
		}
	}
	cands = append(cands, prelude().exts[name]...)
	out := cands[:0]
	for _, c := range cands {
		if s.receiverAccepts(c, t) {
			out = append(out, c)
		}
	}
	return out
}

// receiverAccepts reports whether an extension declared on ext's receiver
// applies to t. Unknown types accept only generic receivers.
func (s *Semantic) receiverAccepts(ext *Symbol, t Type) bool {
	v := s.view(ext.Path)
	if v == nil || ext.Decl == nil || ext.Decl.Receiver == nil {
		return false
	}
	rt := ext.Decl.Receiver
	for _, tp := range ext.Decl.TypeParams {
		if tp.Name == rt.Name && rt.Qualifier == "" {
			return true
		}
	}
	want := v.typeFromRef(rt, nil)
	if want.Name == "Any" && want.Decl != nil && want.Path == PreludePath {
		return true
	}
	if t.Decl == nil {
		return t.Name != "" && want.Name == t.Name
	}
	if want.Decl == nil {
		return want.Name == t.Name
	}
	_, ok := s.asSupertype(t, want.Decl)
	return ok
}

func (s *Semantic) enclosingClass(scope *syntax.Scope) *syntax.Decl {
	for sc := scope; sc != nil; sc = sc.Parent {
		if sc.Kind == syntax.ScopeClass && sc.Owner != nil {
			return sc.Owner
		}
	}
	return nil
}
