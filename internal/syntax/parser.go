package syntax

import (
	"fmt"
	"strings"

	"kmpls/internal/lexer"
	"kmpls/internal/source"
	"kmpls/internal/token"
)

// Syntax error codes.
const (
	ErrExpected       = "SYN001"
	ErrUnexpected     = "SYN002"
	ErrUnclosed       = "SYN003"
	ErrMissingName    = "SYN004"
	ErrBadDeclaration = "SYN005"
)

type parser struct {
	file *File
	src  *source.File
	toks []token.Token
	pos  int

	// refAt maps a token index to the ref recorded for it, or -1.
	refAt []int
	// openOf maps a closing bracket token index to its opening index.
	openOf map[int]int

	scope      *Scope
	decl       *Decl
	recovering bool
	lastErrAt  uint32
	nesting    int
	// typeStop bounds type qualification while splitting receivers.
	typeStop int
	// lambdaCall maps a lambda's closing brace index to its call ref.
	lambdaCall map[int]int
}

type lexReporter struct{ f *File }

func (r lexReporter) Report(code string, sp source.Span, msg string) {
	r.f.Errors = append(r.f.Errors, Error{Span: sp, Code: code, Message: msg})
}

// Parse builds the structural tree of a source file. Parsing never fails; the
// result carries syntax errors for malformed input.
func Parse(path string, src *source.File) *File {
	f := &File{
		Path:   source.NormalizePath(path),
		Source: src,
		Script: strings.HasSuffix(path, ".kts"),
	}
	f.Tokens = lexer.Tokenize(src, lexer.Options{Reporter: lexReporter{f: f}})
	f.Root = &Scope{Kind: ScopeFile, Span: source.Span{File: src.ID, Start: 0, End: uint32(len(src.Content))}, CallRef: -1}

	p := newParser(f, f.Tokens)
	p.scope = f.Root
	p.parseFile()
	return f
}

// ParseText is a convenience for parsing in-memory text.
func ParseText(path, text string) *File {
	return Parse(path, source.NewFile(path, []byte(text)))
}

func newParser(f *File, toks []token.Token) *parser {
	refAt := make([]int, len(toks))
	for i := range refAt {
		refAt[i] = -1
	}
	return &parser{
		file:       f,
		src:        f.Source,
		toks:       toks,
		refAt:      refAt,
		openOf:     make(map[int]int),
		lambdaCall: make(map[int]int),
		lastErrAt:  ^uint32(0),
		typeStop:   -1,
	}
}

func (p *parser) tok() token.Token { return p.toks[p.pos] }

func (p *parser) peek(n int) token.Token {
	i := p.pos + n
	if i < 0 {
		return token.Token{}
	}
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) prev() token.Token { return p.peek(-1) }

func (p *parser) at(k token.Kind) bool { return p.toks[p.pos].Kind == k }

func (p *parser) atWord(w string) bool { return p.toks[p.pos].IsWord(w) }

func (p *parser) atEOF() bool { return p.toks[p.pos].Kind == token.EOF }

func (p *parser) next() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) eat(k token.Kind) bool {
	if p.at(k) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(k token.Kind, what string) (token.Token, bool) {
	if p.at(k) {
		return p.next(), true
	}
	p.errorf(ErrExpected, p.tok().Span, "expected %s", what)
	return p.tok(), false
}

// lastEnd is the end offset of the most recently consumed token.
func (p *parser) lastEnd() uint32 {
	if p.pos == 0 {
		return p.tok().Span.Start
	}
	return p.toks[p.pos-1].Span.End
}

func (p *parser) span(start uint32) source.Span {
	end := p.lastEnd()
	if end < start {
		end = start
	}
	return source.Span{File: p.src.ID, Start: start, End: end}
}

func (p *parser) errorf(code string, sp source.Span, format string, args ...any) {
	if sp.Start == p.lastErrAt {
		return
	}
	p.lastErrAt = sp.Start
	p.file.Errors = append(p.file.Errors, Error{Span: sp, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) text(sp source.Span) string {
	if p.src == nil {
		return ""
	}
	return p.src.Text(sp)
}

func (p *parser) pushScope(kind ScopeKind, start uint32, owner *Decl) *Scope {
	s := &Scope{
		Kind:    kind,
		Span:    source.Span{File: p.src.ID, Start: start, End: start},
		Parent:  p.scope,
		Owner:   owner,
		CallRef: -1,
	}
	if p.scope != nil {
		p.scope.Children = append(p.scope.Children, s)
	}
	p.scope = s
	return s
}

func (p *parser) popScope(s *Scope) {
	s.Span.End = p.lastEnd()
	if s.Span.End < s.Span.Start {
		s.Span.End = s.Span.Start
	}
	p.scope = s.Parent
}

func (p *parser) addLocal(l *Local) *Local {
	l.Scope = p.scope
	p.scope.Locals = append(p.scope.Locals, l)
	return l
}

func (p *parser) parseFile() {
	p.skipAnnotations()
	if p.at(token.KwPackage) {
		start := p.next().Span.Start
		name, _ := p.qualifiedName()
		p.file.Package = Package{Name: name, Span: p.span(start)}
		p.eat(token.Semicolon)
	}
	for {
		p.skipAnnotations()
		if !p.at(token.KwImport) {
			break
		}
		p.parseImport()
	}
	for !p.atEOF() {
		if p.eat(token.Semicolon) {
			continue
		}
		before := p.pos
		if d, ok := p.parseDeclaration(nil); ok {
			p.recovering = false
			if d != nil {
				p.file.Decls = append(p.file.Decls, d)
			}
			if p.pos == before {
				p.next()
			}
			continue
		}
		if p.file.Script {
			p.scanStatement()
			if p.pos == before {
				p.next()
			}
			continue
		}
		p.recover("expected a top-level declaration")
	}
}

// recover reports once and skips the offending token, jumping over balanced
// braces.
func (p *parser) recover(msg string) {
	if !p.recovering {
		p.errorf(ErrUnexpected, p.tok().Span, "%s, found %q", msg, p.tok().Text)
		p.recovering = true
	}
	if p.at(token.LBrace) {
		p.skipBalanced()
		return
	}
	p.next()
}

// skipBalanced consumes a bracketed group starting at the current token.
func (p *parser) skipBalanced() {
	depth := 0
	for !p.atEOF() {
		switch p.tok().Kind {
		case token.LParen, token.LBrace, token.LBracket:
			depth++
		case token.RParen, token.RBrace, token.RBracket:
			depth--
		}
		p.next()
		if depth <= 0 {
			return
		}
	}
}

// qualifiedName parses Ident {. Ident}.
func (p *parser) qualifiedName() (string, source.Span) {
	var parts []string
	var last source.Span
	for {
		tk, ok := p.expect(token.Ident, "identifier")
		if !ok {
			break
		}
		parts = append(parts, tk.Name())
		last = tk.Span
		if !(p.at(token.Dot) && p.peek(1).Kind == token.Ident) {
			break
		}
		p.next()
	}
	return strings.Join(parts, "."), last
}

func (p *parser) parseImport() {
	start := p.next().Span.Start
	imp := &Import{}
	pathStart := p.tok().Span.Start
	imp.Path, imp.NameSpan = p.qualifiedName()
	imp.PathSpan = p.span(pathStart)
	imp.Name = lastSegment(imp.Path)
	if p.at(token.Dot) && p.peek(1).Kind == token.Star {
		p.next()
		p.next()
		imp.Star = true
		imp.Name = ""
	} else if p.at(token.KwAs) {
		p.next()
		if tk, ok := p.expect(token.Ident, "import alias"); ok {
			imp.Alias = tk.Name()
			imp.AliasSpan = tk.Span
			imp.Name = imp.Alias
		}
	}
	imp.Span = p.span(start)
	p.eat(token.Semicolon)
	p.file.Imports = append(p.file.Imports, imp)
	if !imp.Star && imp.Path != "" {
		p.addRef(Ref{
			Name:      lastSegment(imp.Path),
			Span:      imp.NameSpan,
			Kind:      RefImport,
			Qualifier: qualifierOf(imp.Path),
			RecvRef:   -1,
			FirstArg:  -1,
		}, -1)
	}
}

// addRef records a ref; tokIdx links it to its token for receiver lookups.
func (p *parser) addRef(r Ref, tokIdx int) int {
	if r.Scope == nil {
		r.Scope = p.scope
	}
	if r.Decl == nil {
		r.Decl = p.decl
	}
	idx := len(p.file.Refs)
	p.file.Refs = append(p.file.Refs, r)
	if tokIdx >= 0 && tokIdx < len(p.refAt) {
		p.refAt[tokIdx] = idx
	}
	return idx
}

// skipAnnotations consumes annotation uses and returns their names.
func (p *parser) skipAnnotations() []string {
	var names []string
	for p.at(token.At) {
		p.next()
		// use-site target: @file:, @field:, @get: ...
		if p.at(token.Ident) && p.peek(1).Kind == token.Colon {
			p.next()
			p.next()
		}
		if p.at(token.LBracket) {
			p.skipBalanced()
			continue
		}
		if !p.at(token.Ident) {
			continue
		}
		name, _ := p.qualifiedName()
		names = append(names, name)
		if p.at(token.Lt) {
			p.skipTypeArgs()
		}
		if p.at(token.LParen) && !p.tok().NewlineBefore() {
			p.skipBalanced()
		}
	}
	return names
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func qualifierOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return ""
}
