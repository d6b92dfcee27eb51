package lsp

import (
	"slices"

	"fortio.org/safecast"

	"kmpls/internal/analyzer"
	"kmpls/internal/index"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

// semOffset maps an editor position into the semantic file.
func semOffset(sem *analyzer.Semantic, pos position) int {
	return offsetAt(sem.File().Source, pos)
}

func rangeForSpan(file *source.File, sp source.Span) lspRange {
	return file.RangeOf(sp)
}

// symbolSite is where a resolved symbol's name sits in the current text of
// its file.
type symbolSite struct {
	uri  string
	path string
	file *source.File
	span source.Span
}

// siteOf locates sym in the current parse of its file. The analyzer context
// keeps the parse of its last build, so spans of declarations in documents
// edited since then are re-read from the current tree.
func siteOf(sess *session.Session, sem *analyzer.Semantic, sym *analyzer.Symbol) (symbolSite, bool) {
	if !sym.HasLocation() {
		return symbolSite{}, false
	}
	f := sem.File()
	if sym.Path != f.Path {
		tree, ok := sess.LoadTree(source.PathToURI(sym.Path))
		if !ok {
			return symbolSite{}, false
		}
		f = tree.File
	}
	site := symbolSite{uri: source.PathToURI(sym.Path), path: sym.Path, file: f.Source, span: sym.NameSpan}
	switch {
	case sym.Decl != nil:
		if d, ok := relocateDecl(f, sym.Decl); ok {
			site.span = d.NameSpan
		} else {
			return symbolSite{}, false
		}
	case sym.Param != nil && sym.Owner != nil:
		owner, ok := relocateDecl(f, sym.Owner)
		i := slices.Index(sym.Owner.Params, sym.Param)
		if !ok || i < 0 || i >= len(owner.Params) {
			return symbolSite{}, false
		}
		site.span = owner.Params[i].NameSpan
	}
	return site, true
}

// identity is the symbol key as seen in the current trees; two symbols
// resolved through different parses of one file still agree.
func identity(sess *session.Session, sem *analyzer.Semantic, sym *analyzer.Symbol) string {
	site, ok := siteOf(sess, sem, sym)
	if !ok {
		return sym.Key()
	}
	return (&analyzer.Symbol{Path: site.path, NameSpan: site.span}).Key()
}

// relocateDecl finds the declaration of f matching d by its chain of
// containers. Declarations already owned by f, and local ones, come back
// unchanged.
func relocateDecl(f *syntax.File, d *syntax.Decl) (*syntax.Decl, bool) {
	var chain []*syntax.Decl
	for cur := d; cur != nil; cur = cur.Parent {
		if cur.Local {
			return d, true
		}
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	if slices.Contains(f.Decls, chain[0]) {
		return d, true
	}
	cands := f.Decls
	var found *syntax.Decl
	for _, want := range chain {
		if found = sameDecl(cands, want); found == nil {
			return nil, false
		}
		cands = found.Members
	}
	return found, true
}

// sameDecl picks the candidate with d's name and kind; overloads are told
// apart by parameter names.
func sameDecl(cands []*syntax.Decl, d *syntax.Decl) *syntax.Decl {
	var first *syntax.Decl
	for _, c := range cands {
		if c.Name != d.Name || c.Kind != d.Kind || c.Companion != d.Companion {
			continue
		}
		if slices.Equal(c.ParamNames(), d.ParamNames()) {
			return c
		}
		if first == nil {
			first = c
		}
	}
	return first
}

// symbolLocation turns a resolved workspace symbol into a location at its
// name. Other files are loaded through the session without rebuilding.
func symbolLocation(sess *session.Session, sem *analyzer.Semantic, sym *analyzer.Symbol) (location, bool) {
	site, ok := siteOf(sess, sem, sym)
	if !ok {
		return location{}, false
	}
	return location{URI: site.uri, Range: rangeForSpan(site.file, site.span)}, true
}

func declarationLocation(d index.Declaration) location {
	return location{URI: d.FileURI, Range: d.NameRange}
}

// identAt returns the identifier token covering off; a cursor right after an
// identifier still selects it.
func identAt(f *syntax.File, off int) (token.Token, bool) {
	o, err := safecast.Conv[uint32](off)
	if err != nil {
		return token.Token{}, false
	}
	k := f.TokenIndexAt(o)
	if k < len(f.Tokens) {
		if tk := f.Tokens[k]; tk.Kind == token.Ident && tk.Span.Start <= o {
			return tk, true
		}
	}
	for i := min(k, len(f.Tokens)-1); i >= 0; i-- {
		tk := f.Tokens[i]
		if tk.Span.End < o {
			break
		}
		if tk.Kind == token.Ident && tk.Span.End == o {
			return tk, true
		}
	}
	return token.Token{}, false
}
