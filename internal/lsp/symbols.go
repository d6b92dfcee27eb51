package lsp

import (
	"kmpls/internal/index"
	"kmpls/internal/session"
	"kmpls/internal/syntax"
)

const maxWorkspaceSymbols = 500

const (
	symbolKindFile          = 1
	symbolKindModule        = 2
	symbolKindPackage       = 4
	symbolKindClass         = 5
	symbolKindMethod        = 6
	symbolKindProperty      = 7
	symbolKindField         = 8
	symbolKindConstructor   = 9
	symbolKindEnum          = 10
	symbolKindInterface     = 11
	symbolKindFunction      = 12
	symbolKindObject        = 19
	symbolKindEnumMember    = 22
	symbolKindTypeParameter = 26
)

func (s *Server) handleDocumentSymbol(msg *rpcMessage) error {
	var params documentSymbolParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	return s.sendResponse(msg.ID, buildDocumentSymbols(s.sess, canonicalURI(params.TextDocument.URI)))
}

func (s *Server) handleWorkspaceSymbol(msg *rpcMessage) error {
	var params workspaceSymbolParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	return s.sendResponse(msg.ID, buildWorkspaceSymbols(s.sess, params.Query))
}

func buildDocumentSymbols(sess *session.Session, uri string) []documentSymbol {
	tree, ok := sess.SyntaxTree(uri)
	if !ok || tree.File == nil {
		return []documentSymbol{}
	}
	return declSymbols(tree.File, tree.File.Decls)
}

func declSymbols(f *syntax.File, decls []*syntax.Decl) []documentSymbol {
	out := make([]documentSymbol, 0, len(decls))
	for _, d := range decls {
		name := d.Name
		if name == "" {
			if !d.Companion {
				continue
			}
			name = "Companion"
		}
		sym := documentSymbol{
			Name:           name,
			Detail:         d.Signature(),
			Kind:           symbolKindForDecl(d),
			Range:          rangeForSpan(f.Source, d.Span),
			SelectionRange: rangeForSpan(f.Source, d.NameSpan),
		}
		if d.NameSpan.End == d.NameSpan.Start {
			sym.SelectionRange = sym.Range
		}
		if len(d.Members) > 0 {
			sym.Children = declSymbols(f, d.Members)
		}
		out = append(out, sym)
	}
	return out
}

func symbolKindForDecl(d *syntax.Decl) int {
	switch d.Kind {
	case syntax.DeclClass, syntax.DeclTypeAlias:
		return symbolKindClass
	case syntax.DeclInterface:
		return symbolKindInterface
	case syntax.DeclObject:
		return symbolKindObject
	case syntax.DeclEnum:
		return symbolKindEnum
	case syntax.DeclEnumEntry:
		return symbolKindEnumMember
	case syntax.DeclConstructor:
		return symbolKindConstructor
	case syntax.DeclFunction:
		if d.Parent != nil {
			return symbolKindMethod
		}
		return symbolKindFunction
	case syntax.DeclProperty:
		if d.Parent != nil {
			return symbolKindField
		}
		return symbolKindProperty
	}
	return symbolKindFile
}

func symbolKindForIndex(k index.Kind) int {
	switch k {
	case index.KindClass, index.KindTypeAlias:
		return symbolKindClass
	case index.KindInterface:
		return symbolKindInterface
	case index.KindObject:
		return symbolKindObject
	case index.KindEnum:
		return symbolKindEnum
	case index.KindEnumEntry:
		return symbolKindEnumMember
	case index.KindConstructor:
		return symbolKindConstructor
	case index.KindFunction:
		return symbolKindFunction
	case index.KindProperty:
		return symbolKindProperty
	}
	return symbolKindFile
}

// buildWorkspaceSymbols answers from the declaration index; constructors are
// left out since their class is listed under the same name.
func buildWorkspaceSymbols(sess *session.Session, query string) []symbolInformation {
	decls := sess.Declarations().Search(query, 0)
	out := make([]symbolInformation, 0, min(len(decls), maxWorkspaceSymbols))
	for _, d := range decls {
		if d.Kind == index.KindConstructor {
			continue
		}
		container := d.Container
		if container == "" {
			container = d.Package
		}
		out = append(out, symbolInformation{
			Name:          d.Name,
			Kind:          symbolKindForIndex(d.Kind),
			Location:      declarationLocation(d),
			ContainerName: container,
		})
		if len(out) >= maxWorkspaceSymbols {
			break
		}
	}
	return out
}
