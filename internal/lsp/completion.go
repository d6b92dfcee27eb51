package lsp

import (
	"fmt"
	"strings"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/token"
)

const (
	completionItemKindText        = 1
	completionItemKindMethod      = 2
	completionItemKindFunction    = 3
	completionItemKindConstructor = 4
	completionItemKindField       = 5
	completionItemKindVariable    = 6
	completionItemKindClass       = 7
	completionItemKindInterface   = 8
	completionItemKindModule      = 9
	completionItemKindProperty    = 10
	completionItemKindKeyword     = 14
	completionItemKindEnum        = 13
	completionItemKindEnumMember  = 20
	completionItemKindTypeParam   = 25
)

const maxImportCompletions = 200

func (s *Server) handleCompletion(msg *rpcMessage) error {
	var params textDocumentPositionParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	cfg := s.currentSettings()
	result := buildCompletion(s.sess, canonicalURI(params.TextDocument.URI), params.Position, cfg.keywords)
	return s.sendResponse(msg.ID, result)
}

func buildCompletion(sess *session.Session, uri string, pos position, keywords bool) completionList {
	items, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) ([]completionItem, error) {
		off := semOffset(sem, pos)
		prefix, start := completionPrefix(sem.File().Source, off)
		if path, ok := importPathAt(sem.File().Source, off); ok {
			return importCompletions(sess, path), nil
		}
		if precededByDot(sem, start) {
			return filterPrefix(memberCompletions(sem, start), prefix), nil
		}
		var out []completionItem
		if keywords {
			out = append(out, keywordCompletions()...)
		}
		out = append(out, scopeCompletions(sem, off)...)
		out = append(out, receiverCompletions(sem, off)...)
		return filterPrefix(out, prefix), nil
	})
	if !ok {
		return completionList{Items: []completionItem{}}
	}
	return completionList{IsIncomplete: false, Items: dedupeLabels(items)}
}

// completionPrefix returns the identifier part left of off and where it
// starts.
func completionPrefix(file *source.File, off int) (string, int) {
	start := off
	for start > 0 {
		c := file.Content[start-1]
		if c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80 {
			start--
			continue
		}
		break
	}
	return string(file.Content[start:off]), start
}

func precededByDot(sem *analyzer.Semantic, start int) bool {
	content := sem.File().Source.Content
	i := start - 1
	for i >= 0 && (content[i] == ' ' || content[i] == '\t') {
		i--
	}
	return i >= 0 && content[i] == '.' && (i == 0 || content[i-1] != '.')
}

// importPathAt reports the dotted path typed after "import" on the cursor
// line.
func importPathAt(file *source.File, off int) (string, bool) {
	line := file.PositionOf(source.SafeUint32(off)).Line
	lineStart, _ := file.LineBounds(line)
	before := strings.TrimLeft(string(file.Content[lineStart:off]), " \t")
	rest, ok := strings.CutPrefix(before, "import ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func importCompletions(sess *session.Session, typed string) []completionItem {
	var out []completionItem
	seen := make(map[string]struct{})
	for _, d := range sess.Declarations().Search("", 0) {
		if d.Container != "" {
			continue
		}
		q := d.QualifiedName()
		if !strings.HasPrefix(q, typed) {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, completionItem{Label: q, Kind: completionItemKindModule, Detail: d.Kind.String()})
		if len(out) >= maxImportCompletions {
			break
		}
	}
	return out
}

func keywordCompletions() []completionItem {
	words := token.Keywords()
	out := make([]completionItem, 0, len(words))
	for _, w := range words {
		out = append(out, completionItem{Label: w, Kind: completionItemKindKeyword, SortText: "9" + w})
	}
	return out
}

func scopeCompletions(sem *analyzer.Semantic, off int) []completionItem {
	var out []completionItem
	for _, sc := range sem.ScopesAt(off) {
		for _, sym := range sc.Symbols {
			out = append(out, symbolCompletion(sym, fmt.Sprintf("%d", sc.Level)))
		}
	}
	return out
}

// receiverCompletions offers members of the implicit receivers (this of
// enclosing classes and extension or lambda receivers).
func receiverCompletions(sem *analyzer.Semantic, off int) []completionItem {
	var out []completionItem
	for _, t := range sem.ImplicitReceivers(off) {
		for _, sym := range sem.MembersOf(t) {
			out = append(out, symbolCompletion(sym, "1"))
		}
	}
	return out
}

// memberCompletions lists members after "." or "?.". A bare classifier
// receiver offers its static members (companion, nested, enum entries).
func memberCompletions(sem *analyzer.Semantic, start int) []completionItem {
	t, sym, ok := sem.ReceiverBefore(start)
	if !ok {
		return nil
	}
	var members []*analyzer.Symbol
	if sym != nil {
		members = sem.StaticMembersOf(sym)
	} else {
		members = sem.MembersOf(t)
	}
	out := make([]completionItem, 0, len(members))
	for _, m := range members {
		out = append(out, symbolCompletion(m, "0"))
	}
	return out
}

func symbolCompletion(sym *analyzer.Symbol, rank string) completionItem {
	return completionItem{
		Label:    sym.Name,
		Kind:     completionKindForSymbol(sym),
		Detail:   sym.Signature(),
		SortText: rank + sym.Name,
	}
}

// isMember reports declarations nested in a class body, including
// properties declared by a primary constructor.
func isMember(sym *analyzer.Symbol) bool {
	if sym.Decl != nil {
		return !sym.Decl.Local && sym.Decl.Parent != nil && sym.Decl.Parent.Kind.IsClassifier()
	}
	return sym.Param != nil && sym.Owner != nil && sym.Owner.Kind.IsClassifier()
}

func completionKindForSymbol(sym *analyzer.Symbol) int {
	switch sym.Kind {
	case analyzer.SymClass, analyzer.SymObject, analyzer.SymTypeAlias:
		return completionItemKindClass
	case analyzer.SymInterface:
		return completionItemKindInterface
	case analyzer.SymEnum:
		return completionItemKindEnum
	case analyzer.SymEnumEntry:
		return completionItemKindEnumMember
	case analyzer.SymFunction:
		if isMember(sym) {
			return completionItemKindMethod
		}
		return completionItemKindFunction
	case analyzer.SymConstructor:
		return completionItemKindConstructor
	case analyzer.SymProperty:
		if isMember(sym) {
			return completionItemKindField
		}
		return completionItemKindProperty
	case analyzer.SymParam, analyzer.SymLocal:
		return completionItemKindVariable
	case analyzer.SymTypeParam:
		return completionItemKindTypeParam
	case analyzer.SymPackage:
		return completionItemKindModule
	}
	return completionItemKindText
}

func filterPrefix(items []completionItem, prefix string) []completionItem {
	if prefix == "" {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if len(it.Label) >= len(prefix) && strings.EqualFold(it.Label[:len(prefix)], prefix) {
			out = append(out, it)
		}
	}
	return out
}

// dedupeLabels keeps the first item of every label.
func dedupeLabels(items []completionItem) []completionItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]completionItem, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Label]; ok {
			continue
		}
		seen[it.Label] = struct{}{}
		out = append(out, it)
	}
	return out
}
