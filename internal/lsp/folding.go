package lsp

import (
	"sort"
	"strings"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

const (
	foldingKindComment = "comment"
	foldingKindImports = "imports"
)

type braceEntry struct {
	line int
	span source.Span
}

func (s *Server) handleFoldingRange(msg *rpcMessage) error {
	var params foldingRangeParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	tree, ok := s.sess.SyntaxTree(canonicalURI(params.TextDocument.URI))
	if !ok || tree.File == nil {
		return s.sendResponse(msg.ID, []foldingRange{})
	}
	return s.sendResponse(msg.ID, buildFoldingRanges(tree.File))
}

// buildFoldingRanges folds declarations from their header line, remaining
// brace blocks, the import list and comments.
func buildFoldingRanges(f *syntax.File) []foldingRange {
	file := f.Source
	ranges := make([]foldingRange, 0, 16)
	declEnds := make(map[int]int)

	for _, d := range append(f.AllDecls(), f.LocalDecls...) {
		startLine := lineForOffset(file, d.Span.Start)
		endLine := lineForOffset(file, spanLastOffset(d.Span))
		if startLine >= endLine {
			continue
		}
		ranges = append(ranges, foldingRange{StartLine: startLine, EndLine: endLine})
		declEnds[endLine] = startLine
	}

	stack := make([]braceEntry, 0, 8)
	for _, tok := range f.Tokens {
		switch tok.Kind {
		case token.LBrace:
			stack = append(stack, braceEntry{line: lineForOffset(file, tok.Span.Start), span: tok.Span})
		case token.RBrace:
			if len(stack) == 0 {
				continue
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			endLine := lineForOffset(file, tok.Span.Start)
			if open.line >= endLine {
				continue
			}
			if start, ok := declEnds[endLine]; ok && start <= open.line {
				continue
			}
			ranges = append(ranges, foldingRange{StartLine: open.line, EndLine: endLine})
		}
	}

	if n := len(f.Imports); n > 1 {
		first := lineForOffset(file, f.Imports[0].Span.Start)
		last := lineForOffset(file, spanLastOffset(f.Imports[n-1].Span))
		if first < last {
			ranges = append(ranges, foldingRange{StartLine: first, EndLine: last, Kind: foldingKindImports})
		}
	}

	ranges = append(ranges, commentFoldingRanges(file, f.Tokens)...)

	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].StartLine == ranges[j].StartLine {
			return ranges[i].EndLine < ranges[j].EndLine
		}
		return ranges[i].StartLine < ranges[j].StartLine
	})
	return ranges
}

// commentFoldingRanges folds block comments spanning lines and runs of two or
// more consecutive line comments.
func commentFoldingRanges(file *source.File, toks []token.Token) []foldingRange {
	var out []foldingRange
	runStart, runEnd := -1, -1
	flush := func() {
		if runStart >= 0 && runEnd > runStart {
			out = append(out, foldingRange{StartLine: runStart, EndLine: runEnd, Kind: foldingKindComment})
		}
		runStart, runEnd = -1, -1
	}
	for _, tok := range toks {
		for _, tv := range tok.Leading {
			switch tv.Kind {
			case token.TriviaLineComment:
				line := lineForOffset(file, tv.Span.Start)
				if runStart >= 0 && line == runEnd+1 {
					runEnd = line
					continue
				}
				flush()
				runStart, runEnd = line, line
			case token.TriviaBlockComment, token.TriviaDocBlock:
				flush()
				if strings.Contains(tv.Text, "\n") {
					out = append(out, foldingRange{
						StartLine: lineForOffset(file, tv.Span.Start),
						EndLine:   lineForOffset(file, spanLastOffset(tv.Span)),
						Kind:      foldingKindComment,
					})
				}
			case token.TriviaNewline, token.TriviaSpace:
			default:
				flush()
			}
		}
		if tok.Kind != token.EOF {
			flush()
		}
	}
	flush()
	return out
}

func lineForOffset(file *source.File, offset uint32) int {
	return file.PositionOf(offset).Line
}

func spanLastOffset(span source.Span) uint32 {
	if span.End > span.Start {
		return span.End - 1
	}
	return span.End
}
