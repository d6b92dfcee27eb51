package lsp

import (
	"strings"

	"kmpls/internal/format"
	"kmpls/internal/session"
	"kmpls/internal/source"
)

func (s *Server) handleFormatting(msg *rpcMessage) error {
	var params documentFormattingParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	return s.sendResponse(msg.ID, buildFormatting(s.sess, uri, params.Options, nil))
}

func (s *Server) handleRangeFormatting(msg *rpcMessage) error {
	var params documentRangeFormattingParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	return s.sendResponse(msg.ID, buildFormatting(s.sess, uri, params.Options, &params.Range))
}

func formatOptions(o formattingOptions) format.Options {
	return format.Options{IndentWidth: o.TabSize, UseTabs: !o.InsertSpaces}
}

// buildFormatting formats the document, or the lines a range touches, and
// returns at most one edit covering the changed lines.
func buildFormatting(sess *session.Session, uri string, opts formattingOptions, rng *lspRange) []textEdit {
	text, ok := sess.ReadText(uri)
	if !ok {
		return []textEdit{}
	}
	path := source.URIToPath(uri)
	var out []byte
	if rng == nil {
		out = format.Source(path, []byte(text), formatOptions(opts))
	} else {
		first, last := int(rng.Start.Line), int(rng.End.Line)
		if rng.End.Character == 0 && last > first {
			last--
		}
		out = format.Lines(path, []byte(text), formatOptions(opts), first, last)
	}
	edit, changed := lineEdit(text, string(out))
	if !changed {
		return []textEdit{}
	}
	return []textEdit{edit}
}

// lineEdit describes new as one replacement of whole lines of old.
func lineEdit(old, new string) (textEdit, bool) {
	if old == new {
		return textEdit{}, false
	}
	prefix := 0
	for prefix < len(old) && prefix < len(new) && old[prefix] == new[prefix] {
		prefix++
	}
	prefix = strings.LastIndexByte(old[:prefix], '\n') + 1

	suffix := 0
	for suffix < len(old)-prefix && suffix < len(new)-prefix && old[len(old)-1-suffix] == new[len(new)-1-suffix] {
		suffix++
	}
	// keep the suffix starting right after a line break
	for suffix > 0 && len(old)-suffix > prefix && old[len(old)-suffix-1] != '\n' {
		suffix--
	}

	file := source.NewFile("", []byte(old))
	start := file.PositionOf(source.SafeUint32(prefix))
	end := file.PositionOf(source.SafeUint32(len(old) - suffix))
	return textEdit{
		Range:   lspRange{Start: start, End: end},
		NewText: new[prefix : len(new)-suffix],
	}, true
}
