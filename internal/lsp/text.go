package lsp

import "kmpls/internal/source"

// applyChanges applies incremental or full content changes in order. Each
// ranged change is mapped through the UTF-16 position bijection of the text
// it applies to.
func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		file := source.NewFile("", []byte(text))
		start := int(file.OffsetOf(change.Range.Start))
		end := int(file.OffsetOf(change.Range.End))
		if end < start {
			end = start
		}
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

// offsetAt converts an editor position inside text to a byte offset.
func offsetAt(file *source.File, pos position) int {
	return int(file.OffsetOf(pos))
}
