package format

// Writer accumulates formatted lines and emits canonical indentation.
type Writer struct {
	opt      Options
	buf      []byte
	blankRun int
}

// NewWriter creates a new formatting writer.
func NewWriter(capHint int, opt Options) *Writer {
	return &Writer{
		opt: opt.withDefaults(),
		buf: make([]byte, 0, capHint),
	}
}

// Bytes returns the accumulated formatted output.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) writeIndent(cols int) {
	if w.opt.UseTabs {
		for range cols / w.opt.IndentWidth {
			w.buf = append(w.buf, '\t')
		}
		cols %= w.opt.IndentWidth
	}
	for range cols {
		w.buf = append(w.buf, ' ')
	}
}

// Line writes one non-blank line: text without its indentation, which is
// given in columns.
func (w *Writer) Line(cols int, text, eol string) {
	w.blankRun = 0
	w.writeIndent(cols)
	w.buf = append(w.buf, text...)
	w.buf = append(w.buf, eol...)
}

// Verbatim copies a line as is.
func (w *Writer) Verbatim(line, eol string) {
	w.blankRun = 0
	w.buf = append(w.buf, line...)
	w.buf = append(w.buf, eol...)
}

// Blank writes an empty line unless the current run already holds
// MaxBlankLines of them.
func (w *Writer) Blank(eol string) {
	w.blankRun++
	if w.blankRun > w.opt.MaxBlankLines {
		return
	}
	w.buf = append(w.buf, eol...)
}

// Finish drops trailing blank lines and terminates the last line.
func (w *Writer) Finish(eol string) {
	for len(w.buf) > 0 {
		n := len(w.buf)
		switch {
		case w.buf[n-1] == '\n' && n >= 2 && w.buf[n-2] == '\n':
			w.buf = w.buf[:n-1]
		case w.buf[n-1] == '\n' && n >= 3 && w.buf[n-2] == '\r' && w.buf[n-3] == '\n':
			w.buf = w.buf[:n-2]
		default:
			if w.buf[n-1] != '\n' {
				w.buf = append(w.buf, eol...)
			}
			return
		}
	}
}
