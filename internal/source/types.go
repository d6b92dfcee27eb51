package source

type (
	// FileID uniquely identifies a source file within a FileSet.
	FileID uint32
	// FileFlags encodes metadata about a source file.
	FileFlags uint8
)

const (
	// FileVirtual indicates the file was added from memory (editor buffer, test).
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileHasCRLF
)

// File captures metadata and content for a single source file.
// Content is kept byte-for-byte as the editor or disk provided it so that
// offsets computed here agree with client positions.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32 // offsets of every '\n'
	Hash    [32]byte
	Flags   FileFlags
}

// Position is a zero-based line and UTF-16 code unit column.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open pair of positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Less orders positions by line, then column.
func (p Position) Less(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// Contains reports whether pos is inside r (end inclusive).
func (r Range) Contains(pos Position) bool {
	return !pos.Less(r.Start) && !r.End.Less(pos)
}
