package source

import (
	"fmt"
)

// Span is a half-open byte range inside one file.
type Span struct {
	File  FileID
	Start uint32 // в байтах включительно
	End   uint32 // в байтах не включительно
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover returns the smallest span containing both s and other.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Contains reports whether off lies inside the span. The end offset counts as
// inside so that a cursor placed right after an identifier still hits it.
func (s Span) Contains(off uint32) bool {
	return off >= s.Start && off <= s.End
}

// ContainsSpan reports whether other is fully nested in s.
func (s Span) ContainsSpan(other Span) bool {
	return other.Start >= s.Start && other.End <= s.End
}
