package check

import (
	"time"

	"kmpls/internal/analyzer"
	"kmpls/internal/source"
)

// Stage describes a phase of a workspace check.
type Stage string

const (
	// StageIndex covers descriptor import and index construction.
	StageIndex Stage = "index"
	// StageAnalyze runs the analyzer over one file.
	StageAnalyze Stage = "analyze"
	// StageCrossCheck runs the tree-sitter grammar over one file.
	StageCrossCheck Stage = "crosscheck"
)

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress for a file (or for the whole check when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// Diagnostic is one reported problem with its resolved range.
type Diagnostic struct {
	Range    source.Range
	Severity analyzer.Severity
	Code     string
	Source   string
	Message  string
}

// FileResult holds the diagnostics of one file. Path is relative to the
// workspace root when the file lies under it.
type FileResult struct {
	Path        string
	URI         string
	Diagnostics []Diagnostic
	// Detached is set when the file was analyzed without a module context.
	Detached bool
}

// Result is the outcome of a check.
type Result struct {
	Files   []FileResult
	Elapsed time.Duration
}

// Count returns the number of diagnostics with the given severity.
func (r *Result) Count(sev analyzer.Severity) int {
	n := 0
	for _, f := range r.Files {
		for _, d := range f.Diagnostics {
			if d.Severity == sev {
				n++
			}
		}
	}
	return n
}

// HasErrors reports whether any file carries an error diagnostic.
func (r *Result) HasErrors() bool {
	return r.Count(analyzer.SeverityError) > 0
}
