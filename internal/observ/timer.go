// Package observ records phase timings of CLI runs.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase records the duration and metadata of one phase.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer tracks the execution time of multiple phases. It is safe for
// concurrent use.
type Timer struct {
	mu     sync.Mutex
	now    func() time.Time
	phases []Phase
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{now: time.Now, phases: make([]Phase, 0, 8)} }

// Begin starts a new phase and returns its index.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: t.now()})
	return len(t.phases) - 1
}

// End finishes a phase by its index.
func (t *Timer) End(idx int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.Dur = t.now().Sub(p.Start)
	p.Note = note
}

// Time runs fn as one phase.
func (t *Timer) Time(name string, fn func() error) error {
	idx := t.Begin(name)
	err := fn()
	note := ""
	if err != nil {
		note = "failed"
	}
	t.End(idx, note)
	return err
}

// Summary renders the phases as an aligned table with a total row.
func (t *Timer) Summary() string {
	report := t.Report()
	width := len("total")
	for _, p := range report.Phases {
		width = max(width, len(p.Name))
	}
	var b strings.Builder
	b.WriteString("timings:\n")
	row := func(name string, ms float64, note string) {
		fmt.Fprintf(&b, "  %-*s %8.2f ms", width, name, ms)
		if note != "" {
			b.WriteString("  (" + note + ")")
		}
		b.WriteByte('\n')
	}
	for _, p := range report.Phases {
		row(p.Name, p.DurationMS, p.Note)
	}
	row("total", report.TotalMS, "")
	return b.String()
}

// PhaseReport is one serialized phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report is the JSON form of a timer.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report snapshots the finished phases; the total sums their durations.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var report Report
	var total time.Duration
	for _, p := range t.phases {
		total += p.Dur
		report.Phases = append(report.Phases, PhaseReport{Name: p.Name, DurationMS: millis(p.Dur), Note: p.Note})
	}
	report.TotalMS = millis(total)
	return report
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
