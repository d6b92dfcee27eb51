package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fakeTimer() *Timer {
	t := NewTimer()
	base := time.Unix(0, 0)
	calls := 0
	t.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 5 * time.Millisecond)
	}
	return t
}

func TestTimerReport(t *testing.T) {
	tm := fakeTimer()
	idx := tm.Begin("open")
	tm.End(idx, "3 modules")
	if err := tm.Time("analyze", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("Time should pass the error through")
	}
	tm.End(42, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 || r.TotalMS != 10 {
		t.Fatalf("report = %+v", r)
	}
	if r.Phases[0].Note != "3 modules" || r.Phases[1].Note != "failed" || r.Phases[1].DurationMS != 5 {
		t.Fatalf("phases = %+v", r.Phases)
	}
	sum := tm.Summary()
	if !strings.Contains(sum, "open") || !strings.Contains(sum, "(failed)") || !strings.Contains(sum, "total") {
		t.Fatalf("summary = %q", sum)
	}
}

func TestEmptyTimer(t *testing.T) {
	if r := NewTimer().Report(); len(r.Phases) != 0 || r.TotalMS != 0 {
		t.Fatalf("report = %+v", r)
	}
}
