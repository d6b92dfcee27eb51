package docstore

import (
	"fmt"
	"sync"
	"testing"
)

func TestLastWriteWins(t *testing.T) {
	s := New()
	s.Open("file:///a.kt", "one")
	s.Update("file:///a.kt", "two")
	if got, ok := s.Get("file:///a.kt"); !ok || got != "two" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestCloseRemoves(t *testing.T) {
	s := New()
	s.Open("file:///a.kt", "x")
	if !s.Close("file:///a.kt") {
		t.Fatal("Close should report the open document")
	}
	if s.Close("file:///a.kt") {
		t.Fatal("second Close should be a no-op")
	}
	if _, ok := s.Get("file:///a.kt"); ok || s.IsOpen("file:///a.kt") || s.Len() != 0 {
		t.Fatal("document survived Close")
	}
}

func TestURIsSorted(t *testing.T) {
	s := New()
	for _, u := range []string{"file:///c.kt", "file:///a.kt", "file:///b.kt"} {
		s.Open(u, "")
	}
	got := fmt.Sprint(s.URIs())
	if got != "[file:///a.kt file:///b.kt file:///c.kt]" {
		t.Fatalf("URIs = %s", got)
	}
	snap := s.Snapshot()
	s.Clear()
	if len(snap) != 3 || s.Len() != 0 {
		t.Fatalf("snapshot %d, len after clear %d", len(snap), s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uri := fmt.Sprintf("file:///%d.kt", i%2)
			for j := range 100 {
				s.Update(uri, fmt.Sprint(j))
				s.Get(uri)
				s.URIs()
			}
		}()
	}
	wg.Wait()
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}

func TestRevisionsAdvance(t *testing.T) {
	s := New()
	const uri = "file:///a.kt"
	if rev := s.Revision(uri); rev != 0 {
		t.Fatalf("unseen revision = %d", rev)
	}
	s.Open(uri, "one")
	_, opened, ok := s.Read(uri)
	if !ok || opened == 0 {
		t.Fatalf("Read after Open = %d, %v", opened, ok)
	}
	s.Update(uri, "one")
	if rev := s.Revision(uri); rev <= opened {
		t.Fatalf("identical update kept revision %d", rev)
	}
	s.Close(uri)
	closed := s.Revision(uri)
	if text, rev, ok := s.Read(uri); ok || text != "" || rev != closed {
		t.Fatalf("Read after Close = %q, %d, %v", text, rev, ok)
	}
	s.Touch(uri)
	if rev := s.Revision(uri); rev <= closed {
		t.Fatalf("Touch kept revision %d", rev)
	}
}
