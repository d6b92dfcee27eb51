package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kmpls/internal/analyzer"
	"kmpls/internal/project"
	"kmpls/internal/source"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newWorkspace lays out a single-module workspace under src and returns the
// session with the injected clock.
func newWorkspace(t *testing.T, opts Options) (*Session, *fakeClock, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "Utils.kt"), "package app\n\nfun helper(): String = \"x\"\n")
	writeFile(t, filepath.Join(root, "src", "Main.kt"), "package app\n\nfun main() {\n    println(helper())\n}\n")
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	if opts.Debounce == 0 {
		opts.Debounce = time.Second
	}
	s := New(opts)
	t.Cleanup(s.Dispose)
	if err := s.Initialize(context.Background(), root, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s, clock, root
}

func uriOf(root string, parts ...string) string {
	return source.PathToURI(filepath.Join(append([]string{root}, parts...)...))
}

func TestInitializeFallbackModule(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	mods := s.Modules()
	if len(mods) != 1 || mods[0].Name != "main" || mods[0].SourceRoots[0] != filepath.Join(root, "src") {
		t.Fatalf("modules = %+v", mods)
	}
	st := s.Stats()
	if st.Rebuilds != 1 || st.Generation != 1 || !st.Attached || st.Dirty {
		t.Fatalf("stats after Initialize = %+v", st)
	}
	if got := s.Declarations().FindByName("helper"); len(got) != 1 || got[0].FileURI != uriOf(root, "src", "Utils.kt") {
		t.Fatalf("helper records = %+v", got)
	}
	if files, ok := s.References().FilesFor("helper"); !ok || len(files) != 2 {
		t.Fatalf("helper occurrences = %v", files)
	}
}

func TestDebounceWaitsForQuietPeriod(t *testing.T) {
	s, clock, root := newWorkspace(t, Options{})
	uri := uriOf(root, "src", "Main.kt")
	clock.Advance(5 * time.Second)

	for i := range 5 {
		s.UpdateDocument(uri, "package app\n\nfun main() { println("+strings.Repeat("1", i+1)+") }\n")
		clock.Advance(900 * time.Millisecond)
		if _, ok := s.SyntaxTree(uri); !ok {
			t.Fatal("tree missing")
		}
		if got := s.Stats().Rebuilds; got != 1 {
			t.Fatalf("edit %d: rebuilt inside the debounce window (%d)", i, got)
		}
	}
	if !s.Stats().Dirty {
		t.Fatal("write-through edits should mark the session dirty")
	}
	clock.Advance(100 * time.Millisecond)
	s.SyntaxTree(uri)
	st := s.Stats()
	if st.Rebuilds != 2 || st.Dirty || st.PendingWrites != 0 {
		t.Fatalf("after quiet period: %+v", st)
	}
	s.SyntaxTree(uri)
	if got := s.Stats().Rebuilds; got != 2 {
		t.Fatalf("clean session rebuilt again (%d)", got)
	}

	if err := s.ForceRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.Stats().Rebuilds; got != 3 {
		t.Fatalf("ForceRebuild must always rebuild (%d)", got)
	}
}

func TestDebounceAlsoWaitsAfterRebuild(t *testing.T) {
	s, clock, root := newWorkspace(t, Options{})
	uri := uriOf(root, "src", "Main.kt")
	// the edit is quiet long enough but the last rebuild is too recent
	s.UpdateDocument(uri, "package app\nfun main() {}\n")
	if !s.Stats().Dirty {
		t.Fatal("expected dirty")
	}
	s.mu.Lock()
	s.lastEdit = clock.Now().Add(-time.Hour)
	s.mu.Unlock()
	clock.Advance(500 * time.Millisecond)
	s.SyntaxTree(uri)
	if s.Stats().Rebuilds != 1 {
		t.Fatal("rebuilt before the rebuild interval elapsed")
	}
	clock.Advance(500 * time.Millisecond)
	s.SyntaxTree(uri)
	if s.Stats().Rebuilds != 2 {
		t.Fatal("expected the debounced rebuild")
	}
}

func TestWriteThrough(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	path := filepath.Join(root, "src", "Utils.kt")
	text := "package app\n\nfun helper(): String = \"edited\"\n"
	s.UpdateDocument(source.PathToURI(path), text)
	data, err := os.ReadFile(path)
	if err != nil || string(data) != text {
		t.Fatalf("disk = %q, %v", data, err)
	}
	if st := s.Stats(); st.PendingWrites != 1 || !st.Dirty {
		t.Fatalf("stats = %+v", st)
	}

	outside := filepath.Join(root, "notes.kt")
	writeFile(t, outside, "fun notes() {}\n")
	s.UpdateDocument(source.PathToURI(outside), "fun changed() {}\n")
	if data, _ := os.ReadFile(outside); string(data) != "fun notes() {}\n" {
		t.Fatal("files outside source roots must not be written")
	}

	fresh := filepath.Join(root, "src", "New.kt")
	s.UpdateDocument(source.PathToURI(fresh), "fun fresh() {}\n")
	if _, err := os.Stat(fresh); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("write-through must not create files")
	}
}

func TestWriteThroughDisabled(t *testing.T) {
	off := false
	s, _, root := newWorkspace(t, Options{WriteThrough: &off})
	path := filepath.Join(root, "src", "Utils.kt")
	s.UpdateDocument(source.PathToURI(path), "package app\nfun other() {}\n")
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "helper") {
		t.Fatalf("disk changed with write-through off: %q", data)
	}
	if got := s.Declarations().FindByName("other"); len(got) != 1 {
		t.Fatal("indices must still follow the editor text")
	}
	if st := s.Stats(); st.Dirty || st.PendingWrites != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestUpdateThenCloseLeavesNothing(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	uri := uriOf(root, "src", "Scratch.kt")
	s.UpdateDocument(uri, "fun scratch() {}\n")
	if _, ok := s.SyntaxTree(uri); !ok {
		t.Fatal("open document should have a tree")
	}
	s.CloseDocument(uri)
	st := s.Stats()
	if st.Documents != 0 || st.PendingWrites != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if _, ok := s.trees.get(uri); ok {
		t.Fatal("tree survived close")
	}
	if len(s.Declarations().FindByName("scratch")) != 0 || s.References().Contains(uri) {
		t.Fatal("index entries of a file that is not on disk survived close")
	}
	if _, ok := s.SyntaxTree(uri); ok {
		t.Fatal("closed document without a disk file has no tree")
	}
}

func TestCloseRestoresDiskIndex(t *testing.T) {
	s, _, root := newWorkspace(t, Options{WriteThrough: new(bool)})
	uri := uriOf(root, "src", "Utils.kt")
	s.UpdateDocument(uri, "package app\nfun renamed() {}\n")
	s.CloseDocument(uri)
	if len(s.Declarations().FindByName("helper")) != 1 || len(s.Declarations().FindByName("renamed")) != 0 {
		t.Fatal("close should re-index from disk")
	}
}

func TestAttachedAndDetachedTrees(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	attached, ok := s.SyntaxTree(uriOf(root, "src", "Main.kt"))
	if !ok || !attached.Attached || attached.Module != "main" {
		t.Fatalf("Main.kt tree = %+v", attached)
	}
	if again, _ := s.SyntaxTree(uriOf(root, "src", "Main.kt")); again != attached {
		t.Fatal("tree should be cached within a generation")
	}

	scratch := uriOf(root, "Scratch.kt")
	s.UpdateDocument(scratch, "fun scratch() = 1\n")
	detached, ok := s.SyntaxTree(scratch)
	if !ok || detached.Attached || detached.Module != "" {
		t.Fatalf("scratch tree = %+v", detached)
	}
	if _, ok := s.SyntaxTree(uriOf(root, "Missing.kt")); ok {
		t.Fatal("no text, no tree")
	}

	if err := s.ForceRebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	fresh, _ := s.SyntaxTree(uriOf(root, "src", "Main.kt"))
	if fresh == attached || fresh.Generation != attached.Generation+1 {
		t.Fatalf("rebuild should invalidate trees: %d -> %d", attached.Generation, fresh.Generation)
	}
}

func TestOpenDocumentShadowsDisk(t *testing.T) {
	off := false
	s, _, root := newWorkspace(t, Options{WriteThrough: &off})
	uri := uriOf(root, "src", "Main.kt")
	s.UpdateDocument(uri, "package app\nfun main() { val shadow = 1 }\n")
	tree, ok := s.SyntaxTree(uri)
	if !ok || !tree.Attached || !strings.Contains(string(tree.File.Source.Content), "shadow") {
		t.Fatal("attached tree must be parsed from the editor text")
	}
}

func TestWithSemanticAnalysis(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	uri := uriOf(root, "src", "Main.kt")
	text, _ := s.ReadText(uri)
	off := strings.Index(text, "helper()")

	path, ok := WithSemanticAnalysis(s, uri, func(sem *analyzer.Semantic) (string, error) {
		sym, ok := sem.Resolve(off)
		if !ok {
			return "", errors.New("unresolved")
		}
		return sym.Path, nil
	})
	if !ok || filepath.Base(path) != "Utils.kt" {
		t.Fatalf("helper resolved to %q, %v", path, ok)
	}

	if n, ok := WithSemanticAnalysis(s, uri, func(*analyzer.Semantic) (int, error) {
		return 7, errors.New("boom")
	}); ok || n != 0 {
		t.Fatalf("error should give the zero value, got %d %v", n, ok)
	}
	if _, ok := WithSemanticAnalysis(s, uri, func(*analyzer.Semantic) (int, error) {
		panic("analyzer bug")
	}); ok {
		t.Fatal("panic should be recovered as a failure")
	}
	if _, ok := WithSemanticAnalysis(s, uriOf(root, "Missing.kt"), func(*analyzer.Semantic) (int, error) {
		return 1, nil
	}); ok {
		t.Fatal("no tree, no answer")
	}
}

func TestInvalidateFile(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	path := filepath.Join(root, "src", "Extra.kt")
	writeFile(t, path, "package app\nfun extra() {}\n")
	s.InvalidateFile(source.PathToURI(path))
	if len(s.Declarations().FindByName("extra")) != 1 {
		t.Fatal("external file should be indexed")
	}
	if !s.Stats().Dirty {
		t.Fatal("invalidation marks the session dirty")
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	s.InvalidateFile(source.PathToURI(path))
	if len(s.Declarations().FindByName("extra")) != 0 {
		t.Fatal("deleted file should leave the index")
	}
}

func TestMultiModuleDescriptor(t *testing.T) {
	root := t.TempDir()
	common := filepath.Join(root, "common")
	jvm := filepath.Join(root, "jvm")
	writeFile(t, filepath.Join(common, "Platform.kt"), "package app\nexpect fun platformName(): String\n")
	writeFile(t, filepath.Join(jvm, "Platform.kt"), "package app\nactual fun platformName(): String = \"JVM\"\n")
	desc := &project.Descriptor{
		Name:     "demo",
		RootPath: root,
		Modules: []project.ModuleDescriptor{
			{Name: "jvm", Platform: project.PlatformJVM, SourceRoots: []string{jvm}, DependsOn: []string{"common"}},
			{Name: "common", Platform: project.PlatformCommon, SourceRoots: []string{common}},
		},
	}
	s := New(Options{})
	defer s.Dispose()
	if err := s.Initialize(context.Background(), root, desc); err != nil {
		t.Fatal(err)
	}
	mods := s.Modules()
	if mods[0].Name != "common" || mods[1].Name != "jvm" {
		t.Fatalf("modules not in dependency order: %s, %s", mods[0].Name, mods[1].Name)
	}
	if got := s.Overrides().GetImplementationsFor("platformName"); len(got) != 1 || got[0].FileURI != source.PathToURI(filepath.Join(jvm, "Platform.kt")) {
		t.Fatalf("implementations = %+v", got)
	}
	if m, ok := s.ModuleOf(filepath.Join(jvm, "Platform.kt")); !ok || m != "jvm" {
		t.Fatalf("ModuleOf = %q, %v", m, ok)
	}
	idx, g := s.Graph()
	if from := idx.NameToID["jvm"]; len(g.Edges[from]) != 1 {
		t.Fatalf("jvm edges = %v", g.Edges[from])
	}
}

func TestCyclicDescriptorStillInitializes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "A.kt"), "fun a() {}\n")
	writeFile(t, filepath.Join(root, "b", "B.kt"), "fun b() {}\n")
	desc := &project.Descriptor{Modules: []project.ModuleDescriptor{
		{Name: "a", SourceRoots: []string{filepath.Join(root, "a")}, DependsOn: []string{"b"}},
		{Name: "b", SourceRoots: []string{filepath.Join(root, "b")}, DependsOn: []string{"a"}},
	}}
	s := New(Options{})
	defer s.Dispose()
	if err := s.Initialize(context.Background(), root, desc); err != nil {
		t.Fatal(err)
	}
	if len(s.Modules()) != 2 || s.Declarations().Len() != 2 {
		t.Fatalf("stats = %+v", s.Stats())
	}
}

type failingEngine struct{}

func (failingEngine) BuildContext(context.Context, []analyzer.ModuleSpec) (*analyzer.Context, error) {
	return nil, errors.New("no compiler")
}

func TestConstructionFailureDegradesToDetached(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "A.kt"), "fun a() {}\n")
	s := New(Options{Engine: failingEngine{}})
	defer s.Dispose()
	err := s.Initialize(context.Background(), root, nil)
	if err == nil || !strings.Contains(err.Error(), "no compiler") {
		t.Fatalf("Initialize error = %v", err)
	}
	tree, ok := s.SyntaxTree(uriOf(root, "src", "A.kt"))
	if !ok || tree.Attached {
		t.Fatalf("tree = %+v", tree)
	}
	if len(s.Declarations().FindByName("a")) != 1 {
		t.Fatal("indices are built even without a context")
	}
	if err := s.ForceRebuild(context.Background()); err == nil {
		t.Fatal("rebuild errors propagate")
	}
}

func TestConcurrentForceRebuild(t *testing.T) {
	s, _, _ := newWorkspace(t, Options{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ForceRebuild(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := s.Stats().Rebuilds; got < 2 || got > 9 {
		t.Fatalf("rebuilds = %d", got)
	}
}

func TestDispose(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	s.UpdateDocument(uriOf(root, "src", "Main.kt"), "fun main() {}\n")
	s.Dispose()
	s.Dispose()
	st := s.Stats()
	if st.Documents != 0 || st.Attached || st.Declarations != 0 || st.Trees != 0 {
		t.Fatalf("stats after Dispose = %+v", st)
	}
	if err := s.Initialize(context.Background(), root, nil); !errors.Is(err, ErrDisposed) {
		t.Fatalf("Initialize after Dispose = %v", err)
	}
	if err := s.ForceRebuild(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Fatalf("ForceRebuild after Dispose = %v", err)
	}
	s.UpdateDocument(uriOf(root, "src", "Main.kt"), "x")
	if s.Documents().Len() != 0 {
		t.Fatal("updates after Dispose are ignored")
	}
}

func TestTreeNeverOutlivesItsText(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	uri := uriOf(root, "src", "Big.kt")
	var b strings.Builder
	b.WriteString("package app\n\n")
	for i := range 4000 {
		fmt.Fprintf(&b, "fun f%d() = %d\n", i, i)
	}
	big := b.String()

	for i := range 100 {
		s.UpdateDocument(uri, big)
		next := fmt.Sprintf("package app\n\nfun only%d() = 0\n", i)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.LoadTree(uri)
		}()
		s.UpdateDocument(uri, next)
		wg.Wait()

		tree, ok := s.LoadTree(uri)
		if !ok {
			t.Fatal("no tree for open document")
		}
		if got := string(tree.File.Source.Content); got != next {
			t.Fatalf("iteration %d: tree holds %d bytes of old text", i, len(got))
		}
	}
}

func TestStatsCountOverrides(t *testing.T) {
	s, _, root := newWorkspace(t, Options{})
	s.UpdateDocument(uriOf(root, "src", "Platform.kt"), "package app\n\nexpect fun platform(): String\nexpect class Clock\n")
	s.UpdateDocument(uriOf(root, "src", "Platform.jvm.kt"), "package app\n\nactual fun platform(): String = \"jvm\"\n")
	if st := s.Stats(); st.Expects != 2 || st.Actuals != 1 {
		t.Fatalf("stats = %+v", st)
	}
	s.CloseDocument(uriOf(root, "src", "Platform.jvm.kt"))
	if st := s.Stats(); st.Expects != 2 || st.Actuals != 0 {
		t.Fatalf("stats after close = %+v", st)
	}
}
