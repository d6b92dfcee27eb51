// Package check runs the analyzer over every source file of a workspace
// outside of an editor session.
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kmpls/internal/analyzer"
	"kmpls/internal/project"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/treesitter"
)

const (
	analyzerSource   = "kmpls"
	treeSitterSource = "tree-sitter"
	treeSitterCode   = "TREE_SITTER"
)

// Request configures a check.
type Request struct {
	// Files restricts the check to these paths; every source file when empty.
	Files      []string
	Jobs       int
	TreeSitter bool
	// SkipUnresolved drops unresolved reference diagnostics.
	SkipUnresolved bool
	// MaxPerFile caps diagnostics per file; zero means no cap.
	MaxPerFile int
	Progress   ProgressSink
	Logger     *slog.Logger
}

// Open imports the descriptor at root and initializes a session over it. A
// workspace without any configuration falls back to a single module.
func Open(ctx context.Context, root string, opts session.Options) (*session.Session, error) {
	desc, err := project.Import(root)
	if err != nil && !errors.Is(err, project.ErrNoProject) {
		return nil, fmt.Errorf("import project: %w", err)
	}
	sess := session.New(opts)
	if err := sess.Initialize(ctx, root, desc); err != nil {
		if ctx.Err() != nil {
			sess.Dispose()
			return nil, ctx.Err()
		}
		// detached trees still yield syntax diagnostics
		if opts.Logger != nil {
			opts.Logger.Warn("analyzer context unavailable", "err", err)
		}
	}
	return sess, nil
}

// DisplayPath renders path relative to root with forward slashes.
func DisplayPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Files lists the files a request covers in display form, mostly for
// progress rendering before Run starts.
func Files(sess *session.Session, req Request) []string {
	paths := targets(sess, req)
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = DisplayPath(sess.Root(), p)
	}
	return out
}

func targets(sess *session.Session, req Request) []string {
	var paths []string
	if len(req.Files) > 0 {
		paths = make([]string, 0, len(req.Files))
		for _, f := range req.Files {
			paths = append(paths, project.AbsPath(f))
		}
	} else {
		paths = sess.SourceFiles()
	}
	sort.Strings(paths)
	return paths
}

// Run analyzes every target file. Results are ordered by path. The error is
// non-nil only when ctx is cancelled.
func Run(ctx context.Context, sess *session.Session, req Request) (*Result, error) {
	start := time.Now()
	log := req.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	paths := targets(sess, req)
	root := sess.Root()
	for _, p := range paths {
		emit(req.Progress, Event{File: DisplayPath(root, p), Stage: StageAnalyze, Status: StatusQueued})
	}

	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = checkFile(gctx, sess, root, path, req, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	emit(req.Progress, Event{Stage: StageAnalyze, Status: StatusDone, Elapsed: time.Since(start)})
	return &Result{Files: results, Elapsed: time.Since(start)}, nil
}

type analyzed struct {
	list     []analyzer.Diagnostic
	file     *source.File
	attached bool
}

func checkFile(ctx context.Context, sess *session.Session, root, path string, req Request, log *slog.Logger) FileResult {
	display := DisplayPath(root, path)
	uri := source.PathToURI(path)
	res := FileResult{Path: display, URI: uri}
	started := time.Now()
	emit(req.Progress, Event{File: display, Stage: StageAnalyze, Status: StatusWorking})

	got, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) (analyzed, error) {
		return analyzed{list: sem.Diagnostics(), file: sem.File().Source, attached: sem.Attached()}, nil
	})
	if !ok || got.file == nil {
		err := fmt.Errorf("failed to analyze %s", display)
		log.Warn("analysis failed", "path", display)
		emit(req.Progress, Event{File: display, Stage: StageAnalyze, Status: StatusError, Err: err, Elapsed: time.Since(started)})
		return res
	}
	res.Detached = !got.attached
	for _, d := range got.list {
		if req.SkipUnresolved && d.Code == analyzer.CodeUnresolved {
			continue
		}
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Range:    got.file.RangeOf(d.Span),
			Severity: d.Severity,
			Code:     d.Code,
			Source:   analyzerSource,
			Message:  d.Message,
		})
	}
	if req.TreeSitter && treesitter.Available() {
		emit(req.Progress, Event{File: display, Stage: StageCrossCheck, Status: StatusWorking})
		res.Diagnostics = append(res.Diagnostics, crossCheck(ctx, got.file, log)...)
	}
	sort.SliceStable(res.Diagnostics, func(i, j int) bool {
		return res.Diagnostics[i].Range.Start.Less(res.Diagnostics[j].Range.Start)
	})
	if req.MaxPerFile > 0 && len(res.Diagnostics) > req.MaxPerFile {
		res.Diagnostics = res.Diagnostics[:req.MaxPerFile]
	}
	status := StatusDone
	for _, d := range res.Diagnostics {
		if d.Severity == analyzer.SeverityError {
			status = StatusError
			break
		}
	}
	emit(req.Progress, Event{File: display, Stage: StageAnalyze, Status: status, Elapsed: time.Since(started)})
	return res
}

func crossCheck(ctx context.Context, file *source.File, log *slog.Logger) []Diagnostic {
	issues, err := treesitter.Check(ctx, file.Content, treesitter.DefaultLimit)
	if err != nil {
		log.Debug("tree-sitter check failed", "path", file.Path, "err", err)
		return nil
	}
	out := make([]Diagnostic, 0, len(issues))
	for _, is := range issues {
		out = append(out, Diagnostic{
			Range:    file.RangeOf(is.Span),
			Severity: analyzer.SeverityWarning,
			Code:     treeSitterCode,
			Source:   treeSitterSource,
			Message:  is.Message,
		})
	}
	return out
}
