// Package prof drives the runtime profilers behind the CLI's profiling
// flags.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
)

// Options names the output files; empty paths disable a profiler.
type Options struct {
	CPU   string
	Mem   string
	Trace string
}

// Enabled reports whether any profiler is requested.
func (o Options) Enabled() bool {
	return o.CPU != "" || o.Mem != "" || o.Trace != ""
}

// Session is a set of running profilers.
type Session struct {
	cpuFile   *os.File
	traceFile *os.File
	memPath   string

	once sync.Once
	err  error
}

// Start enables the requested profilers. On error nothing keeps running.
func Start(opts Options) (*Session, error) {
	s := &Session{memPath: opts.Mem}
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		s.cpuFile = f
	}
	if opts.Trace != "" {
		f, err := os.Create(opts.Trace)
		if err != nil {
			s.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		s.traceFile = f
	}
	return s, nil
}

func (s *Session) stopCPU() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil
	return err
}

func (s *Session) stopTrace() error {
	if s.traceFile == nil {
		return nil
	}
	trace.Stop()
	err := s.traceFile.Close()
	s.traceFile = nil
	return err
}

func (s *Session) writeMem() error {
	if s.memPath == "" {
		return nil
	}
	f, err := os.Create(s.memPath)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("heap profile: %w", err)
	}
	return f.Close()
}

// Stop ends tracing and CPU profiling, then writes the heap profile. Later
// calls return the first result.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.err = errors.Join(s.stopTrace(), s.stopCPU(), s.writeMem())
	})
	return s.err
}
