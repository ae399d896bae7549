// Package watcher detects finished files in the inbound directory and
// registers them for processing.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/fieldpipe/internal/logging"
	"github.com/JonMunkholm/fieldpipe/internal/metrics"
)

// Detector decides when a file in a watched directory has finished being
// written.
type Detector struct {
	interval      time.Duration
	stabilization time.Duration
	abandonment   time.Duration
	now           func() time.Time

	stat     func(string) (fs.FileInfo, error)
	readable func(string) bool
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.now = now }
}

// NewDetector returns a Detector polling every interval. A file is ready once
// its size has held for stabilization and its modification time is at least
// that old. A file that is not ready abandonment after its last size change
// is dropped.
func NewDetector(interval, stabilization, abandonment time.Duration, opts ...DetectorOption) *Detector {
	d := &Detector{
		interval:      interval,
		stabilization: stabilization,
		abandonment:   abandonment,
		now:           time.Now,
		stat:          os.Stat,
		readable:      readable,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Watch emits the path of each file in dir once it is ready. The channel is
// closed when ctx is done. Every call starts with nothing seen, so files
// already handled by a previous Watch are emitted again. Log entries go to
// the logger in ctx.
func (d *Detector) Watch(ctx context.Context, dir string) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		s := d.newScan(dir, logging.FromContext(ctx))
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			for _, path := range s.poll() {
				select {
				case out <- path:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

type candidate struct {
	size       int64
	lastChange time.Time
}

// scan is the state of one Watch.
type scan struct {
	d          *Detector
	dir        string
	log        *slog.Logger
	candidates map[string]*candidate
	seen       map[string]bool
}

func (d *Detector) newScan(dir string, log *slog.Logger) *scan {
	return &scan{
		d:          d,
		dir:        dir,
		log:        log,
		candidates: make(map[string]*candidate),
		seen:       make(map[string]bool),
	}
}

// poll lists the directory, updates the candidates and returns the paths
// that became ready, in name order.
func (s *scan) poll() []string {
	now := s.d.now()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("watch dir unreadable", "error", err)
		return nil
	}

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if s.seen[path] {
			continue
		}
		if _, ok := s.candidates[path]; ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		s.candidates[path] = &candidate{size: info.Size(), lastChange: now}
		s.log.Debug("candidate file", "path", path, "size", info.Size())
	}

	paths := make([]string, 0, len(s.candidates))
	for p := range s.candidates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var ready []string
	for _, path := range paths {
		c := s.candidates[path]
		if s.check(path, c, now) {
			ready = append(ready, path)
		}
	}
	return ready
}

// check updates one candidate and reports whether it is ready. Ready and
// abandoned candidates are moved to the seen set. A failed stat or open
// leaves the candidate tracked for the next poll.
func (s *scan) check(path string, c *candidate, now time.Time) bool {
	info, err := s.d.stat(path)
	if err != nil {
		s.log.Debug("candidate not accessible", "path", path, "error", err)
	}
	if err == nil && info.Size() != c.size {
		c.size = info.Size()
		c.lastChange = now
		return false
	}

	if err == nil &&
		now.Sub(c.lastChange) >= s.d.stabilization &&
		now.Sub(info.ModTime()) >= s.d.stabilization &&
		s.d.readable(path) {
		s.finish(path)
		metrics.FilesDetected.WithLabelValues("ready").Inc()
		s.log.Info("file ready", "path", path, "size", c.size)
		return true
	}

	if now.Sub(c.lastChange) >= s.d.abandonment {
		s.finish(path)
		metrics.FilesDetected.WithLabelValues("abandoned").Inc()
		s.log.Warn("file abandoned", "path", path, "size", c.size, "since", c.lastChange)
	}
	return false
}

func (s *scan) finish(path string) {
	delete(s.candidates, path)
	s.seen[path] = true
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
