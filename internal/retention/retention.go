// Package retention deletes expired workspace artifacts. Every artifact gets
// a per-file deletion timer when its job finishes; a periodic sweep backstops
// the timers by removing anything whose modification time has aged out, so a
// crash or missed timer never leaks disk.
package retention

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vidmorph/vidmorph/internal/storage"
)

// Scheduler owns artifact deletion timers and the background sweep.
type Scheduler struct {
	workspace *storage.Workspace
	window    time.Duration
	maxAge    time.Duration
	logger    *slog.Logger

	cron      *cron.Cron
	sweepExpr string

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a retention scheduler. Window is how long an artifact outlives
// its job's terminal event; sweepInterval is the backstop cadence; maxAge is
// the hard upper bound on any artifact's life measured by mtime.
func New(ws *storage.Workspace, window, sweepInterval, maxAge time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		workspace: ws,
		window:    window,
		maxAge:    maxAge,
		logger:    logger.With("component", "retention"),
		cron:      cron.New(),
		sweepExpr: "@every " + sweepInterval.String(),
		timers:    make(map[string]*time.Timer),
	}
}

// Start runs one sweep immediately, then schedules the recurring sweep.
func (s *Scheduler) Start() error {
	s.Sweep()

	if _, err := s.cron.AddFunc(s.sweepExpr, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info("retention started",
		"window", s.window.String(),
		"sweep", s.sweepExpr,
		"max_age", s.maxAge.String(),
	)
	return nil
}

// Stop halts the sweep and cancels all pending deletion timers. Artifacts
// whose timers were cancelled are caught by the sweep on next startup.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	for path, t := range s.timers {
		t.Stop()
		delete(s.timers, path)
	}
}

// ScheduleDeletion arms a deletion timer for the given artifact paths.
// Rescheduling a path resets its timer.
func (s *Scheduler) ScheduleDeletion(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if existing, ok := s.timers[path]; ok {
			existing.Stop()
		}
		p := path
		s.timers[p] = time.AfterFunc(s.window, func() { s.expire(p) })
	}
}

// PendingDeletions returns the number of armed timers.
func (s *Scheduler) PendingDeletions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// expire removes one artifact when its timer fires.
func (s *Scheduler) expire(path string) {
	s.mu.Lock()
	delete(s.timers, path)
	s.mu.Unlock()

	if err := s.workspace.Remove(path); err != nil {
		s.logger.Warn("deleting expired artifact failed", "path", path, "error", err)
		return
	}
	s.logger.Debug("artifact expired", "path", path)
}

// Sweep removes every workspace file older than maxAge. It is safe to run
// concurrently with timers; deletion is idempotent.
func (s *Scheduler) Sweep() {
	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	for _, dir := range []string{s.workspace.InputsDir(), s.workspace.OutputsDir()} {
		entries, err := s.workspace.List(dir)
		if err != nil {
			s.logger.Error("sweep cannot list directory", "dir", dir, "error", err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if err := s.workspace.Remove(path); err != nil {
				s.logger.Warn("sweep deletion failed", "path", path, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("sweep removed aged artifacts", "count", removed)
	}
}
