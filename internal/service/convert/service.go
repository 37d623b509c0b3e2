// Package convert orchestrates conversion jobs: it accepts uploads, drives
// the transcode engine, publishes progress to the hub, records outcomes, and
// hands finished artifacts to retention.
package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vidmorph/vidmorph/internal/engine"
	"github.com/vidmorph/vidmorph/internal/format"
	"github.com/vidmorph/vidmorph/internal/models"
	"github.com/vidmorph/vidmorph/internal/retention"
	"github.com/vidmorph/vidmorph/internal/service/progress"
	"github.com/vidmorph/vidmorph/internal/stats"
	"github.com/vidmorph/vidmorph/internal/storage"
)

// Service is the job orchestrator. One consumer goroutine per running job is
// the sole writer of that job's phase and percent; everything else reads
// snapshots.
type Service struct {
	engine     engine.Engine
	hub        *progress.Service
	aggregate  *stats.Aggregate
	retention  *retention.Scheduler
	workspace  *storage.Workspace
	jobTimeout time.Duration
	logger     *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	jobs    map[string]*trackedJob
	outputs map[string]string // outputID -> jobID
}

// trackedJob pairs a job with its engine handle. Its mutex guards phase and
// percent mutation during the terminal check-and-set.
type trackedJob struct {
	mu      sync.Mutex
	job     *models.Job
	handle  engine.Handle
	started time.Time
}

// NewService creates the orchestrator. jobTimeout of zero disables the
// stuck-job watchdog.
func NewService(
	eng engine.Engine,
	hub *progress.Service,
	aggregate *stats.Aggregate,
	reaper *retention.Scheduler,
	ws *storage.Workspace,
	jobTimeout time.Duration,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engine:     eng,
		hub:        hub,
		aggregate:  aggregate,
		retention:  reaper,
		workspace:  ws,
		jobTimeout: jobTimeout,
		logger:     logger.With("component", "convert_service"),
		baseCtx:    ctx,
		cancel:     cancel,
		jobs:       make(map[string]*trackedJob),
		outputs:    make(map[string]string),
	}
}

// Submit validates the requested conversion, persists the upload, and starts
// the transcode. It returns as soon as the job is running; completion arrives
// via the progress hub. Format validation happens before any byte is written,
// so a rejected request leaves no trace on disk or in the counters.
func (s *Service) Submit(ctx context.Context, upload io.Reader, inputFormat, outputFormat string) (*models.Job, error) {
	profile, err := format.Resolve(inputFormat, outputFormat)
	if err != nil {
		return nil, err
	}

	jobID := models.NewJobID()
	inputExt := format.Normalize(inputFormat)

	inputPath, size, err := s.workspace.SaveUpload(upload, jobID, inputExt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	now := time.Now()
	job := &models.Job{
		ID:           jobID,
		InputPath:    inputPath,
		OutputPath:   s.workspace.OutputPath(jobID, profile.OutputFormat),
		InputFormat:  inputExt,
		OutputFormat: profile.OutputFormat,
		Phase:        models.PhaseQueued,
		OutputID:     jobID + "." + profile.OutputFormat,
		CreatedAt:    now,
	}

	t := &trackedJob{job: job, started: now}

	s.mu.Lock()
	s.jobs[job.ID] = t
	s.outputs[job.OutputID] = job.ID
	s.mu.Unlock()

	s.aggregate.JobStarted()

	s.logger.Info("job submitted",
		"job_id", job.ID,
		"input_format", job.InputFormat,
		"output_format", job.OutputFormat,
		"bytes", size,
	)

	t.mu.Lock()
	job.Phase = models.PhaseRunning
	t.handle = s.engine.Start(s.baseCtx, inputPath, job.OutputPath, profile)
	snapshot := job.Clone()
	t.mu.Unlock()

	s.wg.Add(1)
	go s.consume(t)

	return snapshot, nil
}

// consume drains one job's engine events. It is the only writer of the job's
// phase and percent after submission.
func (s *Service) consume(t *trackedJob) {
	defer s.wg.Done()

	var watchdog *time.Timer
	if s.jobTimeout > 0 {
		watchdog = time.AfterFunc(s.jobTimeout, func() {
			s.logger.Warn("job timeout exceeded, cancelling", "job_id", t.job.ID, "timeout", s.jobTimeout.String())
			t.handle.Cancel()
		})
		defer watchdog.Stop()
	}

	sawTerminal := false
	for ev := range t.handle.Events() {
		switch ev.Kind {
		case engine.KindProgress:
			s.publishProgress(t, ev)
		case engine.KindCompleted:
			sawTerminal = true
			s.finish(t, true, "")
		case engine.KindFailed:
			sawTerminal = true
			s.finish(t, false, ev.Message)
		}
	}

	// A well-behaved engine closes only after a terminal event. Guard
	// against a stream that just ends.
	if !sawTerminal {
		s.finish(t, false, "engine event stream ended without a result")
	}
}

// publishProgress applies the monotonic clamp and fans the update out.
// A percent once reported never regresses, even when the engine's raw
// numbers jitter backwards.
func (s *Service) publishProgress(t *trackedJob, ev engine.Event) {
	t.mu.Lock()
	if t.job.Phase.IsTerminal() {
		t.mu.Unlock()
		return
	}
	percent := ev.Percent
	if percent < t.job.LastReportedPercent {
		percent = t.job.LastReportedPercent
	}
	t.job.LastReportedPercent = percent
	elapsed := time.Since(t.started)
	t.mu.Unlock()

	event := &progress.Event{
		EventType: progress.EventTypeProgress,
		JobID:     t.job.ID,
		Percent:   percent,
		MediaTime: progress.FormatMediaTime(ev.MediaTime),
		FPS:       ev.FPS,
	}
	if percent > 0 {
		eta := elapsed.Seconds() * (100 - percent) / percent
		event.ETASeconds = &eta
	}
	s.hub.Publish(event)
}

// finish runs the terminal check-and-set. The first terminal event wins:
// phase flips, counters increment, retention is scheduled, and the terminal
// SSE event goes out. Duplicate terminals are ignored entirely.
func (s *Service) finish(t *trackedJob, success bool, message string) {
	t.mu.Lock()
	if t.job.Phase.IsTerminal() {
		t.mu.Unlock()
		return
	}

	now := time.Now()
	t.job.TerminalAt = &now
	if success {
		t.job.Phase = models.PhaseSucceeded
		t.job.LastReportedPercent = 100
	} else {
		t.job.Phase = models.PhaseFailed
		t.job.Error = message
	}
	job := t.job.Clone()
	elapsed := now.Sub(t.started)
	t.mu.Unlock()

	event := &progress.Event{
		JobID:   job.ID,
		Percent: job.LastReportedPercent,
	}

	if success {
		s.aggregate.RecordSuccess(elapsed)
		s.retention.ScheduleDeletion(job.InputPath, job.OutputPath)
		event.EventType = progress.EventTypeCompleted
		event.OutputID = job.OutputID
		s.logger.Info("job succeeded", "job_id", job.ID, "elapsed", elapsed.String())
	} else {
		s.aggregate.RecordFailure(elapsed)
		s.retention.ScheduleDeletion(job.InputPath)
		// A failed transcode can leave a partial output; it is never
		// served, so remove it now rather than waiting for the sweep.
		if err := s.workspace.Remove(job.OutputPath); err != nil {
			s.logger.Warn("removing partial output failed", "job_id", job.ID, "error", err)
		}
		event.EventType = progress.EventTypeFailed
		event.Error = job.Error
		s.logger.Warn("job failed", "job_id", job.ID, "error", job.Error, "elapsed", elapsed.String())
	}

	s.hub.Publish(event)
}

// Subscribe registers a progress subscriber. Events flow from subscription
// time forward; there is no replay.
func (s *Service) Subscribe(filter *progress.Filter) *progress.Subscriber {
	return s.hub.Subscribe(filter)
}

// Unsubscribe removes a progress subscriber.
func (s *Service) Unsubscribe(subscriberID string) {
	s.hub.Unsubscribe(subscriberID)
}

// Stats returns a snapshot of the outcome counters.
func (s *Service) Stats() stats.Snapshot {
	return s.aggregate.Snapshot()
}

// Job returns a snapshot of one job.
func (s *Service) Job(id string) (*models.Job, error) {
	s.mu.RLock()
	t, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrJobNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Clone(), nil
}

// Jobs returns snapshots of all known jobs, oldest first.
func (s *Service) Jobs() []*models.Job {
	s.mu.RLock()
	tracked := make([]*trackedJob, 0, len(s.jobs))
	for _, t := range s.jobs {
		tracked = append(tracked, t)
	}
	s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(tracked))
	for _, t := range tracked {
		t.mu.Lock()
		jobs = append(jobs, t.job.Clone())
		t.mu.Unlock()
	}

	// ULIDs sort by creation time.
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// OutputFile resolves an output id to the artifact path. Only successfully
// finished jobs expose artifacts; anything else is ErrArtifactNotFound, and
// the caller still has to handle the file disappearing underneath it.
func (s *Service) OutputFile(outputID string) (string, error) {
	s.mu.RLock()
	jobID, ok := s.outputs[outputID]
	s.mu.RUnlock()
	if !ok {
		return "", models.ErrArtifactNotFound
	}

	job, err := s.Job(jobID)
	if err != nil {
		return "", models.ErrArtifactNotFound
	}
	if job.Phase != models.PhaseSucceeded {
		return "", models.ErrArtifactNotFound
	}
	return job.OutputPath, nil
}

// Shutdown cancels in-flight transcodes and waits for consumers to drain,
// bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
