package convert

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidmorph/vidmorph/internal/engine"
	"github.com/vidmorph/vidmorph/internal/format"
	"github.com/vidmorph/vidmorph/internal/models"
	"github.com/vidmorph/vidmorph/internal/retention"
	"github.com/vidmorph/vidmorph/internal/service/progress"
	"github.com/vidmorph/vidmorph/internal/stats"
	"github.com/vidmorph/vidmorph/internal/storage"
)

// fakeEngine plays back a scripted event sequence for every started job.
type fakeEngine struct {
	mu     sync.Mutex
	script []engine.Event
	starts int
}

type fakeHandle struct {
	events chan engine.Event
}

func (f *fakeEngine) Start(ctx context.Context, inputPath, outputPath string, profile format.Profile) engine.Handle {
	f.mu.Lock()
	f.starts++
	script := make([]engine.Event, len(f.script))
	copy(script, f.script)
	f.mu.Unlock()

	h := &fakeHandle{events: make(chan engine.Event, len(script)+1)}
	go func() {
		defer close(h.events)
		for _, ev := range script {
			h.events <- ev
		}
	}()
	return h
}

func (h *fakeHandle) Events() <-chan engine.Event { return h.events }
func (h *fakeHandle) Cancel()                     {}

type fixture struct {
	svc       *Service
	hub       *progress.Service
	aggregate *stats.Aggregate
	reaper    *retention.Scheduler
	ws        *storage.Workspace
}

func newFixture(t *testing.T, eng engine.Engine) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ws, err := storage.New(t.TempDir(), "uploads", "converted", logger)
	require.NoError(t, err)

	hub := progress.NewService(logger)
	aggregate := stats.NewAggregate()
	reaper := retention.New(ws, time.Hour, time.Hour, time.Hour, logger)

	svc := NewService(eng, hub, aggregate, reaper, ws, 0, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		reaper.Stop()
	})

	return &fixture{svc: svc, hub: hub, aggregate: aggregate, reaper: reaper, ws: ws}
}

func waitTerminal(t *testing.T, svc *Service, jobID string) *models.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := svc.Job(jobID)
		return err == nil && job.Phase.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)

	job, err := svc.Job(jobID)
	require.NoError(t, err)
	return job
}

func TestSubmitRejectsUnknownFormatBeforePersisting(t *testing.T) {
	fx := newFixture(t, &fakeEngine{})

	_, err := fx.svc.Submit(context.Background(), strings.NewReader("data"), "txt", "mp4")
	require.ErrorIs(t, err, models.ErrInvalidFormat)

	entries, err := os.ReadDir(fx.ws.InputsDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected submission must not persist an upload")
	assert.Equal(t, stats.Snapshot{}, fx.svc.Stats())
	assert.Empty(t, fx.svc.Jobs())
}

func TestSubmitSuccessLifecycle(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{
		{Kind: engine.KindProgress, Percent: 40, MediaTime: 4 * time.Second, FPS: 30},
		{Kind: engine.KindProgress, Percent: 90, MediaTime: 9 * time.Second, FPS: 30},
		{Kind: engine.KindCompleted, Percent: 100},
	}}
	fx := newFixture(t, eng)

	sub := fx.svc.Subscribe(nil)
	defer fx.svc.Unsubscribe(sub.ID)

	job, err := fx.svc.Submit(context.Background(), strings.NewReader("video"), "mp4", "ivf")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, job.ID+".ivf", job.OutputID)

	done := waitTerminal(t, fx.svc, job.ID)
	assert.Equal(t, models.PhaseSucceeded, done.Phase)
	assert.Equal(t, 100.0, done.LastReportedPercent)
	assert.NotNil(t, done.TerminalAt)

	snap := fx.svc.Stats()
	assert.Equal(t, stats.Snapshot{Total: 1, Succeeded: 1}, snap)

	// Input and output both queued for deletion.
	assert.Equal(t, 2, fx.reaper.PendingDeletions())

	// Subscriber saw non-decreasing percents ending in the terminal event.
	var events []*progress.Event
	deadline := time.After(time.Second)
	for len(events) == 0 || !events[len(events)-1].IsTerminal() {
		select {
		case ev := <-sub.Events:
			events = append(events, ev)
		case <-deadline:
			t.Fatal("terminal event never arrived on the hub")
		}
	}
	last := -1.0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, last)
		last = ev.Percent
	}
	terminal := events[len(events)-1]
	assert.Equal(t, progress.EventTypeCompleted, terminal.EventType)
	assert.Equal(t, job.OutputID, terminal.OutputID)
}

func TestMonotonicPercentClamp(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{
		{Kind: engine.KindProgress, Percent: 80},
		{Kind: engine.KindProgress, Percent: 60},
		{Kind: engine.KindCompleted, Percent: 100},
	}}
	fx := newFixture(t, eng)

	sub := fx.svc.Subscribe(nil)
	defer fx.svc.Unsubscribe(sub.ID)

	job, err := fx.svc.Submit(context.Background(), strings.NewReader("video"), "mp4", "mp4")
	require.NoError(t, err)
	waitTerminal(t, fx.svc, job.ID)

	var percents []float64
	for {
		select {
		case ev := <-sub.Events:
			percents = append(percents, ev.Percent)
			if ev.IsTerminal() {
				assert.Equal(t, []float64{80, 80, 100}, percents)
				return
			}
		case <-time.After(time.Second):
			t.Fatal("did not observe full event sequence")
		}
	}
}

func TestFailureRecordsAndCleansUp(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{
		{Kind: engine.KindProgress, Percent: 10},
		{Kind: engine.KindFailed, Message: "Invalid data found when processing input"},
	}}
	fx := newFixture(t, eng)

	sub := fx.svc.Subscribe(nil)
	defer fx.svc.Unsubscribe(sub.ID)

	job, err := fx.svc.Submit(context.Background(), strings.NewReader("garbage"), "avi", "mp4")
	require.NoError(t, err)

	done := waitTerminal(t, fx.svc, job.ID)
	assert.Equal(t, models.PhaseFailed, done.Phase)
	assert.Equal(t, "Invalid data found when processing input", done.Error)

	assert.Equal(t, stats.Snapshot{Total: 1, Failed: 1}, fx.svc.Stats())
	assert.Equal(t, 1, fx.reaper.PendingDeletions(), "only the input is scheduled on failure")

	_, err = fx.svc.OutputFile(job.OutputID)
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)
}

func TestDuplicateTerminalIgnored(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{
		{Kind: engine.KindCompleted, Percent: 100},
		{Kind: engine.KindFailed, Message: "late duplicate"},
	}}
	fx := newFixture(t, eng)

	job, err := fx.svc.Submit(context.Background(), strings.NewReader("video"), "mp4", "ivf")
	require.NoError(t, err)

	done := waitTerminal(t, fx.svc, job.ID)
	assert.Equal(t, models.PhaseSucceeded, done.Phase, "first terminal wins")
	assert.Empty(t, done.Error)
	assert.Equal(t, stats.Snapshot{Total: 1, Succeeded: 1}, fx.svc.Stats(), "no double count")
}

func TestStreamEndingWithoutTerminalFailsJob(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{
		{Kind: engine.KindProgress, Percent: 30},
	}}
	fx := newFixture(t, eng)

	job, err := fx.svc.Submit(context.Background(), strings.NewReader("video"), "mkv", "mp4")
	require.NoError(t, err)

	done := waitTerminal(t, fx.svc, job.ID)
	assert.Equal(t, models.PhaseFailed, done.Phase)
	assert.NotEmpty(t, done.Error)
	assert.Equal(t, stats.Snapshot{Total: 1, Failed: 1}, fx.svc.Stats())
}

func TestConcurrentSubmissionsGetDistinctArtifacts(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{{Kind: engine.KindCompleted, Percent: 100}}}
	fx := newFixture(t, eng)

	const n = 10
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := fx.svc.Submit(context.Background(), strings.NewReader("same payload"), "mp4", "ivf")
			assert.NoError(t, err)
			ids <- job.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "job ids must be unique")
		seen[id] = true
		waitTerminal(t, fx.svc, id)
	}
	assert.Len(t, seen, n)
	assert.Equal(t, uint64(n), fx.svc.Stats().Total)
}

func TestOutputFile(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{{Kind: engine.KindCompleted, Percent: 100}}}
	fx := newFixture(t, eng)

	_, err := fx.svc.OutputFile("unknown.ivf")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)

	job, err := fx.svc.Submit(context.Background(), strings.NewReader("video"), "mp4", "ivf")
	require.NoError(t, err)
	waitTerminal(t, fx.svc, job.ID)

	path, err := fx.svc.OutputFile(job.OutputID)
	require.NoError(t, err)
	assert.Equal(t, fx.ws.OutputPath(job.ID, "ivf"), path)
}

func TestJobsSortedBySubmission(t *testing.T) {
	eng := &fakeEngine{script: []engine.Event{{Kind: engine.KindCompleted, Percent: 100}}}
	fx := newFixture(t, eng)

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := fx.svc.Submit(context.Background(), strings.NewReader("v"), "mp4", "mp4")
		require.NoError(t, err)
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond)
	}

	jobs := fx.svc.Jobs()
	require.Len(t, jobs, 3)
	for i, job := range jobs {
		assert.Equal(t, ids[i], job.ID)
	}
}
