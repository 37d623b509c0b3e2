// Package engine adapts the external ffmpeg transcoder into canonical job
// events. It is a boundary shim: it feeds progress and exactly one terminal
// event to its consumer and never touches job state itself.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vidmorph/vidmorph/internal/ffmpeg"
	"github.com/vidmorph/vidmorph/internal/format"
)

// EventKind discriminates adapter events.
type EventKind string

const (
	// KindProgress is a fractional progress report.
	KindProgress EventKind = "progress"
	// KindCompleted is the successful terminal event.
	KindCompleted EventKind = "completed"
	// KindFailed is the failure terminal event.
	KindFailed EventKind = "failed"
)

// Event is one notification from the engine. Progress events carry Percent,
// MediaTime and FPS; Failed events carry Message.
type Event struct {
	Kind      EventKind
	Percent   float64
	MediaTime time.Duration
	FPS       float64
	Message   string
}

// IsTerminal reports whether the event ends the job's active phase.
func (e Event) IsTerminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}

// Handle controls one running transcode.
type Handle interface {
	// Events returns the event stream. It delivers zero or more progress
	// events followed by exactly one terminal event, then closes.
	Events() <-chan Event
	// Cancel terminates the transcode. The stream still ends with a single
	// terminal event (Failed with a cancellation message).
	Cancel()
}

// Engine starts transcodes. The ffmpeg implementation is the production
// engine; tests substitute fakes.
type Engine interface {
	Start(ctx context.Context, inputPath, outputPath string, profile format.Profile) Handle
}

// FFmpeg is the production Engine backed by the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	binaryPath string
	probePath  string
	logger     *slog.Logger
}

// NewFFmpeg creates an ffmpeg-backed engine. Empty paths fall back to $PATH
// lookup of the standard binary names.
func NewFFmpeg(binaryPath, probePath string, logger *slog.Logger) *FFmpeg {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{
		binaryPath: binaryPath,
		probePath:  probePath,
		logger:     logger.With("component", "engine"),
	}
}

const cancelledMessage = "cancelled"

// Start launches the transcode and returns its handle immediately.
// Misconfiguration (missing binary, unreadable input) surfaces as a Failed
// terminal event, not as a synchronous error.
func (f *FFmpeg) Start(ctx context.Context, inputPath, outputPath string, profile format.Profile) Handle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &ffmpegHandle{
		events: make(chan Event, 16),
		cancel: cancel,
	}

	go f.run(runCtx, h, inputPath, outputPath, profile)

	return h
}

// run drives one ffmpeg process to completion and emits the event stream.
func (f *FFmpeg) run(ctx context.Context, h *ffmpegHandle, inputPath, outputPath string, profile format.Profile) {
	defer close(h.events)

	// Duration is advisory: without it percent stays at zero and only the
	// terminal event moves the job to done.
	var mediaDuration time.Duration
	if d, err := ffmpeg.NewProber(f.probePath).MediaDuration(ctx, inputPath); err != nil {
		f.logger.Warn("probing input duration failed",
			"input", inputPath,
			"error", err,
		)
	} else {
		mediaDuration = d
	}

	builder := ffmpeg.NewCommandBuilder(f.binaryPath).
		HideBanner().
		Stats().
		Overwrite().
		Input(inputPath).
		VideoCodec(profile.VideoCodec)

	// Audio and frame dimensions pass through untouched; IVF-style targets
	// drop audio entirely.
	if profile.KeepsAudio() {
		builder = builder.AudioCodec(profile.AudioCodec)
	} else {
		builder = builder.NoAudio()
	}

	cmd := builder.
		OutputArgs(profile.ExtraArgs...).
		Format(profile.Container).
		Output(outputPath).
		Build()

	f.logger.Debug("starting transcode", "command", cmd.String())

	rawCh := make(chan ffmpeg.Progress, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for raw := range rawCh {
			h.emit(Event{
				Kind:      KindProgress,
				Percent:   percentFor(raw.Time, mediaDuration),
				MediaTime: raw.Time,
				FPS:       raw.FPS,
			})
		}
	}()

	err := cmd.RunWithProgress(ctx, rawCh)
	close(rawCh)
	wg.Wait()

	terminal := terminalEvent(h.cancelled.Load(), err, cmd.FailureMessage(), mediaDuration)
	if terminal.Kind == KindFailed && !h.cancelled.Load() {
		f.logger.Error("transcode failed",
			"input", inputPath,
			"error", err,
			"detail", terminal.Message,
		)
	}
	h.emit(terminal)
}

// terminalEvent picks the single terminal event for a finished run.
// Cancellation wins over whatever exit error the killed process reported.
func terminalEvent(cancelled bool, runErr error, stderrDetail string, mediaDuration time.Duration) Event {
	switch {
	case cancelled:
		return Event{Kind: KindFailed, Message: cancelledMessage}
	case runErr != nil:
		message := stderrDetail
		if message == "" {
			message = runErr.Error()
		}
		return Event{Kind: KindFailed, Message: message}
	default:
		return Event{Kind: KindCompleted, Percent: 100, MediaTime: mediaDuration}
	}
}

// percentFor maps elapsed media time onto [0,100]. Raw values can jitter
// around keyframe boundaries; the orchestrator applies the monotonic clamp.
func percentFor(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(elapsed) / float64(total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

type ffmpegHandle struct {
	events    chan Event
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func (h *ffmpegHandle) Events() <-chan Event {
	return h.events
}

func (h *ffmpegHandle) Cancel() {
	h.cancelled.Store(true)
	h.cancel()
}

// emit delivers an event without ever blocking process teardown: if the
// consumer has fallen far behind, progress reports are dropped. Terminal
// events use a blocking send so they are never lost.
func (h *ffmpegHandle) emit(ev Event) {
	if ev.IsTerminal() {
		h.events <- ev
		return
	}
	select {
	case h.events <- ev:
	default:
	}
}
