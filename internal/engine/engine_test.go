package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidmorph/vidmorph/internal/format"
)

func TestPercentFor(t *testing.T) {
	assert.Equal(t, 0.0, percentFor(5*time.Second, 0), "unknown duration pins percent at zero")
	assert.Equal(t, 50.0, percentFor(5*time.Second, 10*time.Second))
	assert.Equal(t, 100.0, percentFor(12*time.Second, 10*time.Second), "overshoot clamps to 100")
	assert.Equal(t, 0.0, percentFor(-time.Second, 10*time.Second))
}

func TestEventIsTerminal(t *testing.T) {
	assert.False(t, Event{Kind: KindProgress}.IsTerminal())
	assert.True(t, Event{Kind: KindCompleted}.IsTerminal())
	assert.True(t, Event{Kind: KindFailed}.IsTerminal())
}

func TestStartMissingBinaryEmitsSingleFailure(t *testing.T) {
	eng := NewFFmpeg("/nonexistent/ffmpeg", "/nonexistent/ffprobe", nil)
	profile, err := format.Resolve("mp4", "ivf")
	require.NoError(t, err)

	h := eng.Start(context.Background(), "/nonexistent/in.mp4", t.TempDir()+"/out.ivf", profile)

	var events []Event
	for ev := range h.Events() {
		events = append(events, ev)
	}

	require.Len(t, events, 1)
	assert.Equal(t, KindFailed, events[0].Kind)
	assert.NotEmpty(t, events[0].Message)
}

func TestTerminalEvent(t *testing.T) {
	t.Run("cancellation wins over exit error", func(t *testing.T) {
		ev := terminalEvent(true, context.Canceled, "killed by signal", 0)
		assert.Equal(t, KindFailed, ev.Kind)
		assert.Equal(t, cancelledMessage, ev.Message)
	})

	t.Run("failure prefers stderr detail", func(t *testing.T) {
		ev := terminalEvent(false, assert.AnError, "Invalid data found when processing input", 0)
		assert.Equal(t, KindFailed, ev.Kind)
		assert.Equal(t, "Invalid data found when processing input", ev.Message)
	})

	t.Run("failure falls back to exit error", func(t *testing.T) {
		ev := terminalEvent(false, assert.AnError, "", 0)
		assert.Equal(t, assert.AnError.Error(), ev.Message)
	})

	t.Run("success carries full percent", func(t *testing.T) {
		ev := terminalEvent(false, nil, "", 90*time.Second)
		assert.Equal(t, KindCompleted, ev.Kind)
		assert.Equal(t, 100.0, ev.Percent)
		assert.Equal(t, 90*time.Second, ev.MediaTime)
	})
}
