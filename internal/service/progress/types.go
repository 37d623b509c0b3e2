// Package progress provides real-time job progress tracking and SSE
// broadcasting.
package progress

import (
	"fmt"
	"time"
)

// SSE event types.
const (
	EventTypeProgress  = "progress"
	EventTypeCompleted = "completed"
	EventTypeFailed    = "failed"
	EventTypeHeartbeat = "heartbeat"
)

// Event is one progress or terminal notification for a job, in the shape it
// is serialized onto the SSE stream.
type Event struct {
	// EventType identifies the type of event.
	EventType string `json:"event_type"`
	// JobID is the job this event belongs to.
	JobID string `json:"job_id"`
	// Percent is the completion percentage (0 to 100). Values on one job's
	// stream never decrease.
	Percent float64 `json:"percent"`
	// MediaTime is the transcoded media position as HH:MM:SS.
	MediaTime string `json:"media_time,omitempty"`
	// FPS is the current encoding frame rate.
	FPS float64 `json:"fps,omitempty"`
	// ETASeconds estimates the remaining wall time. Omitted until enough
	// progress exists to extrapolate from.
	ETASeconds *float64 `json:"eta_seconds,omitempty"`
	// OutputID identifies the produced artifact on completed events.
	OutputID string `json:"output_id,omitempty"`
	// Error carries the failure reason on failed events.
	Error string `json:"error,omitempty"`
	// Timestamp is when the event was generated.
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal returns true for completed and failed events.
func (e *Event) IsTerminal() bool {
	return e.EventType == EventTypeCompleted || e.EventType == EventTypeFailed
}

// FormatMediaTime renders a duration as HH:MM:SS for the wire.
func FormatMediaTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Filter defines criteria for selecting which job events a subscriber
// receives.
type Filter struct {
	// JobID limits the stream to a single job. Nil receives every job.
	JobID *string `json:"job_id,omitempty"`
}

// Matches returns true if the event passes the filter criteria.
func (f *Filter) Matches(e *Event) bool {
	if f == nil {
		return true
	}
	if f.JobID != nil && *f.JobID != e.JobID {
		return false
	}
	return true
}
