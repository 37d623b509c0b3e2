// Package models defines the core domain types for vidmorph.
package models

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobPhase is a job's current lifecycle stage.
// Phases advance strictly forward: Queued -> Running -> {Succeeded | Failed}.
type JobPhase string

const (
	// PhaseQueued indicates the job has been accepted but the engine has not started.
	PhaseQueued JobPhase = "queued"
	// PhaseRunning indicates the engine is transcoding.
	PhaseRunning JobPhase = "running"
	// PhaseSucceeded indicates the transcode completed and the output exists.
	PhaseSucceeded JobPhase = "succeeded"
	// PhaseFailed indicates the transcode failed; no output is exposed.
	PhaseFailed JobPhase = "failed"
)

// IsTerminal returns true for Succeeded and Failed.
func (p JobPhase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// rank orders phases for forward-only transition checks.
func (p JobPhase) rank() int {
	switch p {
	case PhaseQueued:
		return 0
	case PhaseRunning:
		return 1
	case PhaseSucceeded, PhaseFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from p to next respects the
// forward-only state machine. Terminal phases accept no further transitions.
func (p JobPhase) CanTransition(next JobPhase) bool {
	if p.IsTerminal() {
		return false
	}
	return next.rank() == p.rank()+1
}

// NewJobID generates a unique job identifier. ULIDs are time-ordered with a
// random suffix, so concurrent submissions never collide and ids sort by
// submission time.
func NewJobID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Job is one submitted conversion request and its lifecycle state.
// The orchestrator exclusively owns mutation; everything else sees snapshots.
type Job struct {
	ID           string   `json:"id"`
	InputPath    string   `json:"-"`
	OutputPath   string   `json:"-"`
	InputFormat  string   `json:"input_format"`
	OutputFormat string   `json:"output_format"`
	Phase        JobPhase `json:"phase"`

	// Error carries the engine failure message when Phase is Failed.
	Error string `json:"error,omitempty"`

	// OutputID is the opaque artifact identifier handed to clients for
	// retrieval. Derived from ID plus the output extension.
	OutputID string `json:"output_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	TerminalAt *time.Time `json:"terminal_at,omitempty"`

	// LastReportedPercent is the highest percent ever published for this
	// job. Published values are clamped to never regress below it.
	LastReportedPercent float64 `json:"last_reported_percent"`
}

// Clone returns a copy safe for concurrent readers.
func (j *Job) Clone() *Job {
	c := *j
	if j.TerminalAt != nil {
		t := *j.TerminalAt
		c.TerminalAt = &t
	}
	return &c
}
