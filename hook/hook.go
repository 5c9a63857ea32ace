// Package hook defines the lifecycle hook system for certflow. Hooks are
// notified of run and per-record events (run started, record rendered,
// record failed, etc.) and can react to them — metrics, tracing, audit
// trails.
//
// Each lifecycle event is a separate interface so hooks opt in only to
// the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/progress"
	"github.com/ekansh09/certflow/record"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle
// ──────────────────────────────────────────────────

// RunStarted is called when a run begins, before any record is processed.
type RunStarted interface {
	OnRunStarted(ctx context.Context, checkpointID string, mode certflow.Mode, total int) error
}

// PhaseChanged is called when the run moves to a new phase.
type PhaseChanged interface {
	OnPhaseChanged(ctx context.Context, checkpointID string, phase progress.Phase) error
}

// RunFinished is called exactly once when a run ends, whether it
// completed or was stopped.
type RunFinished interface {
	OnRunFinished(ctx context.Context, checkpointID string, final progress.Phase, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Record lifecycle
// ──────────────────────────────────────────────────

// RecordRendered is called after a record's artifact lands on disk.
type RecordRendered interface {
	OnRecordRendered(ctx context.Context, checkpointID string, recordIndex int, artifactPath string) error
}

// RecordDispatched is called after a record's artifact is delivered.
type RecordDispatched interface {
	OnRecordDispatched(ctx context.Context, checkpointID string, destinationID string) error
}

// RecordFailed is called when a record fails terminally (retries
// exhausted), in either phase.
type RecordFailed interface {
	OnRecordFailed(ctx context.Context, checkpointID string, failure record.Failure) error
}
