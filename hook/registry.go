package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/progress"
	"github.com/ekansh09/certflow/record"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type runStartedEntry struct {
	name string
	hook RunStarted
}

type phaseChangedEntry struct {
	name string
	hook PhaseChanged
}

type runFinishedEntry struct {
	name string
	hook RunFinished
}

type recordRenderedEntry struct {
	name string
	hook RecordRendered
}

type recordDispatchedEntry struct {
	name string
	hook RecordDispatched
}

type recordFailedEntry struct {
	name string
	hook RecordFailed
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	runStarted       []runStartedEntry
	phaseChanged     []phaseChangedEntry
	runFinished      []runFinishedEntry
	recordRendered   []recordRenderedEntry
	recordDispatched []recordDispatchedEntry
	recordFailed     []recordFailedEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if e, ok := h.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, e})
	}
	if e, ok := h.(PhaseChanged); ok {
		r.phaseChanged = append(r.phaseChanged, phaseChangedEntry{name, e})
	}
	if e, ok := h.(RunFinished); ok {
		r.runFinished = append(r.runFinished, runFinishedEntry{name, e})
	}
	if e, ok := h.(RecordRendered); ok {
		r.recordRendered = append(r.recordRendered, recordRenderedEntry{name, e})
	}
	if e, ok := h.(RecordDispatched); ok {
		r.recordDispatched = append(r.recordDispatched, recordDispatchedEntry{name, e})
	}
	if e, ok := h.(RecordFailed); ok {
		r.recordFailed = append(r.recordFailed, recordFailedEntry{name, e})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// EmitRunStarted notifies all hooks that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, checkpointID string, mode certflow.Mode, total int) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, checkpointID, mode, total); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitPhaseChanged notifies all hooks that implement PhaseChanged.
func (r *Registry) EmitPhaseChanged(ctx context.Context, checkpointID string, phase progress.Phase) {
	for _, e := range r.phaseChanged {
		if err := e.hook.OnPhaseChanged(ctx, checkpointID, phase); err != nil {
			r.logHookError("OnPhaseChanged", e.name, err)
		}
	}
}

// EmitRunFinished notifies all hooks that implement RunFinished.
func (r *Registry) EmitRunFinished(ctx context.Context, checkpointID string, final progress.Phase, elapsed time.Duration) {
	for _, e := range r.runFinished {
		if err := e.hook.OnRunFinished(ctx, checkpointID, final, elapsed); err != nil {
			r.logHookError("OnRunFinished", e.name, err)
		}
	}
}

// EmitRecordRendered notifies all hooks that implement RecordRendered.
func (r *Registry) EmitRecordRendered(ctx context.Context, checkpointID string, recordIndex int, artifactPath string) {
	for _, e := range r.recordRendered {
		if err := e.hook.OnRecordRendered(ctx, checkpointID, recordIndex, artifactPath); err != nil {
			r.logHookError("OnRecordRendered", e.name, err)
		}
	}
}

// EmitRecordDispatched notifies all hooks that implement RecordDispatched.
func (r *Registry) EmitRecordDispatched(ctx context.Context, checkpointID string, destinationID string) {
	for _, e := range r.recordDispatched {
		if err := e.hook.OnRecordDispatched(ctx, checkpointID, destinationID); err != nil {
			r.logHookError("OnRecordDispatched", e.name, err)
		}
	}
}

// EmitRecordFailed notifies all hooks that implement RecordFailed.
func (r *Registry) EmitRecordFailed(ctx context.Context, checkpointID string, failure record.Failure) {
	for _, e := range r.recordFailed {
		if err := e.hook.OnRecordFailed(ctx, checkpointID, failure); err != nil {
			r.logHookError("OnRecordFailed", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the run.
func (r *Registry) logHookError(event, hookName string, err error) {
	r.logger.Warn("lifecycle hook error",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}
