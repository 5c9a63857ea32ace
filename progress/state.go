// Package progress holds the shared, thread-safe state of one in-flight
// pipeline run. The State is owned by the pipeline runner for the run's
// lifetime and exposed to the polling boundary by reference; observers
// read snapshots and drain queued log lines, the runner is the only
// writer.
package progress

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/record"
)

// Phase is the pipeline's current position in the state machine.
type Phase string

const (
	// PhaseIdle means no run is active.
	PhaseIdle Phase = "idle"
	// PhaseGenerating means the render phase is producing artifacts.
	PhaseGenerating Phase = "generating"
	// PhaseLocating means a dispatch-only run is pairing records with
	// previously rendered artifacts.
	PhaseLocating Phase = "locating"
	// PhaseSending means the dispatch phase is delivering messages.
	PhaseSending Phase = "sending"
	// PhaseComplete means the run finished all requested phases.
	PhaseComplete Phase = "complete"
	// PhaseStopped means the run honored a stop request before finishing.
	PhaseStopped Phase = "stopped"
)

// State is the mutable progress record of one run. All methods are safe
// for concurrent use; a plain mutex gives the sequential consistency the
// polling boundary depends on.
type State struct {
	mu sync.Mutex

	running       bool
	stopRequested bool
	phase         Phase
	processed     int
	total         int
	percent       int
	dispatched    int
	failures      []record.Failure
	complete      bool
	mode          certflow.Mode
	logs          []string

	// logger is the durable audit log; every queued line is mirrored
	// to it.
	logger *slog.Logger
}

// NewState creates an idle State auditing to logger.
func NewState(logger *slog.Logger) *State {
	s := &State{logger: logger}
	s.Reset()
	return s
}

// Reset clears all counters and the log queue and returns the state to
// idle. The runner calls it exactly once, synchronously, before a new
// run's worker starts.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stopRequested = false
	s.phase = PhaseIdle
	s.processed = 0
	s.total = 0
	s.percent = 0
	s.dispatched = 0
	s.failures = nil
	s.complete = false
	s.mode = ""
	s.logs = nil
}

// Begin marks the state running for a run over total records.
func (s *State) Begin(total int, mode certflow.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.total = total
	s.mode = mode
}

// Log formats a line, queues it for the next drain, and mirrors it to
// the audit logger.
func (s *State) Log(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	s.mu.Lock()
	s.logs = append(s.logs, line)
	s.mu.Unlock()
	s.logger.Info(line)
}

// DrainLogs atomically removes and returns all queued log lines, oldest
// first. Each line is returned to exactly one drain.
func (s *State) DrainLogs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.logs
	s.logs = nil
	return out
}

// RequestStop asks the run to stop after the current record. It is
// accepted only while a run is active; repeated requests are harmless.
func (s *State) RequestStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.stopRequested = true
	return true
}

// StopRequested reports whether a stop has been requested.
func (s *State) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// Running reports whether a run is active.
func (s *State) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetPhase records the run's current phase.
func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// SetProcessed records how many records the current phase has handled.
func (s *State) SetProcessed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = n
}

// SetPercent records progress. Values below the current percent or
// outside 0–100 are ignored; within a run, progress only moves forward.
func (s *State) SetPercent(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p < s.percent || p < 0 || p > 100 {
		return
	}
	s.percent = p
}

// SetDispatched records how many messages have been delivered.
func (s *State) SetDispatched(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = n
}

// RecordFailure appends one per-record failure.
func (s *State) RecordFailure(destinationID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, record.Failure{DestinationID: destinationID, Reason: reason})
}

// Failures returns a copy of the recorded failures in order.
func (s *State) Failures() []record.Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Finish finalizes the run: processed is forced to total, percent to
// 100, and the state stops running with the given terminal phase.
func (s *State) Finish(final Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = s.total
	s.percent = 100
	s.phase = final
	s.running = false
	s.complete = true
}

// Snapshot is a point-in-time view of the state for observers.
type Snapshot struct {
	Running       bool          `json:"running"`
	StopRequested bool          `json:"stop_requested"`
	Phase         Phase         `json:"phase"`
	Mode          certflow.Mode `json:"mode"`
	Processed     int           `json:"processed"`
	Total         int           `json:"total"`
	Percent       int           `json:"progress"`
	Dispatched    int           `json:"dispatched_count"`
	FailureCount  int           `json:"failure_count"`
	Complete      bool          `json:"complete"`
}

// Snapshot returns the current state without draining the log queue.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Running:       s.running,
		StopRequested: s.stopRequested,
		Phase:         s.phase,
		Mode:          s.mode,
		Processed:     s.processed,
		Total:         s.total,
		Percent:       s.percent,
		Dispatched:    s.dispatched,
		FailureCount:  len(s.failures),
		Complete:      s.complete,
	}
}
