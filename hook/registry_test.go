package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/hook"
	"github.com/ekansh09/certflow/progress"
	"github.com/ekansh09/certflow/record"
)

// ──────────────────────────────────────────────────
// Test hooks
// ──────────────────────────────────────────────────

// allEventsHook implements every lifecycle event for testing.
type allEventsHook struct {
	calls []string
}

func (h *allEventsHook) Name() string { return "all-events" }

func (h *allEventsHook) OnRunStarted(_ context.Context, _ string, _ certflow.Mode, _ int) error {
	h.calls = append(h.calls, "OnRunStarted")
	return nil
}

func (h *allEventsHook) OnPhaseChanged(_ context.Context, _ string, _ progress.Phase) error {
	h.calls = append(h.calls, "OnPhaseChanged")
	return nil
}

func (h *allEventsHook) OnRunFinished(_ context.Context, _ string, _ progress.Phase, _ time.Duration) error {
	h.calls = append(h.calls, "OnRunFinished")
	return nil
}

func (h *allEventsHook) OnRecordRendered(_ context.Context, _ string, _ int, _ string) error {
	h.calls = append(h.calls, "OnRecordRendered")
	return nil
}

func (h *allEventsHook) OnRecordDispatched(_ context.Context, _ string, _ string) error {
	h.calls = append(h.calls, "OnRecordDispatched")
	return nil
}

func (h *allEventsHook) OnRecordFailed(_ context.Context, _ string, _ record.Failure) error {
	h.calls = append(h.calls, "OnRecordFailed")
	return nil
}

// runOnlyHook only implements run-level events.
type runOnlyHook struct {
	calls []string
}

func (h *runOnlyHook) Name() string { return "run-only" }

func (h *runOnlyHook) OnRunStarted(_ context.Context, _ string, _ certflow.Mode, _ int) error {
	h.calls = append(h.calls, "OnRunStarted")
	return nil
}

func (h *runOnlyHook) OnRunFinished(_ context.Context, _ string, _ progress.Phase, _ time.Duration) error {
	h.calls = append(h.calls, "OnRunFinished")
	return nil
}

// failingHook returns errors from events.
type failingHook struct{}

func (h *failingHook) Name() string { return "failing" }

func (h *failingHook) OnRunStarted(_ context.Context, _ string, _ certflow.Mode, _ int) error {
	return errors.New("boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allEventsHook{}
	r.Register(all)

	if got := len(r.Hooks()); got != 1 {
		t.Fatalf("expected 1 hook, got %d", got)
	}
	if got := r.Hooks()[0].Name(); got != "all-events" {
		t.Fatalf("expected name 'all-events', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allEventsHook{}
	ro := &runOnlyHook{}
	r.Register(all)
	r.Register(ro)

	ctx := context.Background()

	// Both implement OnRunStarted → both called.
	r.EmitRunStarted(ctx, "20260830_140509", certflow.ModeBoth, 10)
	if len(all.calls) != 1 || all.calls[0] != "OnRunStarted" {
		t.Fatalf("all: expected [OnRunStarted], got %v", all.calls)
	}
	if len(ro.calls) != 1 || ro.calls[0] != "OnRunStarted" {
		t.Fatalf("ro: expected [OnRunStarted], got %v", ro.calls)
	}

	// Only all implements OnRecordRendered → ro not called.
	r.EmitRecordRendered(ctx, "20260830_140509", 0, "out/Certificate.pdf")
	if len(all.calls) != 2 || all.calls[1] != "OnRecordRendered" {
		t.Fatalf("all: expected OnRecordRendered as 2nd, got %v", all.calls)
	}
	if len(ro.calls) != 1 {
		t.Fatalf("ro: should still have 1 call, got %v", ro.calls)
	}
}

func TestRegistry_AllEventsFireInOrder(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allEventsHook{}
	r.Register(all)

	ctx := context.Background()
	id := "20260830_140509"

	r.EmitRunStarted(ctx, id, certflow.ModeBoth, 2)
	r.EmitPhaseChanged(ctx, id, progress.PhaseGenerating)
	r.EmitRecordRendered(ctx, id, 0, "out/a.pdf")
	r.EmitRecordDispatched(ctx, id, "a@example.com")
	r.EmitRecordFailed(ctx, id, record.Failure{DestinationID: "b@example.com", Reason: "bounce"})
	r.EmitRunFinished(ctx, id, progress.PhaseComplete, time.Second)

	expected := []string{
		"OnRunStarted", "OnPhaseChanged", "OnRecordRendered",
		"OnRecordDispatched", "OnRecordFailed", "OnRunFinished",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	failing := &failingHook{}
	all := &allEventsHook{}

	// Register failing first, then all-events. Both should be called.
	r.Register(failing)
	r.Register(all)

	// No panic, no error propagation. allEventsHook should still fire.
	r.EmitRunStarted(context.Background(), "x", certflow.ModeBoth, 1)

	if len(all.calls) != 1 || all.calls[0] != "OnRunStarted" {
		t.Fatalf("all: expected [OnRunStarted] despite failing hook, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := hook.NewRegistry(slog.Default())
	ctx := context.Background()

	// None of these should panic or error.
	r.EmitRunStarted(ctx, "x", certflow.ModeBoth, 1)
	r.EmitPhaseChanged(ctx, "x", progress.PhaseSending)
	r.EmitRecordRendered(ctx, "x", 0, "p")
	r.EmitRecordDispatched(ctx, "x", "d")
	r.EmitRecordFailed(ctx, "x", record.Failure{})
	r.EmitRunFinished(ctx, "x", progress.PhaseStopped, time.Second)
}

func TestRegistry_MultipleHooksAllCalled(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	h1 := &allEventsHook{}
	h2 := &allEventsHook{}
	r.Register(h1)
	r.Register(h2)

	r.EmitRunStarted(context.Background(), "x", certflow.ModeRenderOnly, 5)

	if len(h1.calls) != 1 {
		t.Errorf("h1: expected 1 call, got %d", len(h1.calls))
	}
	if len(h2.calls) != 1 {
		t.Errorf("h2: expected 1 call, got %d", len(h2.calls))
	}
}
