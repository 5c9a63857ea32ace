// Package pipeline orchestrates a run end to end: render an artifact per
// record, then dispatch each artifact to its record's destination. A
// Runner executes one run at a time on a background goroutine; callers
// observe it through the shared progress state and stop it cooperatively
// between records.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"log/slog"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/artifact"
	"github.com/ekansh09/certflow/backoff"
	"github.com/ekansh09/certflow/checkpoint"
	"github.com/ekansh09/certflow/hook"
	"github.com/ekansh09/certflow/mail"
	"github.com/ekansh09/certflow/progress"
	"github.com/ekansh09/certflow/record"
	"github.com/ekansh09/certflow/render"
)

// RendererFactory builds the renderer for one run from its template.
type RendererFactory func(templatePath string) (render.Renderer, error)

// Runner executes runs one at a time.
type Runner struct {
	checkpoints *checkpoint.Store
	transport   mail.Transport
	newRenderer RendererFactory
	state       *progress.State
	hooks       *hook.Registry
	logger      *slog.Logger
	cfg         certflow.Config

	mu sync.Mutex
	wg sync.WaitGroup
}

// Option customizes a Runner.
type Option func(*Runner)

// WithConfig overrides the default pipeline policies.
func WithConfig(cfg certflow.Config) Option {
	return func(r *Runner) { r.cfg = cfg }
}

// WithHooks attaches a lifecycle hook registry.
func WithHooks(reg *hook.Registry) Option {
	return func(r *Runner) { r.hooks = reg }
}

// WithRendererFactory overrides how per-run renderers are built.
func WithRendererFactory(f RendererFactory) Option {
	return func(r *Runner) { r.newRenderer = f }
}

// NewRunner creates an idle Runner.
func NewRunner(checkpoints *checkpoint.Store, transport mail.Transport, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		checkpoints: checkpoints,
		transport:   transport,
		logger:      logger,
		cfg:         certflow.DefaultConfig(),
		state:       progress.NewState(logger),
		newRenderer: func(path string) (render.Renderer, error) {
			return render.NewTemplateRenderer(path)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hooks == nil {
		r.hooks = hook.NewRegistry(logger)
	}
	return r
}

// State exposes the run's observable progress.
func (r *Runner) State() *progress.State { return r.state }

// Submission is one run request.
type Submission struct {
	// Config is the per-run job configuration.
	Config certflow.JobConfig

	// Records is the parsed source data. Required and non-empty.
	Records *record.Set

	// DataPath and TemplatePath, when set, are copied into the
	// checkpoint directory for later resumes.
	DataPath     string
	TemplatePath string

	// IdentityUsed is the sender identity recorded on the checkpoint.
	IdentityUsed string

	// CheckpointID resumes an existing checkpoint instead of creating
	// a fresh one.
	CheckpointID string
}

// Submit validates the submission, records it as a checkpoint, and
// starts the run on a background goroutine. It returns the checkpoint
// id immediately; progress is observed via State. A second Submit while
// a run is active returns ErrRunActive.
func (r *Runner) Submit(sub Submission) (string, error) {
	if err := sub.Config.Validate(); err != nil {
		return "", err
	}
	if sub.Records == nil || sub.Records.Len() == 0 {
		return "", fmt.Errorf("%w: no records to process", certflow.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Running() {
		return "", certflow.ErrRunActive
	}

	var renderer render.Renderer
	if sub.Config.Mode.Renders() {
		var err error
		if renderer, err = r.newRenderer(sub.TemplatePath); err != nil {
			return "", fmt.Errorf("prepare renderer: %w", err)
		}
		if err := os.MkdirAll(sub.Config.OutputDir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}

	id, err := r.checkpoints.CreateOrUpdate(checkpoint.CreateOpts{
		Config:       sub.Config,
		RecordCount:  sub.Records.Len(),
		IdentityUsed: sub.IdentityUsed,
		DataPath:     sub.DataPath,
		TemplatePath: sub.TemplatePath,
		ExistingID:   sub.CheckpointID,
	})
	if err != nil {
		return "", err
	}

	r.state.Reset()
	r.state.Begin(sub.Records.Len(), sub.Config.Mode)

	r.wg.Add(1)
	go r.run(context.Background(), id, sub, renderer)

	r.logger.Info("run submitted",
		slog.String("checkpoint_id", id),
		slog.String("mode", string(sub.Config.Mode)),
		slog.Int("records", sub.Records.Len()),
	)
	return id, nil
}

// Stop asks the active run to stop after the record it is currently
// processing. It returns ErrNothingToStop when no run is active.
func (r *Runner) Stop() error {
	if !r.state.RequestStop() {
		return certflow.ErrNothingToStop
	}
	r.state.Log("Stop requested")
	return nil
}

// Wait blocks until the active run's goroutine exits. Used by tests and
// graceful shutdown.
func (r *Runner) Wait() { r.wg.Wait() }

// Shutdown requests a stop if a run is active and waits for it to wind
// down or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	_ = r.Stop()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Run execution
// ──────────────────────────────────────────────────

func (r *Runner) run(ctx context.Context, id string, sub Submission, renderer render.Renderer) {
	defer r.wg.Done()

	start := time.Now()
	mode := sub.Config.Mode
	total := sub.Records.Len()

	r.hooks.EmitRunStarted(ctx, id, mode, total)
	r.state.Log("Starting run: %d records, mode %s", total, mode)

	var (
		entries []checkpoint.ManifestEntry
		stopped bool
	)
	if mode.Renders() {
		entries, stopped = r.renderPhase(ctx, id, sub, renderer)
		if err := r.checkpoints.AttachManifest(id, entries, len(entries)); err != nil {
			r.logger.Warn("attach manifest failed",
				slog.String("checkpoint_id", id),
				slog.String("error", err.Error()),
			)
		}
	} else {
		entries, stopped = r.locatePhase(ctx, id, sub)
	}

	dispatched := 0
	if !stopped && mode.Dispatches() {
		dispatched, stopped = r.dispatchPhase(ctx, id, sub, entries)
	}

	r.finalize(ctx, id, sub, start, len(entries), dispatched, stopped)
}

// renderPhase produces one artifact per record and returns the manifest
// of successful renders. The bool result reports whether a stop request
// interrupted the phase.
func (r *Runner) renderPhase(ctx context.Context, id string, sub Submission, renderer render.Renderer) ([]checkpoint.ManifestEntry, bool) {
	r.setPhase(ctx, id, progress.PhaseGenerating)
	r.state.Log("=== Generating artifacts ===")

	total := sub.Records.Len()
	share := 100
	if sub.Config.Mode.Dispatches() {
		share = r.cfg.RenderShare
	}

	resolver := artifact.NewResolver(sub.Config.OutputDir, r.cfg.MaxProbes)
	strategy := backoff.NewConstant(r.cfg.RenderDelay)
	entries := make([]checkpoint.ManifestEntry, 0, total)

	for i := 0; i < total; i++ {
		if r.state.StopRequested() {
			r.state.Log("Stopped during generation after %d of %d", i, total)
			return entries, true
		}

		rec := sub.Records.Record(i)
		fields := rec.Fields(sub.Config.Mapping)
		dest, _ := rec.Get(sub.Config.DestinationField)
		path := resolver.Allocate(artifact.BaseName(sub.Config.NamePattern, fields))

		err := backoff.Retry(ctx, r.cfg.RenderAttempts, strategy, func() error {
			doc, renderErr := renderer.Render(ctx, fields)
			if renderErr != nil {
				return renderErr
			}
			return renderer.Convert(ctx, doc, path)
		})
		if err != nil {
			r.recordFailure(ctx, id, dest, fmt.Sprintf("generation failed: %v", err))
		} else {
			entries = append(entries, checkpoint.ManifestEntry{
				RecordIndex:   i,
				ArtifactPath:  path,
				DestinationID: dest,
			})
			r.state.Log("Generated %s", filepath.Base(path))
			r.hooks.EmitRecordRendered(ctx, id, i, path)
		}

		r.state.SetProcessed(i + 1)
		r.state.SetPercent(phasePercent(0, share, i+1, total))
	}
	return entries, false
}

// locatePhase finds previously rendered artifacts for a dispatch-only
// run: the checkpoint manifest first, then filename resolution for
// records the manifest does not cover.
func (r *Runner) locatePhase(ctx context.Context, id string, sub Submission) ([]checkpoint.ManifestEntry, bool) {
	r.setPhase(ctx, id, progress.PhaseLocating)
	r.state.Log("=== Locating artifacts ===")

	total := sub.Records.Len()
	resolver := artifact.NewResolver(sub.Config.OutputDir, r.cfg.MaxProbes)

	// Claim every surviving manifest path up front so filename
	// resolution for uncovered records can never hand out an artifact
	// that belongs to a manifest-covered one.
	byIndex := map[int]checkpoint.ManifestEntry{}
	if cp, err := r.checkpoints.Get(id); err == nil {
		for _, e := range cp.Manifest {
			byIndex[e.RecordIndex] = e
			if fileExists(e.ArtifactPath) {
				resolver.Claim(e.ArtifactPath)
			}
		}
	}

	entries := make([]checkpoint.ManifestEntry, 0, total)
	for i := 0; i < total; i++ {
		if r.state.StopRequested() {
			r.state.Log("Stopped while locating after %d of %d", i, total)
			return entries, true
		}

		rec := sub.Records.Record(i)
		dest, _ := rec.Get(sub.Config.DestinationField)

		if e, ok := byIndex[i]; ok {
			// A manifest entry is authoritative: if its artifact is
			// gone the record fails rather than borrowing a file
			// rendered for a different record.
			if fileExists(e.ArtifactPath) {
				e.DestinationID = dest
				entries = append(entries, e)
			} else {
				r.recordFailure(ctx, id, dest, fmt.Sprintf("artifact not found: %s", filepath.Base(e.ArtifactPath)))
			}
		} else {
			fields := rec.Fields(sub.Config.Mapping)
			path, err := resolver.Resolve(artifact.BaseName(sub.Config.NamePattern, fields))
			if err != nil {
				r.recordFailure(ctx, id, dest, fmt.Sprintf("artifact not found: %v", err))
			} else {
				entries = append(entries, checkpoint.ManifestEntry{
					RecordIndex:   i,
					ArtifactPath:  path,
					DestinationID: dest,
				})
			}
		}

		r.state.SetProcessed(i + 1)
		r.state.SetPercent(phasePercent(0, r.cfg.LocateShare, i+1, total))
	}
	r.state.Log("Located %d of %d artifacts", len(entries), total)
	return entries, false
}

// dispatchPhase delivers each manifest entry's artifact to its
// destination. A failed transport connection degrades the phase rather
// than aborting it: every message is recorded as failed so the caller
// sees the full damage in one pass.
func (r *Runner) dispatchPhase(ctx context.Context, id string, sub Submission, entries []checkpoint.ManifestEntry) (int, bool) {
	r.setPhase(ctx, id, progress.PhaseSending)
	r.state.Log("=== Sending ===")

	base := r.cfg.LocateShare
	if sub.Config.Mode.Renders() {
		base = r.cfg.RenderShare
	}
	share := 100 - base
	total := len(entries)
	strategy := backoff.NewConstant(r.cfg.SendDelay)

	var connErr error
	conn, err := r.transport.Connect(ctx)
	if err != nil {
		connErr = err
		r.state.Log("Mail connection failed: %v", err)
	} else {
		defer conn.Close()
	}

	dispatched := 0
	for j, e := range entries {
		if r.state.StopRequested() {
			r.state.Log("Stopped while sending after %d of %d", j, total)
			return dispatched, true
		}
		if j > 0 {
			if err := sleepCtx(ctx, r.cfg.SendInterval); err != nil {
				return dispatched, true
			}
		}

		fields := sub.Records.Record(e.RecordIndex).Fields(sub.Config.Mapping)
		msg := &mail.Message{
			To:             e.DestinationID,
			Subject:        certflow.Expand(sub.Config.Subject, fields),
			BodyText:       certflow.Expand(sub.Config.BodyText, fields),
			AttachmentPath: e.ArtifactPath,
		}
		if sub.Config.BodyHTML != "" {
			msg.BodyHTML = certflow.Expand(sub.Config.BodyHTML, fields)
		}

		sendErr := connErr
		if sendErr == nil {
			sendErr = backoff.Retry(ctx, r.cfg.SendAttempts, strategy, func() error {
				return conn.Send(ctx, msg)
			})
		}
		if sendErr != nil {
			r.recordFailure(ctx, id, e.DestinationID, fmt.Sprintf("send failed: %v", sendErr))
		} else {
			dispatched++
			r.state.SetDispatched(dispatched)
			if err := r.checkpoints.UpdateDispatchedCount(id, dispatched); err != nil {
				r.logger.Warn("persist dispatched count failed",
					slog.String("checkpoint_id", id),
					slog.String("error", err.Error()),
				)
			}
			r.state.Log("[SENT] %s", e.DestinationID)
			r.hooks.EmitRecordDispatched(ctx, id, e.DestinationID)
		}

		r.state.SetProcessed(j + 1)
		r.state.SetPercent(phasePercent(base, share, j+1, total))
	}
	return dispatched, false
}

func (r *Runner) finalize(ctx context.Context, id string, sub Submission, start time.Time, rendered, dispatched int, stopped bool) {
	failures := r.state.Failures()

	if len(failures) > 0 {
		path := sub.Config.FailedExportPath
		if path == "" {
			path = filepath.Join(sub.Config.OutputDir, "failed_list.csv")
		}
		if err := record.ExportFailed(path, sub.Records, sub.Config.DestinationField, failures); err != nil {
			r.logger.Warn("failed-record export failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else {
			if abs, absErr := filepath.Abs(path); absErr == nil {
				path = abs
			}
			r.state.Log("Exported failed records to %s", path)
		}
	}

	final := progress.PhaseComplete
	label := "Complete"
	if stopped {
		final = progress.PhaseStopped
		label = "Stopped"
	} else if err := r.checkpoints.MarkComplete(id); err != nil {
		r.logger.Warn("mark checkpoint complete failed",
			slog.String("checkpoint_id", id),
			slog.String("error", err.Error()),
		)
	}

	if sub.Config.Mode.Dispatches() {
		r.state.Log("=== %s: %d sent, %d failed ===", label, dispatched, len(failures))
	} else {
		r.state.Log("=== %s: %d generated, %d failed ===", label, rendered, len(failures))
	}

	r.state.Finish(final)
	r.hooks.EmitRunFinished(ctx, id, final, time.Since(start))
}

func (r *Runner) setPhase(ctx context.Context, id string, p progress.Phase) {
	r.state.SetPhase(p)
	r.hooks.EmitPhaseChanged(ctx, id, p)
}

func (r *Runner) recordFailure(ctx context.Context, id, dest, reason string) {
	r.state.RecordFailure(dest, reason)
	r.state.Log("[FAIL] %s: %s", dest, reason)
	r.hooks.EmitRecordFailed(ctx, id, record.Failure{DestinationID: dest, Reason: reason})
}

// phasePercent maps progress within one phase onto its slice of the
// overall 0–100 scale.
func phasePercent(base, share, done, total int) int {
	if total <= 0 {
		return base + share
	}
	return base + done*share/total
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
