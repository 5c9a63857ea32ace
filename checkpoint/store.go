package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ekansh09/certflow"
)

const (
	// DefaultMaxCheckpoints is the retention cap: after every create or
	// update, only this many most-recently-modified checkpoints survive.
	DefaultMaxCheckpoints = 10

	// DefaultListLimit is the limit List applies when given zero.
	DefaultListLimit = 3

	// metaFile is the per-checkpoint metadata record.
	metaFile = "checkpoint.json"

	// idFormat derives checkpoint ids from the creation time.
	idFormat = "20060102_150405"

	// labelFormat renders the friendly label shown in listings.
	labelFormat = "Jan 02, 2006 3:04 PM"

	// deletingSuffix marks a directory mid-removal so readers never
	// observe a partially deleted checkpoint.
	deletingSuffix = ".deleting"
)

// Store persists checkpoints as one directory per id under a base
// directory. It is safe for concurrent use.
type Store struct {
	baseDir string
	logger  *slog.Logger
	max     int
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxCheckpoints overrides the retention cap.
func WithMaxCheckpoints(n int) Option {
	return func(s *Store) { s.max = n }
}

// WithClock overrides the store's time source. Tests use this to pin ids
// and labels.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store rooted at baseDir, creating the directory if
// needed.
func NewStore(baseDir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		baseDir: baseDir,
		logger:  logger,
		max:     DefaultMaxCheckpoints,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create base directory: %w", err)
	}
	return s, nil
}

// Dir returns the directory holding the checkpoint's metadata and
// private file copies.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// CreateOpts carries everything CreateOrUpdate needs.
type CreateOpts struct {
	// Config supplies the job fields persisted on the checkpoint.
	Config certflow.JobConfig

	// RecordCount is the submission's total record count.
	RecordCount int

	// IdentityUsed is the sender identity of this submission.
	IdentityUsed string

	// DataPath and TemplatePath, when set, are copied into the
	// checkpoint's directory so a later resume does not depend on the
	// originals.
	DataPath     string
	TemplatePath string

	// ExistingID updates that checkpoint in place when it exists;
	// otherwise a fresh id is allocated.
	ExistingID string
}

// CreateOrUpdate creates a checkpoint or updates an existing one in
// place. An update preserves created_at and never discards a non-empty
// manifest or its counters: completed render work survives repeated
// submissions. Returns the checkpoint id.
func (s *Store) CreateOrUpdate(opts CreateOpts) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	cp := &Checkpoint{
		CreatedAt:        now,
		UpdatedAt:        now,
		Mapping:          opts.Config.Mapping,
		DestinationField: opts.Config.DestinationField,
		Subject:          opts.Config.Subject,
		BodyText:         opts.Config.BodyText,
		BodyHTML:         opts.Config.BodyHTML,
		NamePattern:      opts.Config.NamePattern,
		OutputDir:        opts.Config.OutputDir,
		RecordCount:      opts.RecordCount,
		Manifest:         []ManifestEntry{},
		IdentityUsed:     opts.IdentityUsed,
		Status:           StatusInProgress,
	}

	if opts.ExistingID != "" {
		if old, err := s.load(opts.ExistingID); err == nil {
			cp.ID = old.ID
			cp.CreatedAt = old.CreatedAt
			if len(old.Manifest) > 0 {
				cp.Manifest = old.Manifest
				cp.RenderedCount = old.RenderedCount
				cp.DispatchedCount = old.DispatchedCount
			}
		}
	}
	if cp.ID == "" {
		cp.ID = s.newID(now)
	}

	dir := s.Dir(cp.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint: create directory for %s: %w", cp.ID, err)
	}

	if opts.DataPath != "" {
		dest := "data" + filepath.Ext(opts.DataPath)
		if err := s.copyInto(dir, opts.DataPath, dest); err != nil {
			return "", err
		}
	}
	if opts.TemplatePath != "" {
		dest := "template" + filepath.Ext(opts.TemplatePath)
		if err := s.copyInto(dir, opts.TemplatePath, dest); err != nil {
			return "", err
		}
	}

	if err := s.save(cp); err != nil {
		return "", err
	}

	s.prune()
	s.logger.Info("checkpoint saved", slog.String("checkpoint_id", cp.ID))
	return cp.ID, nil
}

// AttachManifest overwrites the checkpoint's manifest and rendered
// count. Only a render phase calls this; the manifest it writes replaces
// the previous one wholesale.
func (s *Store) AttachManifest(id string, manifest []ManifestEntry, rendered int) error {
	return s.update(id, func(cp *Checkpoint) {
		cp.Manifest = manifest
		cp.RenderedCount = rendered
	})
}

// UpdateDispatchedCount sets the dispatched count. The dispatch phase
// calls it after every delivery so a stopped run resumes where it left
// off; it deliberately leaves the status in-progress, and a run that
// finishes transitions via MarkComplete.
func (s *Store) UpdateDispatchedCount(id string, n int) error {
	return s.update(id, func(cp *Checkpoint) {
		cp.DispatchedCount = n
	})
}

// MarkComplete marks the checkpoint complete without touching counts.
func (s *Store) MarkComplete(id string) error {
	return s.update(id, func(cp *Checkpoint) {
		cp.Status = StatusComplete
	})
}

// Get returns the full checkpoint, or ErrCheckpointNotFound.
func (s *Store) Get(id string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// List returns at most limit summaries, newest first by last-modified
// time. A zero or negative limit means DefaultListLimit.
func (s *Store) List(limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.idsByModTime()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, limit)
	for _, id := range ids {
		if len(summaries) == limit {
			break
		}
		cp, loadErr := s.load(id)
		if loadErr != nil {
			continue // skip records mid-deletion or corrupted
		}
		summaries = append(summaries, Summary{
			ID:              cp.ID,
			Label:           cp.CreatedAt.Format(labelFormat),
			RecordCount:     cp.RecordCount,
			RenderedCount:   cp.RenderedCount,
			DispatchedCount: cp.DispatchedCount,
			Status:          cp.Status,
			NamePattern:     cp.NamePattern,
			Subject:         cp.Subject,
			IdentityUsed:    cp.IdentityUsed,
			CreatedAt:       cp.CreatedAt,
		})
	}
	return summaries, nil
}

// Delete removes the checkpoint and all its private copies.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(id); err != nil {
		return err
	}
	s.remove(id)
	return nil
}

// mutableFields is the whitelist UpdateFields honors. JSON field names
// match the Checkpoint encoding so the edit surface can evolve without
// breaking older stored checkpoints.
var mutableFields = map[string]struct{}{
	"mapping":           {},
	"destination_field": {},
	"subject":           {},
	"body_text":         {},
	"body_html":         {},
	"name_pattern":      {},
	"output_dir":        {},
	"identity_used":     {},
	"record_count":      {},
}

// UpdateFields merges the whitelisted keys of fields into the stored
// checkpoint. Unknown keys are ignored, not rejected. Returns whether
// anything changed.
func (s *Store) UpdateFields(id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.load(id)
	if err != nil {
		return false, err
	}

	accepted := make(map[string]any)
	for k, v := range fields {
		if _, ok := mutableFields[k]; ok {
			accepted[k] = v
		}
	}
	if len(accepted) == 0 {
		return false, nil
	}

	// Merge through JSON so values arriving as generic decoded types
	// (PATCH bodies) land in the typed struct fields.
	patch, err := json.Marshal(accepted)
	if err != nil {
		return false, fmt.Errorf("checkpoint: encode field patch: %w", err)
	}
	if err := json.Unmarshal(patch, cp); err != nil {
		return false, fmt.Errorf("checkpoint: apply field patch: %w", err)
	}

	if err := s.save(cp); err != nil {
		return false, err
	}

	keys := make([]string, 0, len(accepted))
	for k := range accepted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.logger.Info("checkpoint fields updated",
		slog.String("checkpoint_id", id),
		slog.String("fields", strings.Join(keys, ",")),
	)
	return true, nil
}

// SyncFile copies a file into the checkpoint's directory under destName,
// e.g. after the caller re-uploads the data or template file.
func (s *Store) SyncFile(id, srcPath, destName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(id); err != nil {
		return err
	}
	return s.copyInto(s.Dir(id), srcPath, destName)
}

// ── internals ───────────────────────────────────────

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.Dir(id), metaFile)
}

func (s *Store) load(id string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, certflow.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("checkpoint: read %s: %w", id, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", id, err)
	}
	return &cp, nil
}

func (s *Store) save(cp *Checkpoint) error {
	cp.UpdatedAt = s.now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode %s: %w", cp.ID, err)
	}
	if err := os.WriteFile(s.metaPath(cp.ID), data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", cp.ID, err)
	}
	return nil
}

func (s *Store) update(id string, mutate func(*Checkpoint)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.load(id)
	if err != nil {
		return err
	}
	mutate(cp)
	return s.save(cp)
}

// newID derives an id from the creation time, bumping a numeric suffix
// when two submissions land in the same second.
func (s *Store) newID(now time.Time) string {
	base := now.Format(idFormat)
	id := base
	for i := 2; ; i++ {
		if _, err := os.Stat(s.Dir(id)); os.IsNotExist(err) {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

func (s *Store) copyInto(dir, srcPath, destName string) error {
	dest := filepath.Join(dir, destName)
	srcAbs, _ := filepath.Abs(srcPath)
	destAbs, _ := filepath.Abs(dest)
	if srcAbs == destAbs {
		return nil // source already lives inside the checkpoint
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("checkpoint: open %s: %w", srcPath, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("checkpoint: create private copy %s: %w", destName, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("checkpoint: copy %s: %w", destName, err)
	}
	return nil
}

// idsByModTime returns checkpoint ids newest first by metadata mtime.
func (s *Store) idsByModTime() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read base directory: %w", err)
	}

	type aged struct {
		id  string
		mod time.Time
	}
	var all []aged
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), deletingSuffix) {
			continue
		}
		info, statErr := os.Stat(s.metaPath(e.Name()))
		if statErr != nil {
			continue
		}
		all = append(all, aged{id: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].mod.After(all[j].mod) })

	ids := make([]string, len(all))
	for i, a := range all {
		ids[i] = a.id
	}
	return ids, nil
}

// remove discards one checkpoint atomically from the store's point of
// view: the directory is renamed out of the id namespace first so no
// reader observes a half-deleted record.
func (s *Store) remove(id string) {
	dir := s.Dir(id)
	tmp := dir + deletingSuffix
	if err := os.Rename(dir, tmp); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("checkpoint rename for delete failed",
				slog.String("checkpoint_id", id),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if err := os.RemoveAll(tmp); err != nil {
		s.logger.Warn("checkpoint delete failed",
			slog.String("checkpoint_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// prune keeps the retention cap: oldest checkpoints by modification
// time are discarded until at most max remain.
func (s *Store) prune() {
	ids, err := s.idsByModTime()
	if err != nil {
		s.logger.Warn("checkpoint prune skipped", slog.String("error", err.Error()))
		return
	}
	for _, id := range ids[min(len(ids), s.max):] {
		s.remove(id)
		s.logger.Info("old checkpoint pruned", slog.String("checkpoint_id", id))
	}
}
