package checkpoint_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/checkpoint"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() certflow.JobConfig {
	return certflow.JobConfig{
		Mode:             certflow.ModeBoth,
		Mapping:          []certflow.Mapping{{Placeholder: "name", Column: "Name"}},
		DestinationField: "Email",
		Subject:          "Certificate for {name}",
		BodyText:         "Dear {name}",
		NamePattern:      "{name}",
		OutputDir:        "artifacts",
	}
}

func newStore(t *testing.T, opts ...checkpoint.Option) *checkpoint.Store {
	t.Helper()
	s, err := checkpoint.NewStore(t.TempDir(), discard(), opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_CreateAllocatesTimeDerivedID(t *testing.T) {
	fixed := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	s := newStore(t, checkpoint.WithClock(func() time.Time { return fixed }))

	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig(), RecordCount: 3})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if id != "20260830_140509" {
		t.Errorf("id = %q, want time-derived 20260830_140509", id)
	}

	// A second create in the same second gets a distinct id.
	id2, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig()})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if id2 == id {
		t.Errorf("second id = %q, want a suffixed variant", id2)
	}
}

func TestStore_UpdatePreservesCreatedAtAndManifest(t *testing.T) {
	current := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	s := newStore(t, checkpoint.WithClock(func() time.Time { return current }))

	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig(), RecordCount: 2})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	manifest := []checkpoint.ManifestEntry{
		{RecordIndex: 0, ArtifactPath: "a/0.pdf", DestinationID: "a@example.com"},
		{RecordIndex: 1, ArtifactPath: "a/1.pdf", DestinationID: "b@example.com"},
	}
	if err := s.AttachManifest(id, manifest, 2); err != nil {
		t.Fatalf("AttachManifest: %v", err)
	}
	if err := s.UpdateDispatchedCount(id, 2); err != nil {
		t.Fatalf("UpdateDispatchedCount: %v", err)
	}

	// Re-submit the same logical job later.
	current = current.Add(time.Hour)
	again, err := s.CreateOrUpdate(checkpoint.CreateOpts{
		Config:     testConfig(),
		ExistingID: id,
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate (update): %v", err)
	}
	if again != id {
		t.Fatalf("update returned id %q, want %q", again, id)
	}

	cp, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !cp.CreatedAt.Equal(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v, want the original creation time", cp.CreatedAt)
	}
	if len(cp.Manifest) != 2 || cp.RenderedCount != 2 || cp.DispatchedCount != 2 {
		t.Errorf("update discarded render work: manifest=%d rendered=%d dispatched=%d",
			len(cp.Manifest), cp.RenderedCount, cp.DispatchedCount)
	}
	if cp.Status != checkpoint.StatusInProgress {
		t.Errorf("Status = %s, want in-progress after re-submission", cp.Status)
	}
}

func TestStore_CreateWithUnknownExistingIDMakesFreshRecord(t *testing.T) {
	s := newStore(t)
	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{
		Config:     testConfig(),
		ExistingID: "20200101_000000",
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	cp, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(cp.Manifest) != 0 || cp.Status != checkpoint.StatusInProgress {
		t.Errorf("fresh record = %+v, want empty manifest, in-progress", cp)
	}
}

func TestStore_CopiesInputFilesIntoCheckpoint(t *testing.T) {
	s := newStore(t)
	src := t.TempDir()

	dataPath := filepath.Join(src, "attendees.csv")
	if err := os.WriteFile(dataPath, []byte("Name,Email\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tplPath := filepath.Join(src, "certificate.tmpl")
	if err := os.WriteFile(tplPath, []byte("Hello {name}"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{
		Config:       testConfig(),
		DataPath:     dataPath,
		TemplatePath: tplPath,
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	for _, name := range []string{"data.csv", "template.tmpl"} {
		if _, statErr := os.Stat(filepath.Join(s.Dir(id), name)); statErr != nil {
			t.Errorf("private copy %s missing: %v", name, statErr)
		}
	}
}

func TestStore_MarkCompleteLeavesCountsAlone(t *testing.T) {
	s := newStore(t)
	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig()})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if err := s.AttachManifest(id, []checkpoint.ManifestEntry{{RecordIndex: 0}}, 1); err != nil {
		t.Fatalf("AttachManifest: %v", err)
	}
	if err := s.MarkComplete(id); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	cp, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cp.Status != checkpoint.StatusComplete {
		t.Errorf("Status = %s, want complete", cp.Status)
	}
	if cp.RenderedCount != 1 || cp.DispatchedCount != 0 {
		t.Errorf("counts changed: rendered=%d dispatched=%d", cp.RenderedCount, cp.DispatchedCount)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get("20990101_000000"); !errors.Is(err, certflow.ErrCheckpointNotFound) {
		t.Errorf("Get(missing) = %v, want ErrCheckpointNotFound", err)
	}
}

func TestStore_ListNewestFirstWithLimit(t *testing.T) {
	current := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	s := newStore(t, checkpoint.WithClock(func() time.Time { return current }))

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig(), RecordCount: i})
		if err != nil {
			t.Fatalf("CreateOrUpdate: %v", err)
		}
		ids = append(ids, id)
		current = current.Add(time.Minute)
		time.Sleep(10 * time.Millisecond) // distinct mtimes
	}

	got, err := s.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List(2) returned %d summaries", len(got))
	}
	if got[0].ID != ids[3] || got[1].ID != ids[2] {
		t.Errorf("List order = [%s %s], want newest first [%s %s]",
			got[0].ID, got[1].ID, ids[3], ids[2])
	}
	if got[0].Label == "" {
		t.Error("summary label is empty")
	}
}

func TestStore_PruneKeepsNewest(t *testing.T) {
	current := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	s := newStore(t,
		checkpoint.WithMaxCheckpoints(2),
		checkpoint.WithClock(func() time.Time { return current }),
	)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig()})
		if err != nil {
			t.Fatalf("CreateOrUpdate: %v", err)
		}
		ids = append(ids, id)
		current = current.Add(time.Minute)
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := s.Get(ids[0]); !errors.Is(err, certflow.ErrCheckpointNotFound) {
		t.Errorf("oldest checkpoint survived prune: err = %v", err)
	}
	for _, id := range ids[1:] {
		if _, err := s.Get(id); err != nil {
			t.Errorf("recent checkpoint %s pruned: %v", id, err)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	s := newStore(t)
	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig()})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(id); !errors.Is(err, certflow.ErrCheckpointNotFound) {
		t.Errorf("Get after Delete = %v, want ErrCheckpointNotFound", err)
	}
	if err := s.Delete(id); !errors.Is(err, certflow.ErrCheckpointNotFound) {
		t.Errorf("second Delete = %v, want ErrCheckpointNotFound", err)
	}
}

func TestStore_UpdateFields_WhitelistOnly(t *testing.T) {
	s := newStore(t)
	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig()})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	changed, err := s.UpdateFields(id, map[string]any{
		"subject":      "Updated subject for {name}",
		"record_count": float64(42), // JSON-decoded numbers arrive as float64
		"status":       "complete",  // not whitelisted
		"bogus":        true,        // unknown, ignored
	})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if !changed {
		t.Fatal("UpdateFields reported no change")
	}

	cp, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cp.Subject != "Updated subject for {name}" {
		t.Errorf("Subject = %q, not updated", cp.Subject)
	}
	if cp.RecordCount != 42 {
		t.Errorf("RecordCount = %d, want 42", cp.RecordCount)
	}
	if cp.Status != checkpoint.StatusInProgress {
		t.Errorf("Status = %s; whitelist must protect status", cp.Status)
	}
}

func TestStore_UpdateFields_OnlyUnknownKeys(t *testing.T) {
	s := newStore(t)
	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig()})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	changed, err := s.UpdateFields(id, map[string]any{"nope": 1})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if changed {
		t.Error("UpdateFields reported change for unknown keys only")
	}
}

func TestStore_SyncFile(t *testing.T) {
	s := newStore(t)
	id, err := s.CreateOrUpdate(checkpoint.CreateOpts{Config: testConfig()})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}

	src := filepath.Join(t.TempDir(), "new-data.csv")
	if err := os.WriteFile(src, []byte("Name\nAda\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.SyncFile(id, src, "data.csv"); err != nil {
		t.Fatalf("SyncFile: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(s.Dir(id), "data.csv"))
	if err != nil {
		t.Fatalf("read synced copy: %v", err)
	}
	if string(got) != "Name\nAda\n" {
		t.Errorf("synced copy = %q", got)
	}
}
