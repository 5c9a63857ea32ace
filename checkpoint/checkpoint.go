// Package checkpoint persists the durable record of each logical job:
// its submitted configuration, the artifact manifest produced by a
// completed render phase, and running counters. One directory per
// checkpoint holds a JSON metadata record plus private copies of the
// input data and template files, so a later dispatch-only run does not
// depend on the caller's working files still existing.
package checkpoint

import (
	"time"

	"github.com/ekansh09/certflow"
)

// Status is a checkpoint's lifecycle state.
type Status string

const (
	// StatusInProgress means the job has been submitted but its latest
	// run has not finished.
	StatusInProgress Status = "in-progress"
	// StatusComplete means the latest run finished.
	StatusComplete Status = "complete"
)

// ManifestEntry maps one input record to the artifact rendered for it.
// Entries are produced exclusively by the render phase and are immutable
// once written.
type ManifestEntry struct {
	RecordIndex   int    `json:"record_index"`
	ArtifactPath  string `json:"artifact_path"`
	DestinationID string `json:"destination_id"`
}

// Checkpoint is the durable record of one logical job, keyed by a
// time-derived id. Repeated submissions sharing the id update it in
// place.
type Checkpoint struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Mapping          []certflow.Mapping `json:"mapping"`
	DestinationField string             `json:"destination_field"`
	Subject          string             `json:"subject"`
	BodyText         string             `json:"body_text"`
	BodyHTML         string             `json:"body_html,omitempty"`
	NamePattern      string             `json:"name_pattern"`
	OutputDir        string             `json:"output_dir"`

	RecordCount     int             `json:"record_count"`
	Manifest        []ManifestEntry `json:"manifest"`
	RenderedCount   int             `json:"rendered_count"`
	DispatchedCount int             `json:"dispatched_count"`

	// IdentityUsed is the sender identity of the last submission.
	IdentityUsed string `json:"identity_used,omitempty"`

	Status Status `json:"status"`
}

// Summary is the lightweight listing shape returned by Store.List.
type Summary struct {
	ID              string    `json:"id"`
	Label           string    `json:"label"`
	RecordCount     int       `json:"record_count"`
	RenderedCount   int       `json:"rendered_count"`
	DispatchedCount int       `json:"dispatched_count"`
	Status          Status    `json:"status"`
	NamePattern     string    `json:"name_pattern"`
	Subject         string    `json:"subject"`
	IdentityUsed    string    `json:"identity_used,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
