package api

import (
	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/progress"
)

// SubmitRunRequest is the full run submission: the job configuration
// plus the source records inline.
type SubmitRunRequest struct {
	Mode             string             `json:"mode"`
	Mapping          []certflow.Mapping `json:"mapping"`
	DestinationField string             `json:"destination_field"`
	Subject          string             `json:"subject"`
	BodyText         string             `json:"body_text"`
	BodyHTML         string             `json:"body_html,omitempty"`
	NamePattern      string             `json:"name_pattern"`
	OutputDir        string             `json:"output_dir"`
	FailedExportPath string             `json:"failed_export_path,omitempty"`

	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`

	DataPath     string `json:"data_path,omitempty"`
	TemplatePath string `json:"template_path,omitempty"`
	IdentityUsed string `json:"identity_used,omitempty"`

	// CheckpointID resumes an existing checkpoint.
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// SubmitRunResponse acknowledges an accepted run.
type SubmitRunResponse struct {
	CheckpointID string `json:"checkpoint_id"`
}

// ProgressResponse is one progress poll: the snapshot plus the log lines
// queued since the previous poll.
type ProgressResponse struct {
	progress.Snapshot
	Logs []string `json:"logs"`
}

// ListCheckpointsRequest filters the checkpoint listing.
type ListCheckpointsRequest struct {
	Limit int `query:"limit" json:"limit,omitempty"`
}

// GetCheckpointRequest is the (empty) request for getCheckpoint.
type GetCheckpointRequest struct{}

// UpdateCheckpointRequest carries partial checkpoint edits.
type UpdateCheckpointRequest struct {
	Fields map[string]any `json:"fields"`
}

// UpdateCheckpointResponse reports whether any field was applied.
type UpdateCheckpointResponse struct {
	Changed bool `json:"changed"`
}

// DeleteCheckpointRequest is the (empty) request for deleteCheckpoint.
type DeleteCheckpointRequest struct{}

// StopRunRequest is the (empty) request for stopRun.
type StopRunRequest struct{}

// TestConnectionResponse reports whether a transport session could be
// opened with the configured credentials.
type TestConnectionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
