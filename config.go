package certflow

import (
	"fmt"
	"time"
)

// Mode selects which phases a run executes.
type Mode string

const (
	// ModeRenderOnly renders an artifact per record and stops.
	ModeRenderOnly Mode = "render-only"
	// ModeDispatchOnly locates previously rendered artifacts and
	// dispatches them without rendering anything new.
	ModeDispatchOnly Mode = "dispatch-only"
	// ModeBoth renders every artifact and then dispatches the results
	// of that same run.
	ModeBoth Mode = "both"
)

// Valid reports whether m is one of the three supported modes.
func (m Mode) Valid() bool {
	return m == ModeRenderOnly || m == ModeDispatchOnly || m == ModeBoth
}

// Renders reports whether the mode includes the render phase.
func (m Mode) Renders() bool { return m == ModeRenderOnly || m == ModeBoth }

// Dispatches reports whether the mode includes the dispatch phase.
func (m Mode) Dispatches() bool { return m == ModeDispatchOnly || m == ModeBoth }

// Mapping binds one template placeholder to one source column.
// A job's mappings are ordered; the order is the caller's.
type Mapping struct {
	Placeholder string `json:"placeholder"`
	Column      string `json:"column"`
}

// JobConfig is the immutable per-run input. It is constructed once at
// submission and borrowed by the running pipeline for the run's duration;
// nothing mutates it afterwards.
type JobConfig struct {
	// Mode selects the phases to run.
	Mode Mode `json:"mode"`

	// Mapping lists placeholder-to-column bindings in caller order.
	Mapping []Mapping `json:"mapping"`

	// DestinationField names the column holding each record's
	// destination identifier (e.g. the recipient address).
	DestinationField string `json:"destination_field"`

	// Subject, BodyText, and BodyHTML are message templates containing
	// {placeholder} tokens. BodyHTML may be empty.
	Subject  string `json:"subject"`
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`

	// NamePattern is the artifact filename template, also using
	// {placeholder} tokens. The artifact extension is appended when
	// the expanded name lacks one.
	NamePattern string `json:"name_pattern"`

	// OutputDir is where rendered artifacts are written and looked up.
	OutputDir string `json:"output_dir"`

	// FailedExportPath is where the failed-record file is written when a
	// run records failures. Empty means "failed_list.csv" in OutputDir.
	FailedExportPath string `json:"failed_export_path,omitempty"`
}

// Validate checks the submission-time requirements. It returns an error
// wrapping ErrInvalidConfig before any run state is touched.
func (c JobConfig) Validate() error {
	switch {
	case !c.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	case len(c.Mapping) == 0:
		return fmt.Errorf("%w: mapping is required", ErrInvalidConfig)
	case c.DestinationField == "":
		return fmt.Errorf("%w: destination field is required", ErrInvalidConfig)
	case c.Subject == "":
		return fmt.Errorf("%w: subject template is required", ErrInvalidConfig)
	case c.BodyText == "":
		return fmt.Errorf("%w: body template is required", ErrInvalidConfig)
	case c.NamePattern == "":
		return fmt.Errorf("%w: name pattern is required", ErrInvalidConfig)
	case c.OutputDir == "":
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	for _, m := range c.Mapping {
		if m.Placeholder == "" || m.Column == "" {
			return fmt.Errorf("%w: mapping entries need both placeholder and column", ErrInvalidConfig)
		}
	}
	return nil
}

// Config holds the pipeline's tunable policies.
type Config struct {
	// RenderAttempts is the per-record attempt budget for rendering.
	RenderAttempts int

	// RenderDelay is the fixed wait between render attempts.
	RenderDelay time.Duration

	// SendAttempts is the per-message attempt budget for delivery.
	SendAttempts int

	// SendDelay is the fixed wait between delivery attempts.
	SendDelay time.Duration

	// SendInterval is the minimum delay between consecutive outbound
	// messages (rate limiting the transport).
	SendInterval time.Duration

	// MaxProbes bounds how many numbered filename variants the artifact
	// resolver checks before declaring a record's artifact missing.
	MaxProbes int

	// LocateShare is the progress percentage consumed by the locate
	// phase of a dispatch-only run.
	LocateShare int

	// RenderShare is the progress percentage consumed by the render
	// phase when a dispatch phase follows it.
	RenderShare int
}

// DefaultConfig returns the policies the pipeline ships with.
func DefaultConfig() Config {
	return Config{
		RenderAttempts: 3,
		RenderDelay:    2 * time.Second,
		SendAttempts:   3,
		SendDelay:      2 * time.Second,
		SendInterval:   1 * time.Second,
		MaxProbes:      99,
		LocateShare:    10,
		RenderShare:    50,
	}
}
