package certflow_test

import (
	"errors"
	"testing"

	"github.com/ekansh09/certflow"
)

func validConfig() certflow.JobConfig {
	return certflow.JobConfig{
		Mode:             certflow.ModeBoth,
		Mapping:          []certflow.Mapping{{Placeholder: "name", Column: "Name"}},
		DestinationField: "Email",
		Subject:          "Certificate for {name}",
		BodyText:         "Dear {name}, attached.",
		NamePattern:      "{name}",
		OutputDir:        "/tmp/artifacts",
	}
}

func TestJobConfig_Validate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestJobConfig_Validate_Required(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*certflow.JobConfig)
	}{
		{"unknown mode", func(c *certflow.JobConfig) { c.Mode = "render-and-pray" }},
		{"empty mapping", func(c *certflow.JobConfig) { c.Mapping = nil }},
		{"no destination field", func(c *certflow.JobConfig) { c.DestinationField = "" }},
		{"no subject", func(c *certflow.JobConfig) { c.Subject = "" }},
		{"no body", func(c *certflow.JobConfig) { c.BodyText = "" }},
		{"no name pattern", func(c *certflow.JobConfig) { c.NamePattern = "" }},
		{"no output dir", func(c *certflow.JobConfig) { c.OutputDir = "" }},
		{"half mapping entry", func(c *certflow.JobConfig) {
			c.Mapping = []certflow.Mapping{{Placeholder: "name"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, certflow.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestMode_PhaseSelectors(t *testing.T) {
	tests := []struct {
		mode       certflow.Mode
		renders    bool
		dispatches bool
	}{
		{certflow.ModeRenderOnly, true, false},
		{certflow.ModeDispatchOnly, false, true},
		{certflow.ModeBoth, true, true},
	}
	for _, tt := range tests {
		if got := tt.mode.Renders(); got != tt.renders {
			t.Errorf("%s.Renders() = %v, want %v", tt.mode, got, tt.renders)
		}
		if got := tt.mode.Dispatches(); got != tt.dispatches {
			t.Errorf("%s.Dispatches() = %v, want %v", tt.mode, got, tt.dispatches)
		}
	}
}
