// Package render turns a template plus one record's mapped fields into an
// artifact file on disk. Rendering is split into two steps so the pipeline
// can retry producing the in-memory document independently of writing the
// converted output: Render fills the template, Convert materializes the
// result at a target path.
package render

import (
	"context"
	"fmt"
	"os"

	"github.com/ekansh09/certflow"
)

// Document is a filled template awaiting conversion to its final format.
type Document struct {
	// Content is the template body with every mapped placeholder expanded.
	Content []byte
}

// Renderer produces one artifact per record.
type Renderer interface {
	// Render expands the renderer's template against fields.
	Render(ctx context.Context, fields map[string]string) (*Document, error)

	// Convert writes doc to path in the renderer's output format.
	Convert(ctx context.Context, doc *Document, path string) error
}

// TemplateRenderer renders plain-text templates using the {placeholder}
// expansion rules shared with subject and body personalization.
type TemplateRenderer struct {
	template []byte
}

var _ Renderer = (*TemplateRenderer)(nil)

// NewTemplateRenderer loads the template at path.
func NewTemplateRenderer(path string) (*TemplateRenderer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return &TemplateRenderer{template: raw}, nil
}

// Render expands the template against fields. Placeholders with no mapped
// field are left literal so a misconfigured mapping is visible in the
// output rather than silently blanked.
func (r *TemplateRenderer) Render(ctx context.Context, fields map[string]string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Document{Content: []byte(certflow.Expand(string(r.template), fields))}, nil
}

// Convert writes the filled document to path.
func (r *TemplateRenderer) Convert(ctx context.Context, doc *Document, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
