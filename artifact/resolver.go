// Package artifact names rendered output files and locates them again on
// later runs. File names are derived from a pattern expanded against a
// record's mapped fields; collisions within a run are disambiguated with a
// numeric suffix, and the resolver reproduces that disambiguation when a
// dispatch-only run has to find files it did not render itself.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ekansh09/certflow"
)

// Ext is the extension given to every rendered artifact.
const Ext = ".pdf"

var unsafeRe = regexp.MustCompile(`[<>:"/\\|?*]`)

// Sanitize strips characters that are unsafe in file names and trims
// trailing dots and spaces. An empty result falls back to "artifact".
func Sanitize(name string) string {
	cleaned := unsafeRe.ReplaceAllString(name, "")
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return "artifact"
	}
	return cleaned
}

// BaseName expands pattern against fields and sanitizes the result into a
// file name. The artifact extension is appended when the expanded name
// lacks it.
func BaseName(pattern string, fields map[string]string) string {
	name := Sanitize(certflow.Expand(pattern, fields))
	if !strings.EqualFold(filepath.Ext(name), Ext) {
		name += Ext
	}
	return name
}

// Resolver maps records to artifact paths within a single output
// directory. It tracks which paths the current run has already claimed so
// that two records expanding to the same base name receive distinct files,
// in a deterministic order.
//
// Resolver is not safe for concurrent use; the pipeline drives it from a
// single goroutine.
type Resolver struct {
	dir      string
	maxProbe int
	claimed  map[string]bool
}

// NewResolver returns a resolver rooted at dir. maxProbes bounds how many
// numbered variants Resolve will try before giving up; values below 1 fall
// back to the default.
func NewResolver(dir string, maxProbes int) *Resolver {
	if maxProbes < 1 {
		maxProbes = certflow.DefaultConfig().MaxProbes
	}
	return &Resolver{
		dir:      dir,
		maxProbe: maxProbes,
		claimed:  map[string]bool{},
	}
}

// Allocate picks the path a new artifact should be written to: the base
// name if it is free, otherwise the first numbered variant that neither
// exists on disk nor has been claimed this run. The returned path is
// recorded as claimed.
func (r *Resolver) Allocate(base string) string {
	for n := 0; ; n++ {
		path := filepath.Join(r.dir, variant(base, n))
		if r.claimed[path] {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		r.claimed[path] = true
		return path
	}
}

// Resolve finds an existing artifact for base, reproducing Allocate's
// claim order: the first unclaimed variant that exists on disk is claimed
// and returned. When no variant within the probe budget exists, Resolve
// reports certflow.ErrArtifactNotFound.
func (r *Resolver) Resolve(base string) (string, error) {
	for n := 0; n <= r.maxProbe; n++ {
		path := filepath.Join(r.dir, variant(base, n))
		if r.claimed[path] {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		r.claimed[path] = true
		return path, nil
	}
	return "", fmt.Errorf("%w: %s under %s", certflow.ErrArtifactNotFound, base, r.dir)
}

// Claim marks path as taken without probing the filesystem. The pipeline
// uses it to seed the resolver from a checkpoint manifest so that manifest
// entries and freshly resolved records never collide.
func (r *Resolver) Claim(path string) {
	r.claimed[path] = true
}

func variant(base string, n int) string {
	if n == 0 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}
