package record

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Failure pairs a destination id with the reason its record failed.
type Failure struct {
	DestinationID string `json:"destination_id"`
	Reason        string `json:"reason"`
}

// ExportFailed writes a CSV at path containing every input row whose
// destination id appears in failures, with all original column values
// plus one trailing "error" column. Rows are matched by destination-id
// equality, so a destination shared by several rows exports each of them
// with the same reason.
func ExportFailed(path string, set *Set, destinationField string, failures []Failure) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("record: create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("record: create failed export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append(set.Columns(), "error")); err != nil {
		return fmt.Errorf("record: write export header: %w", err)
	}

	for _, fail := range failures {
		for i := 0; i < set.Len(); i++ {
			rec := set.Record(i)
			dest, ok := rec.Get(destinationField)
			if !ok || dest != fail.DestinationID {
				continue
			}
			if err := w.Write(append(rec.Values(), fail.Reason)); err != nil {
				return fmt.Errorf("record: write export row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("record: flush failed export: %w", err)
	}
	return nil
}
