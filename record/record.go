// Package record models the ordered tabular input driving a pipeline run:
// one record per row, one artifact and one dispatch per record. Parsing
// and cleaning of the source file happen upstream; this package only
// holds the already-clean rows and resolves them against a job's
// placeholder mapping.
package record

import (
	"fmt"

	"github.com/ekansh09/certflow"
)

// Record is one row of input data.
type Record struct {
	// Index is the record's zero-based position in the input order.
	Index int

	columns []string
	values  []string
}

// Get returns the record's value for the named column.
func (r Record) Get(column string) (string, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return "", false
}

// Values returns the record's cell values in column order.
func (r Record) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

// Fields resolves the placeholder mapping against the record. Mapped
// columns missing from the record resolve to the empty string.
func (r Record) Fields(mapping []certflow.Mapping) map[string]string {
	fields := make(map[string]string, len(mapping))
	for _, m := range mapping {
		v, _ := r.Get(m.Column)
		fields[m.Placeholder] = v
	}
	return fields
}

// Set is an ordered collection of records sharing one column layout.
type Set struct {
	columns []string
	rows    [][]string
}

// NewSet builds a Set from a column header and rows. Every row must have
// exactly one cell per column.
func NewSet(columns []string, rows [][]string) (*Set, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("record: set needs at least one column")
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("record: row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return &Set{columns: columns, rows: rows}, nil
}

// Len returns the number of records.
func (s *Set) Len() int { return len(s.rows) }

// Columns returns the column header in order.
func (s *Set) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Record returns the record at index i.
func (s *Set) Record(i int) Record {
	return Record{Index: i, columns: s.columns, values: s.rows[i]}
}
