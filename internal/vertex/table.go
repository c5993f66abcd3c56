package vertex

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is a CSV table with a header row, as exported from an attribute
// table by the geoprocessor.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable parses CSV with a header row.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading vertex table: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reading vertex table: missing header row")
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// Column returns the index of the named column, ignoring case, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Sequence fills positionCol with sequence positions computed from
// segmentCol. The position column is appended when absent. On error the
// table is left unchanged.
func (t *Table) Sequence(segmentCol, positionCol string) error {
	si := t.Column(segmentCol)
	if si < 0 {
		return fmt.Errorf("vertex table has no %q column", segmentCol)
	}
	records := make([]Vertex, len(t.Rows))
	for i, row := range t.Rows {
		if si >= len(row) {
			return fmt.Errorf("row %d: missing %s value", i+2, segmentCol)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[si]), 10, 64)
		if err != nil {
			return fmt.Errorf("row %d: invalid %s %q: %w", i+2, segmentCol, row[si], err)
		}
		records[i].SegmentID = id
	}
	AssignSequencePositions(records)

	pi := t.Column(positionCol)
	if pi < 0 {
		t.Header = append(t.Header, positionCol)
		pi = len(t.Header) - 1
	}
	for i := range t.Rows {
		for len(t.Rows[i]) <= pi {
			t.Rows[i] = append(t.Rows[i], "")
		}
		t.Rows[i][pi] = strconv.Itoa(records[i].SequencePosition)
	}
	return nil
}

// Write emits the table as CSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing vertex table: %w", err)
	}
	return nil
}
