package table

import (
	"encoding/csv"
	"io"
)

// CSVWriter encodes a table as CSV with a header row.
type CSVWriter struct{}

// Write implements Writer.
func (CSVWriter) Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return err
	}
	return cw.Error()
}
