package table

import (
	"encoding/json"
	"io"
)

// JSONWriter encodes a table as a JSON document.
type JSONWriter struct {
	Indent bool
}

type jsonTable struct {
	Columns []string  `json:"columns"`
	Rows    []jsonRow `json:"rows"`
	Stats   Stats     `json:"stats"`
}

type jsonRow struct {
	Element string            `json:"element"`
	Values  map[string]string `json:"values"`
}

// Write implements Writer.
func (jw JSONWriter) Write(w io.Writer, t *Table) error {
	doc := jsonTable{
		Columns: t.Columns(),
		Rows:    make([]jsonRow, 0, len(t.elements)),
		Stats:   t.Stats(),
	}
	for _, row := range t.Rows() {
		values := make(map[string]string, len(row.Values))
		for j, v := range row.Values {
			values[t.columns[j]] = v
		}
		doc.Rows = append(doc.Rows, jsonRow{Element: row.Element, Values: values})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if jw.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(doc)
}
