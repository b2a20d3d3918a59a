// Package table reshapes the flat response list into a two-dimensional
// result table and writes it out.
package table

import (
	"github.com/Sternrassler/promptgrid/pkg/client"
	"github.com/Sternrassler/promptgrid/pkg/prompts"
)

// NoAnswer fills cells for which no response exists.
const NoAnswer = "no answer"

// ElementColumn is the header of the identifying column.
const ElementColumn = "element"

// Row is one DimensionA element with its values in column order.
type Row struct {
	Element string
	Values  []string
}

// Table maps DimensionA element -> DimensionB element -> response.
// It is immutable after Assemble.
type Table struct {
	elements []string
	columns  []string
	cells    [][]string

	rowIndex map[string]int
	colIndex map[string]int
}

// Assemble walks dims in generation order and consumes responses
// sequentially. Missing responses become NoAnswer.
func Assemble(dims prompts.Dimensions, responses []string) *Table {
	t := &Table{
		elements: append([]string(nil), dims.A...),
		columns:  append([]string(nil), dims.B...),
		cells:    make([][]string, len(dims.A)),
		rowIndex: make(map[string]int, len(dims.A)),
		colIndex: make(map[string]int, len(dims.B)),
	}

	for j, b := range t.columns {
		t.colIndex[b] = j
	}

	next := 0
	for i, a := range t.elements {
		t.rowIndex[a] = i
		row := make([]string, len(t.columns))
		for j := range row {
			if next < len(responses) {
				row[j] = responses[next]
			} else {
				row[j] = NoAnswer
			}
			next++
		}
		t.cells[i] = row
	}

	return t
}

// Get returns the cell for (a, b).
func (t *Table) Get(a, b string) (string, bool) {
	i, ok := t.rowIndex[a]
	if !ok {
		return "", false
	}
	j, ok := t.colIndex[b]
	if !ok {
		return "", false
	}
	return t.cells[i][j], true
}

// Elements returns the DimensionA labels in row order.
func (t *Table) Elements() []string {
	return append([]string(nil), t.elements...)
}

// Columns returns the DimensionB labels in column order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Header returns the identifying column followed by the DimensionB labels.
func (t *Table) Header() []string {
	return append([]string{ElementColumn}, t.columns...)
}

// Rows returns copies of all rows.
func (t *Table) Rows() []Row {
	rows := make([]Row, len(t.elements))
	for i, a := range t.elements {
		rows[i] = Row{Element: a, Values: append([]string(nil), t.cells[i]...)}
	}
	return rows
}

// Records returns the rows as flat records matching Header.
func (t *Table) Records() [][]string {
	records := make([][]string, len(t.elements))
	for i, a := range t.elements {
		records[i] = append([]string{a}, t.cells[i]...)
	}
	return records
}

// Stats counts cells by outcome.
type Stats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Missing    int `json:"missing"`
}

// Stats classifies every cell. Failure placeholders are recognised by
// client.IsFailure.
func (t *Table) Stats() Stats {
	var s Stats
	for _, row := range t.cells {
		for _, v := range row {
			s.Total++
			switch {
			case v == NoAnswer:
				s.Missing++
			case client.IsFailure(v):
				s.Failed++
			default:
				s.Successful++
			}
		}
	}
	return s
}
