package loader

import (
	"fmt"
	"strings"

	"trialsnap/internal/util"
)

// DefaultMarkers are the header tokens that identify the column-name row of a
// trial-operations export.
var DefaultMarkers = []string{"site", "subject", "assessment", "study procedure", "subject number"}

type Options struct {
	// Markers: a row qualifies as header when any of its cells equals one of these.
	Markers []string
	// RequireAll narrows detection: every marker listed here must also be present.
	RequireAll []string
}

func DefaultOptions() Options {
	return Options{Markers: append([]string(nil), DefaultMarkers...)}
}

// Table is a header-qualified grid. Rows are aligned with Columns; no type
// coercion has been applied.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Value returns the cell at (row, column), or "" when the column is unknown.
func (t *Table) Value(row int, column string) string {
	idx := t.Index(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][idx]
}

func (t *Table) Column(column string) []string {
	idx := t.Index(column)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

func (t *Table) Len() int { return len(t.Rows) }

// Load reads one export and returns it as a header-qualified table.
func Load(name string, blob []byte, opts Options) (*Table, error) {
	grid, err := ReadGrid(blob)
	if err != nil {
		return nil, &FormatError{Table: name, Err: err}
	}
	return FromGrid(name, grid, opts), nil
}

// DetectHeader returns the index of the first row that carries the configured
// markers, or 0 when none does.
func DetectHeader(grid [][]string, opts Options) int {
	markers := lowerSet(opts.Markers)
	required := lowerSet(opts.RequireAll)

	for i, row := range grid {
		cells := lowerSet(row)
		hit := false
		for m := range markers {
			if _, ok := cells[m]; ok {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		complete := true
		for m := range required {
			if _, ok := cells[m]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return i
		}
	}
	return 0
}

// FromGrid re-reads the grid with the detected header row as column names,
// then drops columns without any data and rows without any data.
func FromGrid(name string, grid [][]string, opts Options) *Table {
	t := &Table{Name: name}
	if len(grid) == 0 {
		return t
	}

	hdr := DetectHeader(grid, opts)
	header := grid[hdr]
	data := grid[hdr+1:]

	keep := make([]int, 0, len(header))
	for c := range header {
		for _, row := range data {
			if c < len(row) && !util.IsBlank(row[c]) {
				keep = append(keep, c)
				break
			}
		}
	}

	t.Columns = columnNames(header, keep)
	for _, row := range data {
		out := make([]string, len(keep))
		empty := true
		for i, c := range keep {
			if c < len(row) {
				out[i] = row[c]
			}
			if !util.IsBlank(out[i]) {
				empty = false
			}
		}
		if !empty {
			t.Rows = append(t.Rows, out)
		}
	}
	return t
}

func columnNames(header []string, keep []int) []string {
	seen := map[string]int{}
	names := make([]string, 0, len(keep))
	for _, c := range keep {
		name := util.NormalizeSpaces(header[c])
		if name == "" {
			name = fmt.Sprintf("column_%d", c+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		names = append(names, name)
	}
	return names
}

func lowerSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(util.NormalizeSpaces(v))
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
