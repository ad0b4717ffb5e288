package temporal

import (
	"trialsnap/internal/loader"
	"trialsnap/internal/util"
)

// Columns holds coerced date columns of one table, aligned with its rows.
type Columns map[string][]Date

// At returns the date in column at row; missing when the column was not
// coerced or the row is out of range.
func (c Columns) At(column string, row int) Date {
	values, ok := c[column]
	if !ok || row < 0 || row >= len(values) {
		return Missing()
	}
	return values[row]
}

// Coercion is the result of normalizing one table's date columns.
type Coercion struct {
	Table   string
	Columns Columns
	// Failed counts non-blank cells that could not be parsed, per column.
	Failed map[string]int
}

func (c Coercion) FailedTotal() int {
	total := 0
	for _, n := range c.Failed {
		total += n
	}
	return total
}

// Coerce parses every cell of the listed columns. Columns absent from the
// table are skipped; bad cells become missing dates and are only counted.
func Coerce(table *loader.Table, columns []string) Coercion {
	out := Coercion{Table: table.Name, Columns: Columns{}, Failed: map[string]int{}}
	for _, col := range columns {
		raw := table.Column(col)
		if raw == nil {
			continue
		}
		values := make([]Date, len(raw))
		for i, cell := range raw {
			values[i] = Parse(cell)
			if !values[i].Valid && !util.IsBlank(cell) {
				out.Failed[col]++
			}
		}
		out.Columns[col] = values
	}
	return out
}
