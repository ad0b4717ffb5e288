package schema

import (
	"fmt"
	"strings"
)

// TableMissing pairs a source table with its unresolved required fields.
type TableMissing struct {
	Table  string   `json:"table"`
	Fields []string `json:"fields"`
}

// SchemaError carries every unresolved required field of every table.
type SchemaError struct {
	Missing []TableMissing `json:"missing"`
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Table, strings.Join(m.Fields, ", ")))
	}
	return "unresolved required columns: " + strings.Join(parts, "; ")
}

// Report returns one entry per mapping, in the order given, including tables
// whose field list is empty.
func Report(mappings ...Mapping) []TableMissing {
	out := make([]TableMissing, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, TableMissing{Table: m.Table, Fields: m.Unresolved()})
	}
	return out
}

// Validate checks all mappings together and fails once, with the full list.
func Validate(mappings ...Mapping) error {
	var missing []TableMissing
	for _, entry := range Report(mappings...) {
		if len(entry.Fields) > 0 {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &SchemaError{Missing: missing}
}
