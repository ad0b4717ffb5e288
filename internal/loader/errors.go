package loader

import "fmt"

// FormatError reports an input stream that could not be read as a cell grid.
// It is fatal for the table it names.
type FormatError struct {
	Table string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: not a tabular export: %v", e.Table, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
