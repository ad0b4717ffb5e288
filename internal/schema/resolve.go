package schema

import (
	"regexp"
	"strings"
)

var reNonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Normalize lower-cases a column name, collapses every run of non-alphanumeric
// characters into a single space and trims. Normalize(Normalize(x)) == Normalize(x).
func Normalize(input string) string {
	s := strings.ToLower(input)
	s = reNonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Resolution is the outcome of looking a canonical field up in one table.
// The zero value is unresolved.
type Resolution struct {
	column string
	ok     bool
}

func Resolved(column string) Resolution { return Resolution{column: column, ok: true} }

func Unresolved() Resolution { return Resolution{} }

// Name returns the concrete column and whether the field was resolved.
func (r Resolution) Name() (string, bool) { return r.column, r.ok }

func (r Resolution) IsResolved() bool { return r.ok }

func (r Resolution) String() string {
	if !r.ok {
		return "<unresolved>"
	}
	return r.column
}

// Resolve finds the column for an ordered candidate list. An exact match on any
// candidate outranks a substring match on any candidate; within a pass the
// earlier candidate wins, then the left-most column.
func Resolve(columns []string, candidates []string) Resolution {
	normalized := make([]string, len(columns))
	for i, c := range columns {
		normalized[i] = Normalize(c)
	}

	for _, cand := range candidates {
		nc := Normalize(cand)
		if nc == "" {
			continue
		}
		for i, col := range normalized {
			if col == nc {
				return Resolved(columns[i])
			}
		}
	}
	for _, cand := range candidates {
		nc := Normalize(cand)
		if nc == "" {
			continue
		}
		for i, col := range normalized {
			if strings.Contains(col, nc) {
				return Resolved(columns[i])
			}
		}
	}
	return Unresolved()
}

// ResolveAll returns, in column order, every column whose normalized name starts
// with prefix and ends with suffix.
func ResolveAll(columns []string, prefix, suffix string) []string {
	np, ns := Normalize(prefix), Normalize(suffix)
	var out []string
	for _, c := range columns {
		n := Normalize(c)
		if n == "" {
			continue
		}
		if strings.HasPrefix(n, np) && strings.HasSuffix(n, ns) {
			out = append(out, c)
		}
	}
	return out
}
