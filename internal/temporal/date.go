package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const day = 24 * time.Hour

// Date is a calendar timestamp that may be missing. The zero value is missing.
type Date struct {
	Time  time.Time
	Valid bool
}

func Missing() Date { return Date{} }

func Of(t time.Time) Date { return Date{Time: t.UTC(), Valid: true} }

// MustParse is Parse for fixtures; it panics on unparseable input.
func MustParse(s string) Date {
	d := Parse(s)
	if !d.Valid {
		panic("temporal: cannot parse " + strconv.Quote(s))
	}
	return d
}

func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	if d.Time.Equal(d.Time.Truncate(day)) {
		return d.Time.Format(time.DateOnly)
	}
	return d.Time.Format(time.DateTime)
}

func (d Date) Before(other Date) bool {
	return d.Valid && other.Valid && d.Time.Before(other.Time)
}

// DaysBetween returns later-earlier in whole days, floored, and false when
// either end is missing.
func DaysBetween(later, earlier Date) (int, bool) {
	if !later.Valid || !earlier.Valid {
		return 0, false
	}
	diff := later.Time.Sub(earlier.Time)
	days := int(diff / day)
	if diff < 0 && diff%day != 0 {
		days--
	}
	return days, true
}

var layouts = []string{
	time.DateOnly,
	time.DateTime,
	"2006-01-02 15:04",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-1-2",
	"2006/1/2",
	"2006/1/2 15:04:05",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/06",
	"1/2/06 15:04",
	"01-02-06",
	"01-02-2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2-Jan-2006 15:04",
	"2-Jan-2006 15:04:05",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
}

var reSerial = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Excel serial numbers between these bounds are read as dates (1954..2119).
const (
	minSerial = 20000
	maxSerial = 80000
)

// Parse coerces one cell. It never fails: unparseable input yields a missing
// Date.
func Parse(input string) Date {
	s := strings.TrimSpace(input)
	if s == "" {
		return Missing()
	}
	switch strings.ToLower(s) {
	case "nan", "nat", "null", "none", "n/a", "na", "-", "--":
		return Missing()
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Of(t)
		}
	}

	if reSerial.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		if err == nil && v >= minSerial && v < maxSerial {
			if t, err := excelize.ExcelDateToTime(v, false); err == nil {
				return Of(t.Round(time.Second))
			}
		}
	}
	return Missing()
}
