package core

// convert.go turns raw delimited cells into typed values.
//
// Inbound field files come from many tools, so the parsers accept:
//   - day-first dates in several separators, plus ISO dates
//   - thousands separators and surrounding whitespace in numbers
//   - the usual boolean spellings (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value") and stray quotes
//
// The ToPg* functions return pgtype values with Valid=false for empty or
// unparseable input so the store writes NULL.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex matches integers, decimals, and scientific notation after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// isoLayouts are unambiguous and tried before the day-first ones.
var isoLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// dayFirstLayouts interpret "03/04/2020" as 3 April 2020.
var dayFirstLayouts = []string{
	"02/01/2006", "2/1/2006",
	"02-01-2006", "2-1-2006",
	"02.01.2006", "2.1.2006",
	"02/01/2006 15:04", "02/01/2006 15:04:05",
	"2 Jan 2006", "02 Jan 2006", "2 January 2006",
	"02/01/06", "2/1/06",
}

// ParseDayFirst parses a date, preferring day-first interpretation for
// ambiguous forms. The second result is false for empty or unparseable input,
// which callers treat as the null date.
func ParseDayFirst(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseFloat parses a decimal number, ignoring thousands separators.
func ParseFloat(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseInt parses an integer. Values like "12.0" are accepted.
func ParseInt(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, ok := ParseFloat(s)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// Coerce converts a cleaned cell to the Go value for a logical type.
// Empty cells yield (nil, true). Timestamps never fail: an unparseable date
// yields (nil, true), the null-date sentinel.
func Coerce(s string, t LogicalType) (any, bool) {
	if s == "" {
		return nil, true
	}
	switch t {
	case TypeInt:
		i, ok := ParseInt(s)
		if !ok {
			return nil, false
		}
		return i, true
	case TypeFloat:
		f, ok := ParseFloat(s)
		if !ok {
			return nil, false
		}
		return f, true
	case TypeBool:
		b, ok := ParseBool(s)
		if !ok {
			return nil, false
		}
		return b, true
	case TypeTimestamp:
		d, ok := ParseDayFirst(s)
		if !ok {
			return nil, true
		}
		return d, true
	default:
		return s, true
	}
}

// ToPgText converts a string to pgtype.Text.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgFloat8 converts a string to pgtype.Float8.
func ToPgFloat8(s string) pgtype.Float8 {
	f, ok := ParseFloat(s)
	if !ok {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: f, Valid: true}
}

// ToPgInt8 converts a string to pgtype.Int8.
func ToPgInt8(s string) pgtype.Int8 {
	i, ok := ParseInt(s)
	if !ok {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: i, Valid: true}
}

// ToPgBool converts a string to pgtype.Bool.
func ToPgBool(s string) pgtype.Bool {
	b, ok := ParseBool(s)
	if !ok {
		return pgtype.Bool{}
	}
	return pgtype.Bool{Bool: b, Valid: true}
}

// ToPgTimestamp converts a day-first date string to pgtype.Timestamp.
func ToPgTimestamp(s string) pgtype.Timestamp {
	t, ok := ParseDayFirst(s)
	if !ok {
		return pgtype.Timestamp{}
	}
	return pgtype.Timestamp{Time: t, Valid: true}
}

// ToPgValue converts a cell to the pgtype value matching a logical type.
// Used when writing zone rows through COPY.
func ToPgValue(s string, t LogicalType) any {
	switch t {
	case TypeInt:
		return ToPgInt8(s)
	case TypeFloat:
		return ToPgFloat8(s)
	case TypeBool:
		return ToPgBool(s)
	case TypeTimestamp:
		return ToPgTimestamp(s)
	default:
		return ToPgText(s)
	}
}

// CleanCell removes common CSV artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix, and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	return strings.TrimSpace(strings.Trim(s, `"'`))
}
