// Package schema describes registered tables from the CREATE statements kept
// in the schema registry (sql_script_store).
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

var (
	notNullRe    = regexp.MustCompile(`(?i)\bNOT\s+NULL\b`)
	primaryKeyRe = regexp.MustCompile(`(?i)\bPRIMARY\s+KEY\b`)
	constraintRe = regexp.MustCompile(`(?i)^(PRIMARY\s+KEY|CONSTRAINT\b|UNIQUE\s*\(|FOREIGN\s+KEY|CHECK\b|EXCLUDE\b)`)
)

// sqlTypes maps the leading word of a SQL type to its logical type.
var sqlTypes = map[string]core.LogicalType{
	"INT":       core.TypeInt,
	"INT2":      core.TypeInt,
	"INT4":      core.TypeInt,
	"INT8":      core.TypeInt,
	"INTEGER":   core.TypeInt,
	"BIGINT":    core.TypeInt,
	"SMALLINT":  core.TypeInt,
	"SERIAL":    core.TypeInt,
	"BIGSERIAL": core.TypeInt,

	"REAL":    core.TypeFloat,
	"FLOAT":   core.TypeFloat,
	"FLOAT4":  core.TypeFloat,
	"FLOAT8":  core.TypeFloat,
	"DOUBLE":  core.TypeFloat,
	"NUMERIC": core.TypeFloat,
	"DECIMAL": core.TypeFloat,

	"BOOL":    core.TypeBool,
	"BOOLEAN": core.TypeBool,

	"DATE":        core.TypeTimestamp,
	"TIMESTAMP":   core.TypeTimestamp,
	"TIMESTAMPTZ": core.TypeTimestamp,
}

// Parse extracts the column descriptors of a CREATE TABLE statement.
// Columns named in reportable (case-insensitive) are marked reportable.
func Parse(table, statement string, reportable []string) (core.TableSchema, error) {
	body, err := columnBody(statement)
	if err != nil {
		return core.TableSchema{}, fmt.Errorf("parse %s: %w", table, err)
	}

	report := make(map[string]bool, len(reportable))
	for _, r := range reportable {
		report[strings.ToLower(strings.TrimSpace(r))] = true
	}

	s := core.TableSchema{Table: table}
	for _, def := range splitTopLevel(body) {
		def = strings.TrimSpace(def)
		if def == "" || constraintRe.MatchString(def) {
			continue
		}

		name, rest := splitName(def)
		if name == "" {
			continue
		}

		pk := primaryKeyRe.MatchString(rest)
		s.Columns = append(s.Columns, core.ColumnDescriptor{
			Name:       name,
			Type:       logicalType(rest),
			Nullable:   !pk && !notNullRe.MatchString(rest),
			PrimaryKey: pk,
			Reportable: report[strings.ToLower(name)],
		})
	}

	if len(s.Columns) == 0 {
		return core.TableSchema{}, fmt.Errorf("parse %s: no columns found", table)
	}
	return s, nil
}

// columnBody returns the text between the first "(" and its matching ")".
func columnBody(statement string) (string, error) {
	start := strings.IndexByte(statement, '(')
	if start < 0 {
		return "", fmt.Errorf("no column list")
	}

	depth := 0
	for i := start; i < len(statement); i++ {
		switch statement[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return statement[start+1 : i], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced parentheses")
}

// splitTopLevel splits on commas that are not nested in parentheses or quotes.
func splitTopLevel(body string) []string {
	var parts []string
	depth := 0
	inQuote := false
	last := 0

	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if depth == 0 && !inQuote {
				parts = append(parts, body[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, body[last:])
}

// splitName separates the (possibly quoted) column name from the rest of
// the definition.
func splitName(def string) (name, rest string) {
	if strings.HasPrefix(def, `"`) {
		end := strings.IndexByte(def[1:], '"')
		if end < 0 {
			return "", ""
		}
		return def[1 : end+1], strings.TrimSpace(def[end+2:])
	}

	fields := strings.Fields(def)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.TrimSpace(strings.TrimPrefix(def, fields[0]))
}

func logicalType(rest string) core.LogicalType {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return core.TypeText
	}

	word := strings.ToUpper(fields[0])
	if i := strings.IndexByte(word, '('); i >= 0 {
		word = word[:i]
	}
	if t, ok := sqlTypes[word]; ok {
		return t
	}
	return core.TypeText
}
