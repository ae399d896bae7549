package validation

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

// FieldRules names the columns the field rules read.
type FieldRules struct {
	Entity string
	Type   string
	Date   string
	X      string
	Y      string
	CRS    string

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// DefaultFieldRules returns the column names of the field master-data layout.
func DefaultFieldRules() FieldRules {
	return FieldRules{
		Entity: "FieldName",
		Type:   "FieldType",
		Date:   "DiscoveryDate",
		X:      "X",
		Y:      "Y",
		CRS:    "CRS",
		Now:    time.Now,
	}
}

// BronzeRules returns the bronze rule set in evaluation order.
func BronzeRules(fr FieldRules) []Rule {
	return []Rule{
		Conformance,
		FutureDate(fr),
		Consistency(fr),
		PolygonCompleteness(fr),
		PolygonClosure(fr),
	}
}

// Conformance checks every reportable cell against its column's type and
// nullability.
func Conformance(batch core.Batch, schema core.TableSchema) []core.Finding {
	cols := schema.Reportable()

	var findings []core.Finding
	for i, row := range batch.Rows {
		for _, col := range cols {
			cerr := core.ValidateCell(row[col.Name], col)
			if cerr == nil {
				continue
			}
			findings = append(findings, core.Finding{
				RowIndex: i,
				Field:    col.Name,
				Category: core.CategoryRow,
				Code:     cerr.Code,
				Message:  cerr.Message,
			})
		}
	}
	return findings
}

// FutureDate flags rows whose date parses to a day after today.
func FutureDate(fr FieldRules) Rule {
	return func(batch core.Batch, _ core.TableSchema) []core.Finding {
		now := fr.now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

		var findings []core.Finding
		for i, row := range batch.Rows {
			d, ok := core.ParseDayFirst(row[fr.Date])
			if !ok || !d.After(today) {
				continue
			}
			findings = append(findings, core.Finding{
				RowIndex: i,
				Field:    fr.Date,
				Category: core.CategoryRow,
				Code:     core.CodeFutureDiscoveryDate,
				Message:  fmt.Sprintf("%s %s is after %s", fr.Date, d.Format("2006-01-02"), today.Format("2006-01-02")),
			})
		}
		return findings
	}
}

// Consistency flags every row of an entity whose type or date differs
// between rows. Dates are compared by day; unparseable dates count as null.
func Consistency(fr FieldRules) Rule {
	return func(batch core.Batch, _ core.TableSchema) []core.Finding {
		var findings []core.Finding
		for _, g := range groupRows(batch, fr.Entity) {
			types := make(map[string]bool)
			dates := make(map[string]bool)
			for _, i := range g.rows {
				row := batch.Rows[i]
				if v := row[fr.Type]; v != "" {
					types[v] = true
				}
				if d, ok := core.ParseDayFirst(row[fr.Date]); ok {
					dates[d.Format("2006-01-02")] = true
				}
			}
			if len(types) <= 1 && len(dates) <= 1 {
				continue
			}

			field := fr.Type
			if len(types) <= 1 {
				field = fr.Date
			}
			findings = append(findings, flagGroup(g, field, core.CodeInconsistentField,
				fmt.Sprintf("%d distinct %s and %d distinct %s values", len(types), fr.Type, len(dates), fr.Date))...)
		}
		return findings
	}
}

// PolygonCompleteness flags every row of an entity where any row has only
// some of X, Y and CRS.
func PolygonCompleteness(fr FieldRules) Rule {
	return func(batch core.Batch, _ core.TableSchema) []core.Finding {
		var findings []core.Finding
		for _, g := range groupRows(batch, fr.Entity) {
			for _, i := range g.rows {
				row := batch.Rows[i]
				x, y, crs := row[fr.X] != "", row[fr.Y] != "", row[fr.CRS] != ""
				if x == y && y == crs {
					continue
				}
				findings = append(findings, flagGroup(g, fr.CRS, core.CodePolygonIncomplete,
					fmt.Sprintf("row %d has an incomplete %s/%s/%s triple", i, fr.X, fr.Y, fr.CRS))...)
				break
			}
		}
		return findings
	}
}

// PolygonClosure flags every row of an entity whose first and last
// coordinate rows differ. Rows without both coordinates are ignored.
func PolygonClosure(fr FieldRules) Rule {
	return func(batch core.Batch, _ core.TableSchema) []core.Finding {
		var findings []core.Finding
		for _, g := range groupRows(batch, fr.Entity) {
			var coords []int
			for _, i := range g.rows {
				row := batch.Rows[i]
				if row[fr.X] != "" && row[fr.Y] != "" {
					coords = append(coords, i)
				}
			}
			if len(coords) < 2 {
				continue
			}

			first, last := batch.Rows[coords[0]], batch.Rows[coords[len(coords)-1]]
			if sameCoordinate(first[fr.X], last[fr.X]) && sameCoordinate(first[fr.Y], last[fr.Y]) {
				continue
			}
			findings = append(findings, flagGroup(g, fr.X, core.CodePolygonNotClosed,
				fmt.Sprintf("first point (%s, %s) differs from last point (%s, %s)",
					first[fr.X], first[fr.Y], last[fr.X], last[fr.Y]))...)
		}
		return findings
	}
}

func (fr FieldRules) now() time.Time {
	if fr.Now == nil {
		return time.Now()
	}
	return fr.Now()
}

type group struct {
	key  string
	rows []int
}

// groupRows groups row indexes by entity in first-encountered order.
// Rows with an empty entity are not grouped.
func groupRows(batch core.Batch, entity string) []group {
	var groups []group
	index := make(map[string]int)

	for i, row := range batch.Rows {
		key := row[entity]
		if key == "" {
			continue
		}
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, group{key: key})
		}
		groups[pos].rows = append(groups[pos].rows, i)
	}
	return groups
}

func flagGroup(g group, field, code, msg string) []core.Finding {
	findings := make([]core.Finding, len(g.rows))
	for n, i := range g.rows {
		findings[n] = core.Finding{
			RowIndex: i,
			GroupKey: g.key,
			Field:    field,
			Category: core.CategoryGroup,
			Code:     code,
			Message:  msg,
		}
	}
	return findings
}

// sameCoordinate compares numerically when both values parse.
func sameCoordinate(a, b string) bool {
	fa, okA := core.ParseFloat(a)
	fb, okB := core.ParseFloat(b)
	if okA && okB {
		return fa == fb
	}
	return a == b
}
