// Package transform builds silver records from the accepted bronze rows of a
// file, one record per entity, enriched with reference data.
package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/logging"
	"github.com/JonMunkholm/fieldpipe/internal/reference"
)

// BronzeReader reads the latest bronze run of a file.
type BronzeReader interface {
	BronzeResults(ctx context.Context, table string, columns []string, fileID int64) ([]core.BronzeResult, error)
}

// Lookup is the reference resolution the transform needs.
type Lookup interface {
	ResolveCRS(ctx context.Context, value string) (*reference.CRSReference, *core.Finding)
	ResolveParent(ctx context.Context, name string) (string, *core.Finding)
	FieldExists(ctx context.Context, name string) (bool, *core.Finding)
	Convert(ctx context.Context, ref *reference.CRSReference, points []reference.Point) ([]reference.Point, *core.Finding)
}

// Columns names the bronze inputs and silver outputs of the transform.
type Columns struct {
	Entity     string
	X          string
	Y          string
	CRS        string
	Parent     string
	ParentID   string
	AsIngested string
	Wgs84      string
}

// DefaultColumns returns the column names of the field layout.
func DefaultColumns() Columns {
	return Columns{
		Entity:     "FieldName",
		X:          "X",
		Y:          "Y",
		CRS:        "CRS",
		Parent:     "ParentFieldName",
		ParentID:   "ParentFieldOSDUId",
		AsIngested: "AsIngestedCoordinates",
		Wgs84:      "Wgs84Coordinates",
	}
}

// Config describes the tables a Transformer moves data between.
type Config struct {
	BronzeTable   string
	BronzeColumns []string
	Silver        core.TableSchema
	Columns       Columns

	// IgnoreWarnings lets WARNING rows through; ERROR rows never pass.
	IgnoreWarnings bool
}

// Transformer turns bronze rows into silver records.
type Transformer struct {
	bronze BronzeReader
	lookup Lookup
	cfg    Config
}

// New returns a Transformer. lookup should be fresh for every run so its
// memo does not outlive the file.
func New(bronze BronzeReader, lookup Lookup, cfg Config) *Transformer {
	return &Transformer{bronze: bronze, lookup: lookup, cfg: cfg}
}

// Transform builds the silver records and findings of a file. The error is
// non-nil only when the bronze rows cannot be read.
func (t *Transformer) Transform(ctx context.Context, fileID int64) ([]core.Record, []core.Finding, error) {
	rows, err := t.bronze.BronzeResults(ctx, t.cfg.BronzeTable, t.cfg.BronzeColumns, fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("read bronze rows: %w", err)
	}

	accepted := t.filter(rows)
	if len(accepted) == 0 {
		logging.FromContext(ctx).Warn("no accepted bronze rows", "file_id", fileID, "bronze_rows", len(rows))
		return nil, nil, nil
	}

	var records []core.Record
	var findings []core.Finding
	for idx, g := range groupByEntity(accepted, t.cfg.Columns.Entity) {
		rec, groupFindings := t.transformGroup(ctx, g)
		for _, f := range groupFindings {
			f.RowIndex = idx
			f.GroupKey = g.key
			findings = append(findings, f)
		}
		records = append(records, rec)
	}
	return records, findings, nil
}

func (t *Transformer) filter(rows []core.BronzeResult) []core.BronzeResult {
	var out []core.BronzeResult
	for _, r := range rows {
		switch r.Severity {
		case core.SeverityError:
			continue
		case core.SeverityWarning:
			if !t.cfg.IgnoreWarnings {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func (t *Transformer) transformGroup(ctx context.Context, g entityGroup) (core.Record, []core.Finding) {
	c := t.cfg.Columns
	var findings []core.Finding
	add := func(f *core.Finding) {
		if f != nil {
			findings = append(findings, *f)
		}
	}

	exists, f := t.lookup.FieldExists(ctx, g.key)
	add(f)
	if exists {
		findings = append(findings, core.Finding{
			Field:    c.Entity,
			Category: core.CategoryData,
			Code:     core.CodeFieldAlreadyExists,
			Message:  fmt.Sprintf("field %q already exists in the catalog", g.key),
		})
	}

	ring := g.ring(c.X, c.Y)
	crsRef, f := t.lookup.ResolveCRS(ctx, g.first(c.CRS))
	add(f)

	var converted []reference.Point
	if crsRef != nil && len(ring) > 0 {
		converted, f = t.lookup.Convert(ctx, crsRef, ring)
		add(f)
	}

	rec := core.Record{}
	for _, col := range t.cfg.Silver.Reportable() {
		if t.derived(col.Name) {
			continue
		}
		v, _ := core.Coerce(g.first(col.Name), col.Type)
		rec[col.Name] = v
	}

	rec[c.AsIngested] = geometry(ring)
	rec[c.Wgs84] = geometry(converted)

	rec[c.ParentID] = nil
	if parent := g.first(c.Parent); parent != "" {
		id, f := t.lookup.ResolveParent(ctx, parent)
		add(f)
		if id != "" {
			rec[c.ParentID] = id
		}
	}

	rec[c.CRS] = nil
	if crsRef != nil {
		if b, err := json.Marshal(crsRef); err == nil {
			rec[c.CRS] = string(b)
		}
	}

	return rec, findings
}

func (t *Transformer) derived(name string) bool {
	c := t.cfg.Columns
	switch name {
	case c.ParentID, c.AsIngested, c.Wgs84, c.CRS:
		return true
	}
	return false
}

type entityGroup struct {
	key  string
	rows []core.BronzeResult
}

// groupByEntity groups rows by entity in first-encountered order.
func groupByEntity(rows []core.BronzeResult, entity string) []entityGroup {
	var groups []entityGroup
	index := make(map[string]int)
	for _, r := range rows {
		key := r.Values[entity]
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, entityGroup{key: key})
		}
		groups[pos].rows = append(groups[pos].rows, r)
	}
	return groups
}

// first returns the group's first non-empty value of column.
func (g entityGroup) first(column string) string {
	for _, r := range g.rows {
		if v := r.Values[column]; v != "" {
			return v
		}
	}
	return ""
}

// ring returns the group's coordinate pairs in bronze id order.
func (g entityGroup) ring(xCol, yCol string) []reference.Point {
	var points []reference.Point
	for _, r := range g.rows {
		x, okX := core.ParseFloat(r.Values[xCol])
		y, okY := core.ParseFloat(r.Values[yCol])
		if okX && okY {
			points = append(points, reference.Point{X: x, Y: y})
		}
	}
	return points
}

type geometryCollection struct {
	Type       string    `json:"type"`
	Geometries []polygon `json:"geometries"`
}

type polygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// geometry serializes points as a single-polygon geometry collection, or
// returns nil when there are none.
func geometry(points []reference.Point) any {
	if len(points) == 0 {
		return nil
	}

	ring := make([][]float64, len(points))
	for i, p := range points {
		ring[i] = []float64{p.X, p.Y}
	}

	b, err := json.Marshal(geometryCollection{
		Type:       "geometrycollection",
		Geometries: []polygon{{Type: "polygon", Coordinates: [][][]float64{ring}}},
	})
	if err != nil {
		return nil
	}
	return string(b)
}
