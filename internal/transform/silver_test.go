package transform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/reference"
)

type fakeBronze struct {
	rows []core.BronzeResult
	err  error
}

func (f *fakeBronze) BronzeResults(ctx context.Context, table string, columns []string, fileID int64) ([]core.BronzeResult, error) {
	return f.rows, f.err
}

// fakeLookup answers from fixed tables and records the calls it received.
type fakeLookup struct {
	existing map[string]bool
	parents  map[string]string
	crs      map[string]*reference.CRSReference
	shift    float64
	failConv bool

	existsCalls []string
	convCalls   int
}

func (f *fakeLookup) ResolveCRS(ctx context.Context, value string) (*reference.CRSReference, *core.Finding) {
	if value == "" {
		return nil, nil
	}
	if ref, ok := f.crs[value]; ok {
		return ref, nil
	}
	return nil, &core.Finding{Field: "CRS", Category: core.CategoryData, Code: core.CodeCRSNotFound}
}

func (f *fakeLookup) ResolveParent(ctx context.Context, name string) (string, *core.Finding) {
	if id, ok := f.parents[name]; ok {
		return id, nil
	}
	return "", &core.Finding{Field: "ParentFieldOSDUId", Category: core.CategoryData, Code: core.CodeParentFieldNotFound}
}

func (f *fakeLookup) FieldExists(ctx context.Context, name string) (bool, *core.Finding) {
	f.existsCalls = append(f.existsCalls, name)
	return f.existing[name], nil
}

func (f *fakeLookup) Convert(ctx context.Context, ref *reference.CRSReference, points []reference.Point) ([]reference.Point, *core.Finding) {
	f.convCalls++
	if f.failConv {
		return nil, &core.Finding{Field: "Wgs84Coordinates", Category: core.CategoryData, Code: core.CodeCRSConversionError}
	}
	out := make([]reference.Point, len(points))
	for i, p := range points {
		out[i] = reference.Point{X: p.X + f.shift, Y: p.Y + f.shift}
	}
	return out, nil
}

func silverSchema() core.TableSchema {
	cols := []core.ColumnDescriptor{
		{Name: "FieldName", Type: core.TypeText},
		{Name: "FieldType", Type: core.TypeText, Nullable: true},
		{Name: "Source", Type: core.TypeText, Nullable: true},
		{Name: "DiscoveryDate", Type: core.TypeTimestamp, Nullable: true},
		{Name: "ParentFieldName", Type: core.TypeText, Nullable: true},
		{Name: "ParentFieldOSDUId", Type: core.TypeText, Nullable: true},
		{Name: "AsIngestedCoordinates", Type: core.TypeText, Nullable: true},
		{Name: "Wgs84Coordinates", Type: core.TypeText, Nullable: true},
		{Name: "CRS", Type: core.TypeText, Nullable: true},
	}
	for i := range cols {
		cols[i].Reportable = true
	}
	return core.TableSchema{Table: "field_silver_data", Zone: core.ZoneSilver, Columns: cols}
}

func bronzeRow(id int64, severity core.Severity, values map[string]string) core.BronzeResult {
	return core.BronzeResult{ID: id, RowIndex: int(id - 1), Values: values, Severity: severity}
}

func newTransformer(rows []core.BronzeResult, lookup Lookup, ignoreWarnings bool) *Transformer {
	return New(&fakeBronze{rows: rows}, lookup, Config{
		BronzeTable:    "field_bronze_data",
		BronzeColumns:  []string{"FieldName", "FieldType", "DiscoveryDate", "X", "Y", "CRS", "Source", "ParentFieldName"},
		Silver:         silverSchema(),
		Columns:        DefaultColumns(),
		IgnoreWarnings: ignoreWarnings,
	})
}

func TestTransform_ClosedRingWithoutCRS(t *testing.T) {
	row := map[string]string{
		"FieldName": "Alpha", "FieldType": "OIL", "DiscoveryDate": "01/02/2001",
		"X": "1.5", "Y": "2", "CRS": "",
	}
	rows := []core.BronzeResult{
		bronzeRow(1, core.SeverityNone, row),
		bronzeRow(2, core.SeverityNone, row),
	}
	lookup := &fakeLookup{}

	records, findings, err := newTransformer(rows, lookup, true).Transform(context.Background(), 7)
	require.NoError(t, err)

	assert.Empty(t, findings)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Alpha", rec["FieldName"])
	assert.Equal(t, "OIL", rec["FieldType"])
	assert.Equal(t, time.Date(2001, time.February, 1, 0, 0, 0, 0, time.UTC), rec["DiscoveryDate"])
	assert.Nil(t, rec["Wgs84Coordinates"])
	assert.Nil(t, rec["CRS"])
	assert.Nil(t, rec["ParentFieldOSDUId"])
	assert.JSONEq(t,
		`{"type":"geometrycollection","geometries":[{"type":"polygon","coordinates":[[[1.5,2],[1.5,2]]]}]}`,
		rec["AsIngestedCoordinates"].(string))
	assert.Zero(t, lookup.convCalls)
}

func TestTransform_SeverityFilter(t *testing.T) {
	rows := []core.BronzeResult{
		bronzeRow(1, core.SeverityError, map[string]string{"FieldName": "Bad"}),
		bronzeRow(2, core.SeverityWarning, map[string]string{"FieldName": "Warned"}),
		bronzeRow(3, core.SeverityNone, map[string]string{"FieldName": "Clean"}),
	}

	tests := []struct {
		name           string
		ignoreWarnings bool
		want           []string
	}{
		{"warnings pass", true, []string{"Warned", "Clean"}},
		{"warnings dropped", false, []string{"Clean"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, _, err := newTransformer(rows, &fakeLookup{}, tt.ignoreWarnings).Transform(context.Background(), 1)
			require.NoError(t, err)

			var got []string
			for _, r := range records {
				got = append(got, r["FieldName"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransform_GroupOrderAndFindings(t *testing.T) {
	rows := []core.BronzeResult{
		bronzeRow(1, core.SeverityNone, map[string]string{"FieldName": "Beta", "ParentFieldName": "Ghost"}),
		bronzeRow(2, core.SeverityNone, map[string]string{"FieldName": "Alpha"}),
		bronzeRow(3, core.SeverityNone, map[string]string{"FieldName": "Beta"}),
	}
	lookup := &fakeLookup{existing: map[string]bool{"Alpha": true}}

	records, findings, err := newTransformer(rows, lookup, true).Transform(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "Beta", records[0]["FieldName"])
	assert.Equal(t, "Alpha", records[1]["FieldName"])
	assert.Equal(t, []string{"Beta", "Alpha"}, lookup.existsCalls)

	require.Len(t, findings, 2)
	assert.Equal(t, core.CodeParentFieldNotFound, findings[0].Code)
	assert.Equal(t, 0, findings[0].RowIndex)
	assert.Equal(t, "Beta", findings[0].GroupKey)
	assert.Equal(t, core.CodeFieldAlreadyExists, findings[1].Code)
	assert.Equal(t, 1, findings[1].RowIndex)
	assert.Equal(t, "Alpha", findings[1].GroupKey)
	assert.Equal(t, "FieldName", findings[1].Field)
}

func TestTransform_ConvertsWithResolvedCRS(t *testing.T) {
	ref := &reference.CRSReference{
		Kind:                        "osdu:wks:reference-data--CoordinateReferenceSystem:1.1.0",
		Name:                        "ED50",
		PersistableReference:        `{"authCode":{"code":"4230"}}`,
		CoordinateReferenceSystemID: "opendes:reference-data--CoordinateReferenceSystem:ED50",
	}
	rows := []core.BronzeResult{
		bronzeRow(1, core.SeverityNone, map[string]string{"FieldName": "Gamma", "X": "10", "Y": "20", "CRS": "ED50", "ParentFieldName": "Root"}),
		bronzeRow(2, core.SeverityNone, map[string]string{"FieldName": "Gamma", "X": "11", "Y": "20", "CRS": "ED50"}),
		bronzeRow(3, core.SeverityNone, map[string]string{"FieldName": "Gamma", "X": "10", "Y": "20", "CRS": "ED50"}),
	}
	lookup := &fakeLookup{
		crs:     map[string]*reference.CRSReference{"ED50": ref},
		parents: map[string]string{"Root": "opendes:master-data--Field:root:"},
		shift:   1,
	}

	records, findings, err := newTransformer(rows, lookup, true).Transform(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, findings)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 1, lookup.convCalls)
	assert.Equal(t, "opendes:master-data--Field:root:", rec["ParentFieldOSDUId"])
	assert.Equal(t, "Root", rec["ParentFieldName"])
	assert.JSONEq(t,
		`{"type":"geometrycollection","geometries":[{"type":"polygon","coordinates":[[[10,20],[11,20],[10,20]]]}]}`,
		rec["AsIngestedCoordinates"].(string))
	assert.JSONEq(t,
		`{"type":"geometrycollection","geometries":[{"type":"polygon","coordinates":[[[11,21],[12,21],[11,21]]]}]}`,
		rec["Wgs84Coordinates"].(string))
	assert.JSONEq(t,
		`{"kind":"osdu:wks:reference-data--CoordinateReferenceSystem:1.1.0","name":"ED50","persistableReference":"{\"authCode\":{\"code\":\"4230\"}}","coordinateReferenceSystemID":"opendes:reference-data--CoordinateReferenceSystem:ED50"}`,
		rec["CRS"].(string))
}

func TestTransform_ReferenceFailuresDegrade(t *testing.T) {
	rows := []core.BronzeResult{
		bronzeRow(1, core.SeverityNone, map[string]string{"FieldName": "Delta", "X": "1", "Y": "1", "CRS": "Unknown"}),
		bronzeRow(2, core.SeverityNone, map[string]string{"FieldName": "Epsilon", "X": "1", "Y": "1", "CRS": "Known"}),
	}
	lookup := &fakeLookup{
		crs:      map[string]*reference.CRSReference{"Known": {Name: "Known", PersistableReference: "{}"}},
		failConv: true,
	}

	records, findings, err := newTransformer(rows, lookup, true).Transform(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Nil(t, records[0]["CRS"])
	assert.Nil(t, records[0]["Wgs84Coordinates"])
	assert.NotNil(t, records[0]["AsIngestedCoordinates"])
	assert.NotNil(t, records[1]["CRS"])
	assert.Nil(t, records[1]["Wgs84Coordinates"])

	require.Len(t, findings, 2)
	assert.Equal(t, core.CodeCRSNotFound, findings[0].Code)
	assert.Equal(t, 0, findings[0].RowIndex)
	assert.Equal(t, core.CodeCRSConversionError, findings[1].Code)
	assert.Equal(t, 1, findings[1].RowIndex)
}

func TestTransform_NoAcceptedRows(t *testing.T) {
	rows := []core.BronzeResult{bronzeRow(1, core.SeverityError, map[string]string{"FieldName": "X"})}

	records, findings, err := newTransformer(rows, &fakeLookup{}, true).Transform(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, findings)
}

func TestTransform_ReadError(t *testing.T) {
	tr := New(&fakeBronze{err: errors.New("connection refused")}, &fakeLookup{}, Config{Columns: DefaultColumns()})

	_, _, err := tr.Transform(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read bronze rows")
}
