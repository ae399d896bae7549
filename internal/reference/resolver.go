package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/logging"
)

// API is the subset of Client the resolver calls.
type API interface {
	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
	Convert(ctx context.Context, req ConvertRequest) (ConvertResponse, error)
}

// Settings names the catalog kinds and the conversion target.
type Settings struct {
	CRSKind   string
	FieldKind string
	// TargetCRS is the persistable reference converted to; empty means WGS84.
	TargetCRS string
}

// searchLimit asks for a second match so ambiguous lookups can be reported.
const searchLimit = 2

type searchKey struct {
	kind  string
	query string
}

type searchOutcome struct {
	results []SearchResult
	err     error
}

type convertOutcome struct {
	points []Point
	err    error
}

// Resolver answers reference lookups for one run. Every distinct lookup,
// failed or not, reaches the service at most once per Resolver.
// A Resolver is not safe for concurrent use.
type Resolver struct {
	api         API
	settings    Settings
	searches    map[searchKey]searchOutcome
	conversions map[string]convertOutcome
}

// NewResolver returns a Resolver with an empty memo.
func NewResolver(api API, settings Settings) *Resolver {
	if settings.TargetCRS == "" {
		settings.TargetCRS = WGS84
	}
	return &Resolver{
		api:         api,
		settings:    settings,
		searches:    make(map[searchKey]searchOutcome),
		conversions: make(map[string]convertOutcome),
	}
}

// ResolveCRS looks up a coordinate reference system by its identifier.
func (r *Resolver) ResolveCRS(ctx context.Context, value string) (*CRSReference, *core.Finding) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	out := r.search(ctx, r.settings.CRSKind, fmt.Sprintf("data.ID:%q", value),
		[]string{"kind", "data.PersistableReference", "data.Name", "id"})
	if out.err != nil {
		return nil, finding("CRS", core.CodeCRSNotFound, out.err.Error())
	}
	if len(out.results) == 0 {
		return nil, finding("CRS", core.CodeCRSNotFound, fmt.Sprintf("no CRS matches %q", value))
	}
	if len(out.results) > 1 {
		logging.FromContext(ctx).Warn("multiple CRS matches, using the first", "crs", value)
	}

	rec := out.results[0]
	var data crsData
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return nil, finding("CRS", core.CodeCRSNotFound, fmt.Sprintf("decode CRS %q: %v", value, err))
	}

	return &CRSReference{
		Kind:                        rec.Kind,
		Name:                        data.Name,
		PersistableReference:        data.PersistableReference,
		CoordinateReferenceSystemID: rec.ID,
	}, nil
}

// ResolveParent returns the catalog id of the named parent field.
func (r *Resolver) ResolveParent(ctx context.Context, name string) (string, *core.Finding) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}

	out := r.searchField(ctx, name)
	if out.err != nil {
		return "", finding("ParentFieldOSDUId", core.CodeParentFieldNotFound, out.err.Error())
	}
	if len(out.results) == 0 {
		return "", finding("ParentFieldOSDUId", core.CodeParentFieldNotFound, fmt.Sprintf("no field named %q", name))
	}
	if len(out.results) > 1 {
		logging.FromContext(ctx).Warn("multiple parent fields found, using the first", "parent", name)
	}
	return out.results[0].ID, nil
}

// FieldExists reports whether the catalog already holds a field with name.
// It shares its lookup with ResolveParent.
func (r *Resolver) FieldExists(ctx context.Context, name string) (bool, *core.Finding) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}

	out := r.searchField(ctx, name)
	if out.err != nil {
		return false, finding("FieldName", core.CodeFieldLookupFailed, out.err.Error())
	}
	return len(out.results) > 0 && out.results[0].ID != "", nil
}

// Convert converts points from ref's system to the target system.
func (r *Resolver) Convert(ctx context.Context, ref *CRSReference, points []Point) ([]Point, *core.Finding) {
	if ref == nil || ref.PersistableReference == "" || len(points) == 0 {
		return nil, nil
	}

	key := conversionKey(ref.PersistableReference, r.settings.TargetCRS, points)
	out, ok := r.conversions[key]
	if !ok {
		resp, err := r.api.Convert(ctx, ConvertRequest{
			FromCRS: ref.PersistableReference,
			ToCRS:   r.settings.TargetCRS,
			Points:  points,
		})
		out = convertOutcome{points: resp.Points, err: err}
		r.conversions[key] = out
	}

	if out.err != nil {
		return nil, finding("Wgs84Coordinates", core.CodeCRSConversionError, out.err.Error())
	}
	return out.points, nil
}

func (r *Resolver) searchField(ctx context.Context, name string) searchOutcome {
	return r.search(ctx, r.settings.FieldKind, fmt.Sprintf("data.FieldName:%q", name), []string{"id"})
}

func (r *Resolver) search(ctx context.Context, kind, query string, fields []string) searchOutcome {
	key := searchKey{kind: kind, query: query}
	if out, ok := r.searches[key]; ok {
		return out
	}

	resp, err := r.api.Search(ctx, SearchRequest{
		Kind:           kind,
		ReturnedFields: fields,
		Limit:          searchLimit,
		Query:          query,
	})
	out := searchOutcome{results: resp.Results, err: err}
	r.searches[key] = out
	return out
}

func conversionKey(from, to string, points []Point) string {
	var b strings.Builder
	b.WriteString(from)
	b.WriteByte('|')
	b.WriteString(to)
	for _, p := range points {
		fmt.Fprintf(&b, "|%g,%g,%g", p.X, p.Y, p.Z)
	}
	return b.String()
}

func finding(field, code, msg string) *core.Finding {
	return &core.Finding{
		Field:    field,
		Category: core.CategoryData,
		Code:     code,
		Message:  msg,
	}
}
