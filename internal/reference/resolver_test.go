package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(SearchResponse), args.Error(1)
}

func (m *mockAPI) Convert(ctx context.Context, req ConvertRequest) (ConvertResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ConvertResponse), args.Error(1)
}

var testSettings = Settings{CRSKind: "crs-kind", FieldKind: "field-kind", TargetCRS: "wgs"}

func byQuery(q string) interface{} {
	return mock.MatchedBy(func(req SearchRequest) bool { return req.Query == q })
}

func TestResolveCRS(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("Search", ctx, byQuery(`data.ID:"EPSG:23031"`)).Return(SearchResponse{Results: []SearchResult{{
		ID:   "crs:23031",
		Kind: "crs-kind",
		Data: []byte(`{"Name":"ED50 / UTM 31N","PersistableReference":"{\"ref\":23031}"}`),
	}}}, nil).Once()

	r := NewResolver(api, testSettings)
	for i := 0; i < 3; i++ {
		ref, f := r.ResolveCRS(ctx, "EPSG:23031")
		require.Nil(t, f)
		require.NotNil(t, ref)
		assert.Equal(t, "crs:23031", ref.CoordinateReferenceSystemID)
		assert.Equal(t, `{"ref":23031}`, ref.PersistableReference)
		assert.Equal(t, "ED50 / UTM 31N", ref.Name)
	}
	api.AssertExpectations(t)
}

func TestResolveCRS_Empty(t *testing.T) {
	api := new(mockAPI)
	ref, f := NewResolver(api, testSettings).ResolveCRS(context.Background(), "  ")
	assert.Nil(t, ref)
	assert.Nil(t, f)
	api.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestResolveCRS_NotFoundAndFailure(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("Search", ctx, byQuery(`data.ID:"nope"`)).Return(SearchResponse{}, nil).Once()
	api.On("Search", ctx, byQuery(`data.ID:"down"`)).Return(SearchResponse{}, errors.New("connection refused")).Once()

	r := NewResolver(api, testSettings)

	ref, f := r.ResolveCRS(ctx, "nope")
	assert.Nil(t, ref)
	require.NotNil(t, f)
	assert.Equal(t, core.CodeCRSNotFound, f.Code)

	// Failures are memoized: the second lookup does not call again.
	for i := 0; i < 2; i++ {
		ref, f = r.ResolveCRS(ctx, "down")
		assert.Nil(t, ref)
		require.NotNil(t, f)
		assert.Equal(t, core.CodeCRSNotFound, f.Code)
		assert.Contains(t, f.Message, "connection refused")
	}
	api.AssertExpectations(t)
}

func TestFieldExistsSharesParentLookup(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("Search", ctx, mock.MatchedBy(func(req SearchRequest) bool {
		return req.Kind == "field-kind" && req.Query == `data.FieldName:"Alpha"`
	})).Return(SearchResponse{Results: []SearchResult{{ID: "field:alpha"}, {ID: "field:alpha-2"}}}, nil).Once()

	r := NewResolver(api, testSettings)

	exists, f := r.FieldExists(ctx, "Alpha")
	assert.Nil(t, f)
	assert.True(t, exists)

	id, f := r.ResolveParent(ctx, "Alpha")
	assert.Nil(t, f)
	assert.Equal(t, "field:alpha", id)

	api.AssertExpectations(t)
}

func TestResolveParent_Failures(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("Search", ctx, byQuery(`data.FieldName:"Ghost"`)).Return(SearchResponse{}, nil)
	api.On("Search", ctx, byQuery(`data.FieldName:"Down"`)).Return(SearchResponse{}, errors.New("timeout"))

	r := NewResolver(api, testSettings)

	id, f := r.ResolveParent(ctx, "Ghost")
	assert.Empty(t, id)
	require.NotNil(t, f)
	assert.Equal(t, core.CodeParentFieldNotFound, f.Code)

	exists, f := r.FieldExists(ctx, "Ghost")
	assert.False(t, exists)
	assert.Nil(t, f)

	exists, f = r.FieldExists(ctx, "Down")
	assert.False(t, exists)
	require.NotNil(t, f)
	assert.Equal(t, core.CodeFieldLookupFailed, f.Code)

	_, f = r.ResolveParent(ctx, "Down")
	require.NotNil(t, f)
	assert.Equal(t, core.CodeParentFieldNotFound, f.Code)

	api.AssertNumberOfCalls(t, "Search", 2)
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	ref := &CRSReference{PersistableReference: "ed50"}
	points := []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}

	api.On("Convert", ctx, ConvertRequest{FromCRS: "ed50", ToCRS: "wgs", Points: points}).
		Return(ConvertResponse{Points: []Point{{X: 10, Y: 20}, {X: 30, Y: 40}}}, nil).Once()

	r := NewResolver(api, testSettings)
	for i := 0; i < 2; i++ {
		got, f := r.Convert(ctx, ref, points)
		assert.Nil(t, f)
		assert.Len(t, got, 2)
	}

	got, f := r.Convert(ctx, nil, points)
	assert.Nil(t, got)
	assert.Nil(t, f)

	got, f = r.Convert(ctx, ref, nil)
	assert.Nil(t, got)
	assert.Nil(t, f)

	api.AssertExpectations(t)
}

func TestConvert_Failure(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("Convert", ctx, mock.Anything).Return(ConvertResponse{}, errors.New("bad crs")).Once()

	r := NewResolver(api, Settings{})
	for i := 0; i < 2; i++ {
		got, f := r.Convert(ctx, &CRSReference{PersistableReference: "x"}, []Point{{X: 1}})
		assert.Nil(t, got)
		require.NotNil(t, f)
		assert.Equal(t, core.CodeCRSConversionError, f.Code)
	}
	api.AssertExpectations(t)
}

func TestNewResolver_DefaultTarget(t *testing.T) {
	r := NewResolver(new(mockAPI), Settings{})
	assert.Equal(t, WGS84, r.settings.TargetCRS)
}

func TestSeparateResolversDoNotShareMemo(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("Search", ctx, mock.Anything).Return(SearchResponse{}, nil).Twice()

	NewResolver(api, testSettings).FieldExists(ctx, "Alpha")
	NewResolver(api, testSettings).FieldExists(ctx, "Alpha")

	api.AssertExpectations(t)
}

func TestResolve_MultipleMatchesTakeFirst(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("Search", ctx, byQuery(`data.ID:"ED50"`)).Return(SearchResponse{Results: []SearchResult{
		{ID: "crs:first", Kind: "crs-kind", Data: []byte(`{"Name":"ED50 A","PersistableReference":"a"}`)},
		{ID: "crs:second", Kind: "crs-kind", Data: []byte(`{"Name":"ED50 B","PersistableReference":"b"}`)},
	}}, nil).Once()
	api.On("Search", ctx, byQuery(`data.FieldName:"Root"`)).Return(SearchResponse{Results: []SearchResult{
		{ID: "field:first"},
		{ID: "field:second"},
	}}, nil).Once()

	r := NewResolver(api, testSettings)

	ref, f := r.ResolveCRS(ctx, "ED50")
	require.Nil(t, f)
	require.NotNil(t, ref)
	assert.Equal(t, "crs:first", ref.CoordinateReferenceSystemID)
	assert.Equal(t, "ED50 A", ref.Name)
	assert.Equal(t, "a", ref.PersistableReference)

	id, f := r.ResolveParent(ctx, "Root")
	require.Nil(t, f)
	assert.Equal(t, "field:first", id)

	api.AssertExpectations(t)
}
