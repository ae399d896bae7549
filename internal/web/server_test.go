package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fieldpipe/internal/config"
	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/schema"
	"github.com/JonMunkholm/fieldpipe/internal/store"
)

type stubFiles struct {
	files    []core.FileRecord
	history  map[int64][]core.StatusChange
	findings map[core.Zone][]core.LedgerEntry
	pingErr  error

	lastStatus core.FileStatus
	lastLimit  int
	lastZone   core.Zone
}

func (s *stubFiles) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubFiles) ListFiles(ctx context.Context, status core.FileStatus, limit int) ([]core.FileRecord, error) {
	s.lastStatus, s.lastLimit = status, limit
	var out []core.FileRecord
	for _, f := range s.files {
		if status == "" || f.Status == status {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *stubFiles) GetFile(ctx context.Context, id int64) (core.FileRecord, error) {
	for _, f := range s.files {
		if f.ID == id {
			return f, nil
		}
	}
	return core.FileRecord{}, store.ErrNotFound
}

func (s *stubFiles) FileHistory(ctx context.Context, id int64) ([]core.StatusChange, error) {
	return s.history[id], nil
}

func (s *stubFiles) LatestFindings(ctx context.Context, fileID int64, zone core.Zone) ([]core.LedgerEntry, error) {
	s.lastZone = zone
	return s.findings[zone], nil
}

func (s *stubFiles) CountFilesByStatus(ctx context.Context) (map[core.FileStatus]int64, error) {
	counts := make(map[core.FileStatus]int64)
	for _, f := range s.files {
		counts[f.Status]++
	}
	return counts, nil
}

type stubSchemas map[string]core.TableSchema

func (s stubSchemas) Describe(ctx context.Context, table string) (core.TableSchema, error) {
	ts, ok := s[table]
	if !ok {
		return core.TableSchema{}, fmt.Errorf("%w: %s", schema.ErrSchemaNotFound, table)
	}
	return ts, nil
}

func (s stubSchemas) Tables() []string {
	var out []string
	for k := range s {
		out = append(out, k)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{RequestTimeout: 5 * time.Second},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(cfg *config.Config) (*Server, *stubFiles) {
	files := &stubFiles{
		files: []core.FileRecord{
			{ID: 1, Filename: "north.csv", DataKind: core.KindField, Status: core.StatusSilverProcessed},
			{ID: 2, Filename: "<south>.csv", DataKind: core.KindField, Status: core.StatusError, Remarks: core.RemarkColumnsMismatch},
		},
		history: map[int64][]core.StatusChange{
			1: {{FileID: 1, From: "", To: core.StatusPicked}},
		},
		findings: map[core.Zone][]core.LedgerEntry{
			core.ZoneBronze: {{FileID: 1, Zone: core.ZoneBronze, Severity: core.SeverityError,
				Finding: core.Finding{RowIndex: 0, Field: "X", Code: "invalid_type:X"}}},
		},
	}
	schemas := stubSchemas{
		"field_bronze_data": {Table: "field_bronze_data", Zone: core.ZoneBronze,
			Columns: []core.ColumnDescriptor{{Name: "FieldName", Type: core.TypeText, Reportable: true}}},
	}
	return NewServer(cfg, files, schemas), files
}

func do(t *testing.T, s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s, files := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	files.pingErr = errors.New("connection refused")
	rec = do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListFiles(t *testing.T) {
	s, files := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/api/files?status=error&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[[]core.FileRecord](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, core.StatusError, files.lastStatus)
	assert.Equal(t, 5, files.lastLimit)
}

func TestListFiles_BadParams(t *testing.T) {
	s, _ := newTestServer(testConfig())

	for _, path := range []string{"/api/files?status=DONE", "/api/files?limit=0", "/api/files?limit=abc"} {
		rec := do(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code, path)
	}
}

func TestGetFile(t *testing.T) {
	s, _ := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/api/files/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "north.csv", decode[core.FileRecord](t, rec).Filename)

	rec = do(t, s, http.MethodGet, "/api/files/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PIPE002", decode[ErrorResponse](t, rec).Code)

	rec = do(t, s, http.MethodGet, "/api/files/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileHistory(t *testing.T) {
	s, _ := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/api/files/1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.StatusChange](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/files/2/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestFileFindings(t *testing.T) {
	s, files := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/api/files/1/findings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.ZoneBronze, files.lastZone)
	got := decode[[]core.LedgerEntry](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "invalid_type:X", got[0].Code)

	rec = do(t, s, http.MethodGet, "/api/files/1/findings?zone=silver", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.ZoneSilver, files.lastZone)

	rec = do(t, s, http.MethodGet, "/api/files/1/findings?zone=GOLD", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemas(t *testing.T) {
	s, _ := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/api/schemas/field_bronze_data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"FieldName"}, decode[core.TableSchema](t, rec).ReportableNames())

	rec = do(t, s, http.MethodGet, "/api/schemas/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SCH001", decode[ErrorResponse](t, rec).Code)

	rec = do(t, s, http.MethodGet, "/api/schemas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"field_bronze_data"}, decode[[]string](t, rec))
}

func TestStatusPage(t *testing.T) {
	s, _ := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, "north.csv")
	assert.Contains(t, body, "&lt;south&gt;.csv")
	assert.NotContains(t, body, "<south>")
	assert.Contains(t, body, core.RemarkColumnsMismatch)
}

func TestAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	s, _ := newTestServer(cfg)

	rec := do(t, s, http.MethodGet, "/api/files", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/files", http.Header{"X-Api-Key": {"nope"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/files", http.Header{"X-Api-Key": {"k2"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind the API key")
}

func TestAPIRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimit = 2
	s, _ := newTestServer(cfg)

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/api/files", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/api/files", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(testConfig())
	do(t, s, http.MethodGet, "/api/files/1", nil)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fieldpipe_http_requests_total"))
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(testConfig())

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
