package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListFiles serves GET /api/files?status=&limit=.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	status := core.FileStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		s.respondError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, status))
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			s.respondError(w, r, fmt.Errorf("%w: limit must be 1-%d", errBadRequest, maxListLimit))
			return
		}
		limit = n
	}

	files, err := s.files.ListFiles(r.Context(), status, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if files == nil {
		files = []core.FileRecord{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, err := s.files.GetFile(r.Context(), id)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("file not found: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleFileHistory(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.files.GetFile(r.Context(), id); err != nil {
		s.respondError(w, r, fmt.Errorf("file not found: %w", err))
		return
	}

	history, err := s.files.FileHistory(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if history == nil {
		history = []core.StatusChange{}
	}
	writeJSON(w, http.StatusOK, history)
}

// handleFileFindings serves the latest run's findings of one zone,
// GET /api/files/{id}/findings?zone=BRONZE (the default).
func (s *Server) handleFileFindings(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	zone := core.Zone(strings.ToUpper(r.URL.Query().Get("zone")))
	switch zone {
	case "":
		zone = core.ZoneBronze
	case core.ZoneBronze, core.ZoneSilver:
	default:
		s.respondError(w, r, fmt.Errorf("%w: zone must be BRONZE or SILVER", errBadRequest))
		return
	}

	if _, err := s.files.GetFile(r.Context(), id); err != nil {
		s.respondError(w, r, fmt.Errorf("file not found: %w", err))
		return
	}

	findings, err := s.files.LatestFindings(r.Context(), id, zone)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if findings == nil {
		findings = []core.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, findings)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	tables := s.schemas.Tables()
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleDescribeSchema(w http.ResponseWriter, r *http.Request) {
	ts, err := s.schemas.Describe(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func fileID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid file id %q", errBadRequest, raw)
	}
	return id, nil
}
