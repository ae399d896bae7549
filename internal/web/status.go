package web

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

// statusPageFiles is how many recent files the status page lists.
const statusPageFiles = 20

// pageStatuses is the display order of the status counters.
var pageStatuses = []core.FileStatus{
	core.StatusPicked,
	core.StatusBronzeProcessing,
	core.StatusBronzeProcessed,
	core.StatusSilverProcessing,
	core.StatusSilverProcessed,
	core.StatusError,
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	counts, err := s.files.CountFilesByStatus(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	files, err := s.files.ListFiles(r.Context(), "", statusPageFiles)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	templ.Handler(statusPage(counts, files)).ServeHTTP(w, r)
}

// statusPage renders the pipeline overview: a counter per status and the
// most recent files.
func statusPage(counts map[core.FileStatus]int64, files []core.FileRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}

		p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>fieldpipe</title>`)
		p.printf(`<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}td,th{padding:.3rem .8rem;border-bottom:1px solid #ddd;text-align:left}.ERROR{color:#b00}</style>`)
		p.printf(`</head><body><h1>Field pipeline</h1><table><tr>`)
		for _, st := range pageStatuses {
			p.printf(`<th>%s</th>`, templ.EscapeString(string(st)))
		}
		p.printf(`</tr><tr>`)
		for _, st := range pageStatuses {
			p.printf(`<td>%d</td>`, counts[st])
		}
		p.printf(`</tr></table>`)

		p.printf(`<h2>Recent files</h2>`)
		if len(files) == 0 {
			p.printf(`<p>No files yet.</p>`)
		} else {
			p.printf(`<table><tr><th>ID</th><th>File</th><th>Kind</th><th>Status</th><th>Remarks</th><th>Updated</th></tr>`)
			for _, f := range files {
				p.printf(`<tr><td><a href="/api/files/%d">%d</a></td><td>%s</td><td>%s</td><td class="%s">%s</td><td>%s</td><td>%s</td></tr>`,
					f.ID, f.ID,
					templ.EscapeString(f.Filename),
					templ.EscapeString(string(f.DataKind)),
					templ.EscapeString(string(f.Status)),
					templ.EscapeString(string(f.Status)),
					templ.EscapeString(f.Remarks),
					f.UpdatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			p.printf(`</table>`)
		}
		p.printf(`</body></html>`)
		return p.err
	})
}

// pageWriter keeps the first write error so rendering reads linearly.
type pageWriter struct {
	w   io.Writer
	err error
}

func (p *pageWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
