package watcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/JonMunkholm/fieldpipe/internal/checksum"
	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/logging"
	"github.com/JonMunkholm/fieldpipe/internal/metrics"
)

// FileRegistry records detected files.
type FileRegistry interface {
	RegisterFile(ctx context.Context, f core.FileRecord) (core.FileRecord, bool, error)
}

// Ingestor registers ready files as PICKED.
type Ingestor struct {
	files FileRegistry
	kind  core.DataKind
}

// NewIngestor returns an Ingestor recording every file with kind.
func NewIngestor(files FileRegistry, kind core.DataKind) *Ingestor {
	return &Ingestor{files: files, kind: kind}
}

// Ingest checksums path and registers it. A file already registered with the
// same path and checksum is returned with created false.
func (i *Ingestor) Ingest(ctx context.Context, path string) (core.FileRecord, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	sum, err := checksum.File(abs)
	if err != nil {
		metrics.FilesIngested.WithLabelValues("error").Inc()
		return core.FileRecord{}, false, err
	}

	rec, created, err := i.files.RegisterFile(ctx, core.FileRecord{
		Filename: filepath.Base(abs),
		Filepath: abs,
		Checksum: sum,
		DataKind: i.kind,
		Status:   core.StatusPicked,
	})
	if err != nil {
		metrics.FilesIngested.WithLabelValues("error").Inc()
		return core.FileRecord{}, false, fmt.Errorf("register %s: %w", abs, err)
	}

	if created {
		metrics.FilesIngested.WithLabelValues("created").Inc()
	} else {
		metrics.FilesIngested.WithLabelValues("duplicate").Inc()
	}
	return rec, created, nil
}

// Run ingests every path the detector emits for dir until ctx is done.
func Run(ctx context.Context, d *Detector, ing *Ingestor, dir string) {
	logger := logging.WithFields(ctx, "dir", dir)
	ctx = logging.IntoContext(ctx, logger)

	logger.Info("watcher started")
	for path := range d.Watch(ctx, dir) {
		rec, created, err := ing.Ingest(ctx, path)
		if err != nil {
			logger.Error("ingest failed", "path", path, "error", err)
			continue
		}
		if !created {
			logger.Info("file already registered", "path", path, "file_id", rec.ID)
			continue
		}
		logger.Info("file registered", "path", path, "file_id", rec.ID, "checksum", rec.Checksum)
	}
	logger.Info("watcher stopped")
}
