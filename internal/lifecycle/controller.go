// Package lifecycle drives ingested files through the zones: structural
// column check, bronze validation, silver transformation. Each status change
// is committed before the next stage runs, so a crash leaves the file
// retryable from its last committed status.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/logging"
	"github.com/JonMunkholm/fieldpipe/internal/metrics"
	"github.com/JonMunkholm/fieldpipe/internal/store"
)

// Files is the file-status store the controller works against.
type Files interface {
	NextPendingFile(ctx context.Context) (core.FileRecord, error)
	TransitionFile(ctx context.Context, id int64, from, to core.FileStatus, remarks string) error
}

// Processor runs the zone stages for one data kind.
type Processor interface {
	// MissingColumns returns the reportable bronze columns the file lacks.
	MissingColumns(ctx context.Context, file core.FileRecord) ([]string, error)
	ProcessBronze(ctx context.Context, file core.FileRecord) error
	ProcessSilver(ctx context.Context, file core.FileRecord) error
}

// Controller advances one pending file per tick.
type Controller struct {
	files      Files
	processors map[core.DataKind]Processor
}

// NewController returns a Controller dispatching on each file's data kind.
func NewController(files Files, processors map[core.DataKind]Processor) *Controller {
	return &Controller{files: files, processors: processors}
}

// Run ticks every interval until ctx is done. Ticks never overlap.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	core.RunEvery(ctx, "lifecycle", interval, func(ctx context.Context) error {
		_, err := c.Tick(ctx)
		return err
	})
}

// Tick picks the next pending file and drives it as far as it can go.
// It reports whether a file was picked. On a stage failure the file keeps
// its last committed status and the error is returned.
func (c *Controller) Tick(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	file, err := c.files.NextPendingFile(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pick pending file: %w", err)
	}

	logger := logging.WithFields(ctx, "file_id", file.ID, "filename", file.Filename, "data_kind", file.DataKind)
	ctx = logging.IntoContext(ctx, logger)

	proc, ok := c.processors[file.DataKind]
	if !ok {
		logger.Error("no processor for data kind")
		return true, c.files.TransitionFile(ctx, file.ID, file.Status, core.StatusError, core.RemarkUnsupportedKind)
	}

	return true, c.advance(ctx, proc, file)
}

// advance runs the stages from the file's current status until it is
// terminal or a stage fails.
func (c *Controller) advance(ctx context.Context, proc Processor, file core.FileRecord) error {
	logger := logging.FromContext(ctx)

	for !file.Status.Terminal() {
		var next core.FileStatus
		var remarks string

		switch file.Status {
		case core.StatusPicked:
			missing, err := proc.MissingColumns(ctx, file)
			metrics.RecordStage("columns", err)
			if errors.Is(err, fs.ErrNotExist) {
				logger.Error("source file is gone", "error", err)
				next, remarks = core.StatusError, core.RemarkSourceMissing
				break
			}
			if err != nil {
				return fmt.Errorf("check columns of file %d: %w", file.ID, err)
			}
			if len(missing) > 0 {
				logger.Warn("file rejected", "error", core.ErrColumnsMismatch, "missing", missing)
				next, remarks = core.StatusError, core.RemarkColumnsMismatch
				break
			}
			next = core.StatusBronzeProcessing

		case core.StatusBronzeProcessing:
			err := proc.ProcessBronze(ctx, file)
			metrics.RecordStage("bronze", err)
			if errors.Is(err, fs.ErrNotExist) {
				logger.Error("source file is gone", "error", err)
				next, remarks = core.StatusError, core.RemarkSourceMissing
				break
			}
			if err != nil {
				return fmt.Errorf("bronze stage of file %d: %w", file.ID, err)
			}
			next = core.StatusBronzeProcessed

		case core.StatusBronzeProcessed:
			next = core.StatusSilverProcessing

		case core.StatusSilverProcessing:
			err := proc.ProcessSilver(ctx, file)
			metrics.RecordStage("silver", err)
			if err != nil {
				return fmt.Errorf("silver stage of file %d: %w", file.ID, err)
			}
			next = core.StatusSilverProcessed

		default:
			return fmt.Errorf("file %d: %w: unknown status %q", file.ID, core.ErrInvalidTransition, file.Status)
		}

		if err := c.files.TransitionFile(ctx, file.ID, file.Status, next, remarks); err != nil {
			return err
		}
		logger.Info("file status changed", "from", file.Status, "to", next)
		file.Status = next
	}
	return nil
}
