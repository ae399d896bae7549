package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

const fileColumns = `id, filename, filepath, checksum, datatype, file_status, remarks, created_at, updated_at`

func scanFile(row pgx.Row) (core.FileRecord, error) {
	var f core.FileRecord
	var kind, status string
	err := row.Scan(&f.ID, &f.Filename, &f.Filepath, &f.Checksum, &kind, &status,
		&f.Remarks, &f.CreatedAt, &f.UpdatedAt)
	f.DataKind = core.DataKind(kind)
	f.Status = core.FileStatus(status)
	return f, err
}

// InsertFile stores a new file in the PICKED state and returns it with its
// assigned id and timestamps.
func (q *Queries) InsertFile(ctx context.Context, f core.FileRecord) (core.FileRecord, error) {
	id, err := q.nextID(ctx, "files", "id")
	if err != nil {
		return core.FileRecord{}, err
	}

	row := q.db.QueryRow(ctx, `
		INSERT INTO files (id, filename, filepath, checksum, datatype, file_status, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, '')
		RETURNING `+fileColumns,
		id, f.Filename, f.Filepath, f.Checksum, string(f.DataKind), string(core.StatusPicked))

	created, err := scanFile(row)
	if err != nil {
		return core.FileRecord{}, fmt.Errorf("insert file %s: %w", f.Filename, err)
	}
	return created, nil
}

// FindFileByPathChecksum returns the file registered with the given path and
// checksum, or ErrNotFound.
func (q *Queries) FindFileByPathChecksum(ctx context.Context, path, checksum string) (core.FileRecord, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE filepath = $1 AND checksum = $2
		ORDER BY id DESC
		LIMIT 1`, path, checksum)

	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.FileRecord{}, ErrNotFound
	}
	if err != nil {
		return core.FileRecord{}, fmt.Errorf("find file %s: %w", path, err)
	}
	return f, nil
}

// GetFile returns the file with id, or ErrNotFound.
func (q *Queries) GetFile(ctx context.Context, id int64) (core.FileRecord, error) {
	f, err := scanFile(q.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.FileRecord{}, ErrNotFound
	}
	if err != nil {
		return core.FileRecord{}, fmt.Errorf("get file %d: %w", id, err)
	}
	return f, nil
}

// ListFiles returns the most recent files first, optionally filtered by status.
func (q *Queries) ListFiles(ctx context.Context, status core.FileStatus, limit int) ([]core.FileRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.Query(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE $1 = '' OR file_status = $1
		ORDER BY id DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []core.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// NextPendingFile returns the next file awaiting work, ordered by status name
// then id, or ErrNotFound when none is pending.
func (q *Queries) NextPendingFile(ctx context.Context) (core.FileRecord, error) {
	statuses := make([]string, len(core.PendingStatuses))
	for i, s := range core.PendingStatuses {
		statuses[i] = string(s)
	}

	row := q.db.QueryRow(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE file_status = ANY($1)
		ORDER BY file_status ASC, id ASC
		LIMIT 1`, statuses)

	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.FileRecord{}, ErrNotFound
	}
	if err != nil {
		return core.FileRecord{}, fmt.Errorf("next pending file: %w", err)
	}
	return f, nil
}

// CountFilesByStatus returns the number of files in each status.
func (q *Queries) CountFilesByStatus(ctx context.Context) (map[core.FileStatus]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT file_status, COUNT(*) FROM files GROUP BY file_status`)
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.FileStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[core.FileStatus(status)] = n
	}
	return counts, rows.Err()
}

// setFileStatus moves a file from one status to the next. The update only
// applies while the stored status still equals from.
func (q *Queries) setFileStatus(ctx context.Context, id int64, from, to core.FileStatus, remarks string) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, to)
	}

	tag, err := q.db.Exec(ctx, `
		UPDATE files
		SET file_status = $3,
		    remarks = CASE WHEN $4 = '' THEN remarks ELSE $4 END,
		    updated_at = now()
		WHERE id = $1 AND file_status = $2`,
		id, string(from), string(to), remarks)
	if err != nil {
		return fmt.Errorf("update file %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: file %d is no longer %s", core.ErrInvalidTransition, id, from)
	}
	return nil
}

func (q *Queries) appendHistory(ctx context.Context, id int64, from, to core.FileStatus, remarks string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO file_status_history (file_id, from_status, to_status, remarks)
		VALUES ($1, $2, $3, $4)`, id, string(from), string(to), remarks)
	if err != nil {
		return fmt.Errorf("append history for file %d: %w", id, err)
	}
	return nil
}

// FileHistory returns every recorded status change of a file, oldest first.
func (q *Queries) FileHistory(ctx context.Context, id int64) ([]core.StatusChange, error) {
	rows, err := q.db.Query(ctx, `
		SELECT file_id, from_status, to_status, remarks, changed_at
		FROM file_status_history
		WHERE file_id = $1
		ORDER BY changed_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("file history %d: %w", id, err)
	}
	defer rows.Close()

	var changes []core.StatusChange
	for rows.Next() {
		var c core.StatusChange
		var from, to string
		if err := rows.Scan(&c.FileID, &from, &to, &c.Remarks, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		c.From = core.FileStatus(from)
		c.To = core.FileStatus(to)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// RegisterFile records a newly detected file unless the same path with the
// same checksum is already known. created is false for a duplicate.
func (s *Store) RegisterFile(ctx context.Context, f core.FileRecord) (rec core.FileRecord, created bool, err error) {
	err = s.WithTx(ctx, func(q *Queries) error {
		existing, err := q.FindFileByPathChecksum(ctx, f.Filepath, f.Checksum)
		if err == nil {
			rec = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		rec, err = q.InsertFile(ctx, f)
		if err != nil {
			return err
		}
		created = true
		return q.appendHistory(ctx, rec.ID, "", core.StatusPicked, "")
	})
	return rec, created, err
}

// TransitionFile moves a file between statuses and appends the change to
// its history in the same transaction.
func (s *Store) TransitionFile(ctx context.Context, id int64, from, to core.FileStatus, remarks string) error {
	return s.WithTx(ctx, func(q *Queries) error {
		if err := q.setFileStatus(ctx, id, from, to, strings.TrimSpace(remarks)); err != nil {
			return err
		}
		return q.appendHistory(ctx, id, from, to, remarks)
	})
}
