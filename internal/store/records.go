package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

// Columns every zone table carries besides its data columns.
const (
	ColID                  = "id"
	ColRowIndex            = "row_index"
	ColFileID              = "file_id"
	ColRunID               = "run_id"
	ColValidationTimestamp = "validation_timestamp"
)

// SystemColumns are filled by the store, never by callers.
var SystemColumns = []string{ColID, ColRowIndex, ColFileID, ColRunID, ColValidationTimestamp}

// IsSystemColumn reports whether name is managed by the store.
func IsSystemColumn(name string) bool {
	for _, c := range SystemColumns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// ZoneRun is one generation of zone rows and findings for a file.
type ZoneRun struct {
	FileID   int64
	Zone     core.Zone
	RunID    uuid.UUID
	Table    string
	Columns  []string
	Records  []core.Record
	Findings []core.Finding
}

// SaveRun persists the records and findings of run atomically and records
// the run so later reads can find the latest generation.
func (s *Store) SaveRun(ctx context.Context, run ZoneRun) error {
	return s.WithTx(ctx, func(q *Queries) error {
		if err := q.insertRun(ctx, run); err != nil {
			return err
		}
		if _, err := q.InsertRecords(ctx, run); err != nil {
			return err
		}
		return q.AppendFindings(ctx, run.FileID, run.Zone, run.RunID, run.Findings)
	})
}

func (q *Queries) insertRun(ctx context.Context, run ZoneRun) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO zone_runs (run_id, file_id, zone, record_count, finding_count)
		VALUES ($1, $2, $3, $4, $5)`,
		toPgUUID(run.RunID), run.FileID, string(run.Zone), len(run.Records), len(run.Findings))
	if err != nil {
		return fmt.Errorf("record %s run for file %d: %w", run.Zone, run.FileID, err)
	}
	return nil
}

// LatestRun returns the id of the most recent run of zone for a file, or
// ErrNotFound.
func (q *Queries) LatestRun(ctx context.Context, fileID int64, zone core.Zone) (uuid.UUID, error) {
	var id pgtype.UUID
	err := q.db.QueryRow(ctx, `
		SELECT run_id FROM zone_runs
		WHERE file_id = $1 AND zone = $2
		ORDER BY created_at DESC
		LIMIT 1`, fileID, string(zone)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("latest %s run for file %d: %w", zone, fileID, err)
	}
	return uuid.UUID(id.Bytes), nil
}

// InsertRecords copies the run's records into its zone table. The row index
// of each record is its position in run.Records.
func (q *Queries) InsertRecords(ctx context.Context, run ZoneRun) (int64, error) {
	if len(run.Records) == 0 {
		return 0, nil
	}

	firstID, err := q.nextID(ctx, run.Table, ColID)
	if err != nil {
		return 0, err
	}

	columns := append(append([]string{}, SystemColumns...), run.Columns...)
	now := time.Now()
	runID := toPgUUID(run.RunID)

	rows := make([][]any, len(run.Records))
	for i, rec := range run.Records {
		row := make([]any, 0, len(columns))
		row = append(row, firstID+int64(i), int32(i), run.FileID, runID, now)
		for _, c := range run.Columns {
			row = append(row, copyValue(rec[c]))
		}
		rows[i] = row
	}

	n, err := q.db.CopyFrom(ctx, pgx.Identifier{run.Table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy %d rows into %s: %w", len(rows), run.Table, err)
	}
	return n, nil
}

// copyValue maps a record value to something COPY can encode. Strings are
// text cells where empty means NULL.
func copyValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return core.ToPgText(t)
	default:
		return t
	}
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

// BronzeResults returns the rows of the latest bronze run of a file in id
// order, each annotated with the aggregated severity and messages of its
// findings. Data values come back as text; NULL is the empty string.
func (q *Queries) BronzeResults(ctx context.Context, table string, columns []string, fileID int64) ([]core.BronzeResult, error) {
	runID, err := q.LatestRun(ctx, fileID, core.ZoneBronze)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	selects := make([]string, len(columns))
	groups := make([]string, len(columns))
	for i, c := range columns {
		col := "b." + pgx.Identifier{c}.Sanitize()
		selects[i] = col + "::text"
		groups[i] = col
	}

	sql := fmt.Sprintf(`
		SELECT b.id, b.row_index, %s,
		       COALESCE(string_agg(em.error_message, ', ' ORDER BY ve.error_id), '') AS error_message,
		       CASE
		           WHEN bool_or(em.error_severity = 'ERROR') THEN 'ERROR'
		           WHEN bool_or(em.error_severity = 'WARNING') THEN 'WARNING'
		           ELSE ''
		       END AS error_severity
		FROM %s b
		LEFT JOIN validation_errors ve
		       ON ve.zone = 'BRONZE'
		      AND ve.file_id = b.file_id
		      AND ve.run_id = b.run_id
		      AND ve.row_index = b.row_index
		LEFT JOIN error_messages em
		       ON em.error_code = split_part(ve.error_code, ':', 1)
		WHERE b.file_id = $1 AND b.run_id = $2
		GROUP BY b.id, b.row_index, %s
		ORDER BY b.id`,
		strings.Join(selects, ", "), pgx.Identifier{table}.Sanitize(), strings.Join(groups, ", "))

	rows, err := q.db.Query(ctx, sql, fileID, toPgUUID(runID))
	if err != nil {
		return nil, fmt.Errorf("fetch bronze results for file %d: %w", fileID, err)
	}
	defer rows.Close()

	var results []core.BronzeResult
	for rows.Next() {
		var r core.BronzeResult
		var rowIndex int32
		var severity string
		values := make([]pgtype.Text, len(columns))

		dest := make([]any, 0, len(columns)+4)
		dest = append(dest, &r.ID, &rowIndex)
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &r.Messages, &severity)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan bronze result: %w", err)
		}

		r.RowIndex = int(rowIndex)
		r.Severity = core.Severity(severity)
		r.Values = make(map[string]string, len(columns))
		for i, c := range columns {
			r.Values[c] = values[i].String
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
