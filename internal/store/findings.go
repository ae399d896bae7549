package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

// AppendFindings adds a generation of findings to the ledger.
func (q *Queries) AppendFindings(ctx context.Context, fileID int64, zone core.Zone, runID uuid.UUID, findings []core.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	firstID, err := q.nextID(ctx, "validation_errors", "error_id")
	if err != nil {
		return err
	}

	rows := make([][]any, len(findings))
	for i, f := range findings {
		rows[i] = []any{
			firstID + int64(i), fileID, string(zone), toPgUUID(runID), int32(f.RowIndex),
			f.GroupKey, f.Field, string(f.Category), f.Code, f.Message,
		}
	}

	_, err = q.db.CopyFrom(ctx, pgx.Identifier{"validation_errors"},
		[]string{"error_id", "file_id", "zone", "run_id", "row_index",
			"group_key", "field_name", "error_type", "error_code", "error_message"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("append %d findings for file %d: %w", len(findings), fileID, err)
	}
	return nil
}

// LatestFindings returns the findings of the latest run of zone for a file,
// in ledger order, with the catalog severity of each code.
func (q *Queries) LatestFindings(ctx context.Context, fileID int64, zone core.Zone) ([]core.LedgerEntry, error) {
	runID, err := q.LatestRun(ctx, fileID, zone)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx, `
		SELECT ve.error_id, ve.file_id, ve.zone, ve.run_id, ve.row_index, ve.group_key,
		       ve.field_name, ve.error_type, ve.error_code, ve.error_message,
		       COALESCE(em.error_severity, ''), ve.created_at
		FROM validation_errors ve
		LEFT JOIN error_messages em ON em.error_code = split_part(ve.error_code, ':', 1)
		WHERE ve.file_id = $1 AND ve.zone = $2 AND ve.run_id = $3
		ORDER BY ve.error_id`, fileID, string(zone), toPgUUID(runID))
	if err != nil {
		return nil, fmt.Errorf("list findings for file %d: %w", fileID, err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		var e core.LedgerEntry
		var zoneStr, category, severity string
		var run pgtype.UUID
		var rowIndex int32
		if err := rows.Scan(&e.ID, &e.FileID, &zoneStr, &run, &rowIndex, &e.GroupKey,
			&e.Field, &category, &e.Code, &e.Message, &severity, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		e.Zone = core.Zone(zoneStr)
		e.RunID = uuid.UUID(run.Bytes).String()
		e.RowIndex = int(rowIndex)
		e.Category = core.Category(category)
		e.Severity = core.Severity(severity)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SeedErrorCatalog upserts every code of catalog into error_messages.
func (s *Store) SeedErrorCatalog(ctx context.Context, catalog map[string]core.CodeInfo) error {
	codes := make([]string, 0, len(catalog))
	for code := range catalog {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return s.WithTx(ctx, func(q *Queries) error {
		for _, code := range codes {
			info := catalog[code]
			_, err := q.db.Exec(ctx, `
				INSERT INTO error_messages (error_code, error_message, error_severity)
				VALUES ($1, $2, $3)
				ON CONFLICT (error_code) DO UPDATE
				SET error_message = EXCLUDED.error_message, error_severity = EXCLUDED.error_severity`,
				code, info.Message, string(info.Severity))
			if err != nil {
				return fmt.Errorf("seed error code %s: %w", code, err)
			}
		}
		return nil
	})
}
