package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

func scanScript(row pgx.Row) (core.ScriptEntry, error) {
	var e core.ScriptEntry
	var zone, cols string
	if err := row.Scan(&e.TableName, &e.QueryType, &zone, &e.Query, &cols); err != nil {
		return core.ScriptEntry{}, err
	}
	e.Zone = core.Zone(zone)
	e.DataColumns = splitColumns(cols)
	return e, nil
}

func splitColumns(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// GetScript returns the registry entry for table and queryType, or ErrNotFound.
func (q *Queries) GetScript(ctx context.Context, table, queryType string) (core.ScriptEntry, error) {
	e, err := scanScript(q.db.QueryRow(ctx, `
		SELECT table_name, query_type, zone, query, data_columns
		FROM sql_script_store
		WHERE table_name = $1 AND query_type = $2`, table, queryType))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ScriptEntry{}, ErrNotFound
	}
	if err != nil {
		return core.ScriptEntry{}, fmt.Errorf("get script %s/%s: %w", table, queryType, err)
	}
	return e, nil
}

// ListScripts returns every registry entry of queryType ordered by table.
func (q *Queries) ListScripts(ctx context.Context, queryType string) ([]core.ScriptEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT table_name, query_type, zone, query, data_columns
		FROM sql_script_store
		WHERE query_type = $1
		ORDER BY table_name`, queryType)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var entries []core.ScriptEntry
	for rows.Next() {
		e, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertScript inserts or replaces a registry entry.
func (q *Queries) UpsertScript(ctx context.Context, e core.ScriptEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO sql_script_store (table_name, query_type, zone, query, data_columns)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_name, query_type) DO UPDATE
		SET zone = EXCLUDED.zone, query = EXCLUDED.query, data_columns = EXCLUDED.data_columns`,
		e.TableName, e.QueryType, string(e.Zone), e.Query, strings.Join(e.DataColumns, ","))
	if err != nil {
		return fmt.Errorf("upsert script %s/%s: %w", e.TableName, e.QueryType, err)
	}
	return nil
}

// SeedScripts stores the entries and executes each CREATE statement so the
// registered tables exist. All entries commit together.
func (s *Store) SeedScripts(ctx context.Context, entries []core.ScriptEntry) error {
	return s.WithTx(ctx, func(q *Queries) error {
		for _, e := range entries {
			if err := q.UpsertScript(ctx, e); err != nil {
				return err
			}
			if e.QueryType != core.QueryTypeCreate {
				continue
			}
			if _, err := q.db.Exec(ctx, e.Query); err != nil {
				return fmt.Errorf("create table %s: %w", e.TableName, err)
			}
			if e.Zone == core.ZoneBronze {
				if err := q.relaxColumns(ctx, e.TableName); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// relaxColumns turns every non-system column of a bronze table into
// nullable text. Bronze keeps each input row as received; the registered
// statement stays the contract the validation engine checks rows against.
func (q *Queries) relaxColumns(ctx context.Context, table string) error {
	rows, err := q.db.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return fmt.Errorf("list columns of %s: %w", table, err)
	}
	var columns []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return fmt.Errorf("scan column: %w", err)
		}
		if !IsSystemColumn(c) {
			columns = append(columns, c)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list columns of %s: %w", table, err)
	}

	for _, c := range columns {
		col := pgx.Identifier{c}.Sanitize()
		sql := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE TEXT USING %s::text, ALTER COLUMN %s DROP NOT NULL",
			pgx.Identifier{table}.Sanitize(), col, col, col)
		if _, err := q.db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("relax %s.%s: %w", table, c, err)
		}
	}
	return nil
}
