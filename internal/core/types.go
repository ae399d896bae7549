// Package core provides the domain types shared by the field pipeline.
// This package has no transport or storage dependencies beyond the DBTX contract.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var (
	// ErrInvalidTransition is returned when a status change would move a file
	// backwards or out of the terminal ERROR state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrColumnsMismatch marks a file whose header lacks reportable columns.
	ErrColumnsMismatch = errors.New("columns do not match")
)

// RemarkColumnsMismatch is stored on files rejected by the structural check.
const RemarkColumnsMismatch = "Error: Columns do not match"

// RemarkUnsupportedKind is stored on files with no registered processor.
const RemarkUnsupportedKind = "Error: Unsupported data kind"

// RemarkSourceMissing is stored on files whose source disappeared before
// the column check.
const RemarkSourceMissing = "Error: Source file not found"

// FileStatus is the lifecycle state of an ingested file.
type FileStatus string

const (
	StatusPicked           FileStatus = "PICKED"
	StatusBronzeProcessing FileStatus = "BRONZE_PROCESSING"
	StatusBronzeProcessed  FileStatus = "BRONZE_PROCESSED"
	StatusSilverProcessing FileStatus = "SILVER_PROCESSING"
	StatusSilverProcessed  FileStatus = "SILVER_PROCESSED"
	StatusError            FileStatus = "ERROR"
)

// statusOrder gives each non-error status its position in the lifecycle.
var statusOrder = map[FileStatus]int{
	StatusPicked:           0,
	StatusBronzeProcessing: 1,
	StatusBronzeProcessed:  2,
	StatusSilverProcessing: 3,
	StatusSilverProcessed:  4,
}

// PendingStatuses are the statuses the lifecycle controller picks up.
// The *_PROCESSING states are included so an interrupted stage is retried.
var PendingStatuses = []FileStatus{
	StatusPicked,
	StatusBronzeProcessing,
	StatusBronzeProcessed,
	StatusSilverProcessing,
}

// Terminal reports whether no further transitions are possible.
func (s FileStatus) Terminal() bool {
	return s == StatusError || s == StatusSilverProcessed
}

// Valid reports whether s is a known status.
func (s FileStatus) Valid() bool {
	if s == StatusError {
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

// CanTransition reports whether a file may move from s to next.
// Transitions only advance one step at a time; ERROR is reachable from any
// non-terminal state and is absorbing.
func (s FileStatus) CanTransition(next FileStatus) bool {
	if s.Terminal() || !s.Valid() || !next.Valid() {
		return false
	}
	if next == StatusError {
		return true
	}
	return statusOrder[next] == statusOrder[s]+1
}

// DataKind identifies the kind of master data a file carries.
type DataKind string

const (
	KindField DataKind = "FIELD"
)

// Zone is a quality zone of the pipeline.
type Zone string

const (
	ZoneCommon Zone = "COMMON"
	ZoneBronze Zone = "BRONZE"
	ZoneSilver Zone = "SILVER"
	ZoneGold   Zone = "GOLD"
)

// FileRecord is one ingested file.
type FileRecord struct {
	ID        int64      `json:"id"`
	Filename  string     `json:"filename"`
	Filepath  string     `json:"filepath"`
	Checksum  string     `json:"checksum"`
	DataKind  DataKind   `json:"dataKind"`
	Status    FileStatus `json:"status"`
	Remarks   string     `json:"remarks,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// StatusChange is one row of a file's status history.
type StatusChange struct {
	FileID    int64      `json:"fileId"`
	From      FileStatus `json:"from"`
	To        FileStatus `json:"to"`
	Remarks   string     `json:"remarks,omitempty"`
	ChangedAt time.Time  `json:"changedAt"`
}

// LogicalType is the validation-level type of a column.
type LogicalType string

const (
	TypeText      LogicalType = "text"
	TypeInt       LogicalType = "int"
	TypeFloat     LogicalType = "float"
	TypeBool      LogicalType = "bool"
	TypeTimestamp LogicalType = "timestamp"
)

// ColumnDescriptor describes one column of a registered table.
type ColumnDescriptor struct {
	Name       string      `json:"name"`
	Type       LogicalType `json:"type"`
	Nullable   bool        `json:"nullable"`
	PrimaryKey bool        `json:"primaryKey"`
	Reportable bool        `json:"reportable"`
}

// TableSchema is the ordered column description of a registered table.
type TableSchema struct {
	Table   string             `json:"table"`
	Zone    Zone               `json:"zone"`
	Columns []ColumnDescriptor `json:"columns"`
}

// Reportable returns the columns that take part in business validation,
// in declaration order.
func (s TableSchema) Reportable() []ColumnDescriptor {
	var out []ColumnDescriptor
	for _, c := range s.Columns {
		if c.Reportable {
			out = append(out, c)
		}
	}
	return out
}

// ReportableNames returns the names of the reportable columns.
func (s TableSchema) ReportableNames() []string {
	cols := s.Reportable()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (s TableSchema) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// Category classifies a finding.
type Category string

const (
	CategoryRow   Category = "row_validation"
	CategoryGroup Category = "group_validation"
	CategoryData  Category = "data_validation"
)

// Severity is the catalog severity of a finding code.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityNone    Severity = ""
)

// Finding is a structured validation or processing error.
type Finding struct {
	RowIndex int      `json:"rowIndex"`
	GroupKey string   `json:"groupKey,omitempty"`
	Field    string   `json:"field"`
	Category Category `json:"category"`
	Code     string   `json:"code"`
	Message  string   `json:"message,omitempty"`
}

// LedgerEntry is a persisted finding.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	FileID    int64     `json:"fileId"`
	Zone      Zone      `json:"zone"`
	RunID     string    `json:"runId"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
	Finding
}

// Batch is a parsed delimited file: the header plus cleaned cells keyed by column.
// An empty string is a null cell.
type Batch struct {
	Header []string
	Rows   []map[string]string
}

// Record is one zone row keyed by column name. Nil values are stored as NULL.
type Record map[string]any

// BronzeResult is a persisted bronze row annotated with the aggregated
// severity and messages of its findings.
type BronzeResult struct {
	ID       int64
	RowIndex int
	Values   map[string]string
	Severity Severity
	Messages string
}

// ScriptEntry is one row of the schema registry (sql_script_store).
type ScriptEntry struct {
	TableName   string   `json:"tableName"`
	QueryType   string   `json:"queryType"`
	Zone        Zone     `json:"zone"`
	Query       string   `json:"query"`
	DataColumns []string `json:"dataColumns"`
}

// QueryTypeCreate marks the creation statement of a registered table.
const QueryTypeCreate = "CREATE"
