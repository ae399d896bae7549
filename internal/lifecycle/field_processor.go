package lifecycle

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fieldpipe/internal/artifacts"
	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/logging"
	"github.com/JonMunkholm/fieldpipe/internal/metrics"
	"github.com/JonMunkholm/fieldpipe/internal/reference"
	"github.com/JonMunkholm/fieldpipe/internal/store"
	"github.com/JonMunkholm/fieldpipe/internal/transform"
	"github.com/JonMunkholm/fieldpipe/internal/validation"
)

// Schemas describes registered tables.
type Schemas interface {
	Describe(ctx context.Context, table string) (core.TableSchema, error)
}

// Runs persists zone runs and reads bronze results back.
type Runs interface {
	SaveRun(ctx context.Context, run store.ZoneRun) error
	BronzeResults(ctx context.Context, table string, columns []string, fileID int64) ([]core.BronzeResult, error)
}

// FieldConfig names the tables of the field pipeline.
type FieldConfig struct {
	BronzeTable    string
	SilverTable    string
	IgnoreWarnings bool
	Reference      reference.Settings
}

// FieldProcessor runs the zone stages of field master-data files.
type FieldProcessor struct {
	schemas Schemas
	runs    Runs
	engine  *validation.Engine
	api     reference.API
	sink    artifacts.Sink
	cfg     FieldConfig
}

// NewFieldProcessor returns a FieldProcessor. sink may be nil to skip
// artifacts.
func NewFieldProcessor(schemas Schemas, runs Runs, engine *validation.Engine, api reference.API, sink artifacts.Sink, cfg FieldConfig) *FieldProcessor {
	return &FieldProcessor{
		schemas: schemas,
		runs:    runs,
		engine:  engine,
		api:     api,
		sink:    sink,
		cfg:     cfg,
	}
}

// MissingColumns reads the file header and returns the reportable bronze
// columns it lacks. Extra columns are allowed. An empty file or a header
// that does not parse lacks all of them.
func (p *FieldProcessor) MissingColumns(ctx context.Context, file core.FileRecord) ([]string, error) {
	schema, err := p.schemas.Describe(ctx, p.cfg.BronzeTable)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file.Filepath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := core.ReadHeader(f)
	var perr *csv.ParseError
	if errors.Is(err, core.ErrEmptyFile) || errors.As(err, &perr) {
		logging.FromContext(ctx).Warn("unreadable header", "error", err)
		return schema.ReportableNames(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", file.Filename, err)
	}
	return core.MissingColumns(header, schema.ReportableNames()), nil
}

// ProcessBronze validates the file against the bronze schema and stores its
// rows as received, together with the findings, as a new bronze run.
func (p *FieldProcessor) ProcessBronze(ctx context.Context, file core.FileRecord) error {
	schema, err := p.schemas.Describe(ctx, p.cfg.BronzeTable)
	if err != nil {
		return err
	}

	batch, err := readBatch(file.Filepath)
	if err != nil {
		return err
	}

	findings := p.engine.Validate(batch, schema)

	columns := dataColumns(schema)
	records := make([]core.Record, len(batch.Rows))
	for i, row := range batch.Rows {
		rec := make(core.Record, len(columns))
		for _, c := range columns {
			rec[c] = row[c]
		}
		records[i] = rec
	}

	run := store.ZoneRun{
		FileID:   file.ID,
		Zone:     core.ZoneBronze,
		RunID:    uuid.New(),
		Table:    schema.Table,
		Columns:  columns,
		Records:  records,
		Findings: findings,
	}
	if err := p.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save bronze run: %w", err)
	}
	metrics.RecordFindings(string(core.ZoneBronze), findingCodes(findings))

	logging.FromContext(ctx).Info("bronze run saved",
		"run_id", run.RunID, "rows", len(records), "findings", len(findings))

	results, err := p.runs.BronzeResults(ctx, schema.Table, columns, file.ID)
	if err != nil {
		logging.FromContext(ctx).Error("bronze artifact skipped", "error", err)
		return nil
	}
	p.publish(ctx, artifacts.Name(file.Filename, "bronze_validation_results"), func() ([]byte, error) {
		return artifacts.BronzeResultsCSV(columns, results)
	})
	p.publish(ctx, artifacts.Name(file.Filename, "bronze_findings"), func() ([]byte, error) {
		return artifacts.FindingsCSV(findings)
	})
	return nil
}

// ProcessSilver transforms the accepted bronze rows into silver records with
// a fresh resolver, so reference lookups are memoized per file only.
func (p *FieldProcessor) ProcessSilver(ctx context.Context, file core.FileRecord) error {
	bronze, err := p.schemas.Describe(ctx, p.cfg.BronzeTable)
	if err != nil {
		return err
	}
	silver, err := p.schemas.Describe(ctx, p.cfg.SilverTable)
	if err != nil {
		return err
	}

	tr := transform.New(p.runs, reference.NewResolver(p.api, p.cfg.Reference), transform.Config{
		BronzeTable:    bronze.Table,
		BronzeColumns:  dataColumns(bronze),
		Silver:         silver,
		Columns:        transform.DefaultColumns(),
		IgnoreWarnings: p.cfg.IgnoreWarnings,
	})

	records, findings, err := tr.Transform(ctx, file.ID)
	if err != nil {
		return err
	}

	columns := dataColumns(silver)
	run := store.ZoneRun{
		FileID:   file.ID,
		Zone:     core.ZoneSilver,
		RunID:    uuid.New(),
		Table:    silver.Table,
		Columns:  columns,
		Records:  records,
		Findings: findings,
	}
	if err := p.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save silver run: %w", err)
	}
	metrics.RecordFindings(string(core.ZoneSilver), findingCodes(findings))

	logging.FromContext(ctx).Info("silver run saved",
		"run_id", run.RunID, "records", len(records), "findings", len(findings))

	p.publish(ctx, artifacts.Name(file.Filename, "silver_data_results"), func() ([]byte, error) {
		return artifacts.RecordsCSV(columns, records)
	})
	p.publish(ctx, artifacts.Name(file.Filename, "silver_findings"), func() ([]byte, error) {
		return artifacts.FindingsCSV(findings)
	})
	return nil
}

// publish renders and stores one artifact. Failures are logged; the zone
// data is already committed.
func (p *FieldProcessor) publish(ctx context.Context, name string, render func() ([]byte, error)) {
	if p.sink == nil {
		return
	}
	data, err := render()
	if err == nil {
		err = p.sink.Put(ctx, name, data)
	}
	if err != nil {
		logging.FromContext(ctx).Error("artifact not written", "artifact", name, "error", err)
	}
}

func readBatch(path string) (core.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Batch{}, err
	}
	defer f.Close()

	batch, err := core.ReadBatch(f)
	if err != nil {
		return core.Batch{}, fmt.Errorf("read %s: %w", path, err)
	}
	return batch, nil
}

// dataColumns returns the schema's columns that callers fill, in order.
func dataColumns(schema core.TableSchema) []string {
	var cols []string
	for _, c := range schema.Columns {
		if !store.IsSystemColumn(c.Name) {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

func findingCodes(findings []core.Finding) []string {
	codes := make([]string, len(findings))
	for i, f := range findings {
		codes[i] = core.BaseCode(f.Code)
	}
	return codes
}
