// Package artifacts writes the per-run CSV mirrors of zone results so
// curators can inspect them without querying the store.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/fieldpipe/internal/config"
	"github.com/JonMunkholm/fieldpipe/internal/core"
)

// Sink stores a named artifact.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// NewSink returns the sink selected by cfg.Backend.
func NewSink(ctx context.Context, cfg config.ArtifactsConfig) (Sink, error) {
	switch strings.ToLower(cfg.Backend) {
	case "local":
		return NewLocalSink(cfg.OutputDir), nil
	case "s3":
		return NewS3Sink(ctx, S3Options{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown artifacts backend %q", cfg.Backend)
	}
}

// LocalSink writes artifacts into a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink returns a sink writing into dir, created on first use.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

// Put writes data to dir/name, replacing any previous artifact of that name.
// The content is written to a temporary file first so readers never see a
// partial artifact.
func (s *LocalSink) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// Name returns the artifact name for a source file and suffix, e.g.
// Name("fields.csv", "bronze_findings") is "fields_bronze_findings.csv".
func Name(filename, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return base + "_" + suffix + ".csv"
}

// CSV renders a header and rows as comma-separated bytes.
func CSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := core.WriteCSV(&buf, header, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// findingsHeader is the column layout of findings artifacts.
var findingsHeader = []string{"row_index", "group_key", "field_name", "error_type", "error_code", "error_severity", "error_message"}

// FindingsCSV renders findings with the catalog severity of each code.
func FindingsCSV(findings []core.Finding) ([]byte, error) {
	rows := make([][]string, len(findings))
	for i, f := range findings {
		info, _ := core.LookupCode(f.Code)
		rows[i] = []string{
			strconv.Itoa(f.RowIndex),
			f.GroupKey,
			f.Field,
			string(f.Category),
			f.Code,
			string(info.Severity),
			f.Message,
		}
	}
	return CSV(findingsHeader, rows)
}

// BronzeResultsCSV renders bronze rows with their aggregated severity and
// messages after the data columns.
func BronzeResultsCSV(columns []string, results []core.BronzeResult) ([]byte, error) {
	header := append(append([]string{"row_index"}, columns...), "error_severity", "error_message")

	rows := make([][]string, len(results))
	for i, r := range results {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(r.RowIndex))
		for _, c := range columns {
			row = append(row, r.Values[c])
		}
		row = append(row, string(r.Severity), r.Messages)
		rows[i] = row
	}
	return CSV(header, rows)
}

// RecordsCSV renders zone records in column order.
func RecordsCSV(columns []string, records []core.Record) ([]byte, error) {
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = core.FormatValue(rec[c])
		}
		rows[i] = row
	}
	return CSV(columns, rows)
}
