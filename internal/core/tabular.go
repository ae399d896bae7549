package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("empty file")

// ReadHeader reads only the header row of a delimited file.
func ReadHeader(r io.Reader) ([]string, error) {
	cr := newCSVReader(WrapForStreaming(r))
	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	return cleanHeader(header), nil
}

// ReadBatch parses a delimited file into a Batch. Cells are cleaned with
// CleanCell; rows that are entirely empty are skipped. Short rows leave the
// missing columns empty.
func ReadBatch(r io.Reader) (Batch, error) {
	cr := newCSVReader(WrapForStreaming(r))

	header, err := cr.Read()
	if err == io.EOF {
		return Batch{}, ErrEmptyFile
	}
	if err != nil {
		return Batch{}, fmt.Errorf("parse csv header: %w", err)
	}
	header = cleanHeader(header)

	batch := Batch{Header: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Batch{}, fmt.Errorf("parse csv line %d: %w", line, err)
		}
		if isEmptyRow(rec) {
			continue
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = CleanCell(rec[i])
			} else {
				row[col] = ""
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

// WriteCSV writes a header and rows to w.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// FormatValue renders a record value for CSV output. Nil renders empty.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = CleanCell(h)
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
