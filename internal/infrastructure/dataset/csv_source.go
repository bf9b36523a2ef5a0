package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// timeLayouts are tried in order when parsing timestamp columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CSVSource loads the pre-merged transaction dataset from a CSV file with
// a header row. It implements port.DatasetSource.
type CSVSource struct {
	path   string
	logger *slog.Logger
}

func NewCSVSource(path string, logger *slog.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger}
}

// Path returns the file the source reads.
func (s *CSVSource) Path() string { return s.path }

// Load reads and types every row. A missing or unreadable file yields
// *model.DataError.
func (s *CSVSource) Load(ctx context.Context) (model.RawDataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		reason := "cannot open dataset"
		if errors.Is(err, os.ErrNotExist) {
			reason = "dataset not found"
		}
		return model.RawDataset{}, &model.DataError{Path: s.path, Reason: reason, Err: err}
	}
	defer f.Close()

	ds, err := Parse(ctx, f, s.path)
	if err != nil {
		return model.RawDataset{}, err
	}

	s.logger.Info("dataset loaded",
		slog.String("path", s.path),
		slog.Int("rows", len(ds.Records)),
		slog.Int("columns", len(ds.Columns)),
	)
	return ds, nil
}

// Parse reads CSV from r. source names r in errors.
func Parse(ctx context.Context, r io.Reader, source string) (model.RawDataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.RawDataset{}, &model.DataError{Path: source, Reason: "dataset is empty"}
		}
		return model.RawDataset{}, &model.DataError{Path: source, Reason: "cannot read header", Err: err}
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := model.NormalizeColumn(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			return model.RawDataset{}, &model.DataError{Path: source, Reason: fmt.Sprintf("header column %d is blank", i+1)}
		}
		if seen[name] {
			return model.RawDataset{}, &model.DataError{Path: source, Reason: fmt.Sprintf("duplicate column %q", name)}
		}
		seen[name] = true
		columns[i] = name
	}

	ds := model.RawDataset{Source: source, Columns: columns}
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return model.RawDataset{}, err
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.RawDataset{}, &model.DataError{Path: source, Reason: fmt.Sprintf("line %d", line), Err: err}
		}

		rec, err := parseRow(columns, row)
		if err != nil {
			return model.RawDataset{}, &model.DataError{Path: source, Reason: fmt.Sprintf("line %d", line), Err: err}
		}
		ds.Records = append(ds.Records, rec)
	}

	return ds, nil
}

func parseRow(columns, row []string) (model.TransactionRecord, error) {
	rec := model.TransactionRecord{
		Identifiers: make(map[string]string),
		Numeric:     make(map[string]float64, len(columns)),
	}

	for i, col := range columns {
		cell := strings.TrimSpace(row[i])

		switch {
		case col == model.ColumnTimestamp || col == model.ColumnLastLogin:
			if cell == "" {
				continue
			}
			ts, err := ParseTime(cell)
			if err != nil {
				return rec, fmt.Errorf("column %q: %w", col, err)
			}
			if col == model.ColumnTimestamp {
				rec.Timestamp = &ts
			} else {
				rec.LastLogin = &ts
			}

		case col == model.ColumnCategory:
			if cell != "" {
				rec.Category = &cell
			}

		case col == model.ColumnLabel:
			if cell == "" {
				continue
			}
			v, ok := parseNumber(cell)
			if !ok {
				return rec, fmt.Errorf("column %q: label %q is not numeric", col, cell)
			}
			label := int(v)
			rec.Label = &label

		case model.IsIdentifierColumn(col):
			rec.Identifiers[col] = cell

		default:
			if cell == "" {
				continue
			}
			if v, ok := parseNumber(cell); ok {
				rec.Numeric[col] = v
			} else {
				rec.Identifiers[col] = cell
			}
		}
	}
	return rec, nil
}

// parseNumber accepts floats and booleans, which become 1 or 0.
func parseNumber(s string) (float64, bool) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return 1, true
	case "false", "no":
		return 0, true
	}
	return 0, false
}

// ParseTime parses the timestamp formats found in transaction exports.
// Values without a zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
