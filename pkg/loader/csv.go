package loader

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/olistflow/olistflow/pkg/dataset"
	"github.com/olistflow/olistflow/pkg/errors"
)

// readCSV reads a CSV file fully, returning the header columns and the
// data rows converted for insertion (empty and NaN cells become nil).
// The header must match the catalog's column set; column order is taken
// from the file.
func readCSV(path string, table dataset.Table) ([]string, [][]any, error) {
	f, err := os.Open(path) //nolint:gosec // G304: file was just downloaded by us
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open CSV")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV header")
	}

	columns := make([]string, len(header))
	copy(columns, header)

	if err := validateHeader(columns, table); err != nil {
		return nil, nil, err
	}

	var rows [][]any
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrorTypeData,
				"failed to read CSV row").WithDetail("table", table.Name)
		}

		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = normalizeCell(cell)
		}
		rows = append(rows, row)
	}

	return columns, rows, nil
}

// validateHeader checks the file header against the catalog columns.
func validateHeader(columns []string, table dataset.Table) error {
	if len(columns) != len(table.Columns) {
		return errors.New(errors.ErrorTypeData, "unexpected CSV column count").
			WithDetail("table", table.Name).
			WithDetail("expected", len(table.Columns)).
			WithDetail("got", len(columns))
	}

	known := make(map[string]bool, len(table.Columns))
	for _, col := range table.Columns {
		known[col] = true
	}
	for _, col := range columns {
		if !known[col] {
			return errors.New(errors.ErrorTypeData, "unexpected CSV column").
				WithDetail("table", table.Name).
				WithDetail("column", col)
		}
	}
	return nil
}

// normalizeCell converts a raw CSV cell for insertion. Empty cells and
// NaN literals (pandas writes them for missing numerics) become SQL NULL.
func normalizeCell(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" || strings.EqualFold(trimmed, "nan") {
		return nil
	}
	return cell
}
