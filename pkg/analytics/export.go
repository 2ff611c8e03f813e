package analytics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/olistflow/olistflow/pkg/errors"
)

// ExportStateRevenue writes revenue-by-state results to a CSV file in
// dir. With compress set, the file is gzip-compressed and named with a
// .gz suffix. Returns the written path.
func ExportStateRevenue(dir string, rows []StateRevenue, compress bool) (string, error) {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{"customer_state", "total_revenue", "order_count", "avg_order_value"})
	for _, r := range rows {
		records = append(records, []string{
			r.State,
			strconv.FormatFloat(r.TotalRevenue, 'f', 2, 64),
			strconv.FormatInt(r.OrderCount, 10),
			strconv.FormatFloat(r.AvgOrderValue, 'f', 2, 64),
		})
	}
	return writeCSV(dir, "revenue_by_state.csv", records, compress)
}

// ExportCategoryPerformance writes category performance results to a
// CSV file in dir.
func ExportCategoryPerformance(dir string, rows []CategoryPerformance, compress bool) (string, error) {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{"category", "items_sold", "total_revenue", "avg_price", "avg_review"})
	for _, c := range rows {
		records = append(records, []string{
			c.Category,
			strconv.FormatInt(c.ItemsSold, 10),
			strconv.FormatFloat(c.TotalRevenue, 'f', 2, 64),
			strconv.FormatFloat(c.AvgPrice, 'f', 2, 64),
			strconv.FormatFloat(c.AvgReview, 'f', 2, 64),
		})
	}
	return writeCSV(dir, "category_performance.csv", records, compress)
}

func writeCSV(dir, name string, records [][]string, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory")
	}

	path := filepath.Join(dir, name)
	if compress {
		path += ".gz"
	}

	f, err := os.Create(path) //nolint:gosec // G304: fixed name inside output dir
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create export file")
	}
	defer f.Close()

	var out io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		out = gz
	}

	w := csv.NewWriter(out)
	if err := w.WriteAll(records); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write export CSV")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to flush export CSV")
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to close gzip stream")
		}
	}

	return path, nil
}
