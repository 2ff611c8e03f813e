// Package loader implements the raw zone to warehouse bulk load. Tables
// are loaded in foreign-key order, unchanged tables are skipped (smart
// skip), duplicate rows are ignored via ON CONFLICT DO NOTHING, and
// NaN/empty source cells land as SQL NULL.
package loader

import (
	"context"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/dataset"
	"github.com/olistflow/olistflow/pkg/errors"
	"github.com/olistflow/olistflow/pkg/metrics"
	s3store "github.com/olistflow/olistflow/pkg/storage/s3"
)

// RawZone is the object-storage surface the loader reads from.
type RawZone interface {
	ListCSVKeys(ctx context.Context) ([]s3store.Object, error)
	DownloadToDir(ctx context.Context, key, dir string) (string, error)
}

// Database is the warehouse surface the loader writes to.
type Database interface {
	TableExists(ctx context.Context, table string) (bool, error)
	RowCount(ctx context.Context, table string) (int64, error)
	TruncateCascade(ctx context.Context, table string) error
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// TableResult records the outcome of loading one table.
type TableResult struct {
	Table        string        `json:"table"`
	CSVFile      string        `json:"csv_file"`
	CSVBytes     int64         `json:"csv_bytes"`
	CSVRows      int64         `json:"csv_rows"`
	RowsBefore   int64         `json:"rows_before"`
	RowsAfter    int64         `json:"rows_after"`
	RowsInserted int64         `json:"rows_inserted"`
	Skipped      bool          `json:"skipped"`
	Duration     time.Duration `json:"duration"`
}

// Summary aggregates a full load run.
type Summary struct {
	Tables   []TableResult `json:"tables"`
	Loaded   int           `json:"loaded"`
	Skipped  int           `json:"skipped"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Loader moves CSVs from the raw zone into the warehouse.
type Loader struct {
	zone      RawZone
	db        Database
	batchSize int
	truncate  bool
	smartSkip bool
	logger    *zap.Logger
}

// New creates a bulk loader.
func New(zone RawZone, db Database, cfg config.LoaderConfig, logger *zap.Logger) *Loader {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Loader{
		zone:      zone,
		db:        db,
		batchSize: batchSize,
		truncate:  cfg.Truncate,
		smartSkip: cfg.SmartSkip,
		logger:    logger.With(zap.String("component", "loader")),
	}
}

// LoadAll loads every catalog table found in the raw zone, in
// dependency order. Raw zone CSVs that are not part of the catalog are
// logged and ignored.
func (l *Loader) LoadAll(ctx context.Context) (*Summary, error) {
	start := time.Now()

	objects, err := l.zone.ListCSVKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound, "no CSV objects found in raw zone")
	}

	keys := make(map[string]s3store.Object, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if _, ok := dataset.ByCSVFile(name); !ok {
			l.logger.Warn("ignoring unknown CSV in raw zone", zap.String("key", obj.Key))
			continue
		}
		keys[name] = obj
	}

	order, err := dataset.LoadOrder()
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "olistflow-load-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create temp directory")
	}
	defer os.RemoveAll(tmpDir)

	summary := &Summary{}
	for _, table := range order {
		obj, ok := keys[table.CSVFile]
		if !ok {
			l.logger.Warn("CSV missing from raw zone, skipping table",
				zap.String("table", table.Name),
				zap.String("csv", table.CSVFile))
			continue
		}

		result, err := l.loadTable(ctx, table, obj, tmpDir)
		if err != nil {
			return summary, err
		}

		summary.Tables = append(summary.Tables, *result)
		if result.Skipped {
			summary.Skipped++
		} else {
			summary.Loaded++
			summary.Rows += result.RowsInserted
		}
	}

	summary.Duration = time.Since(start)
	l.logger.Info("load run complete",
		zap.Int("loaded", summary.Loaded),
		zap.Int("skipped", summary.Skipped),
		zap.Int64("rows", summary.Rows),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// LoadTable loads a single catalog table by warehouse table name.
func (l *Loader) LoadTable(ctx context.Context, tableName string) (*TableResult, error) {
	table, ok := dataset.ByName(tableName)
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound,
			"table is not part of the dataset catalog").WithDetail("table", tableName)
	}

	objects, err := l.zone.ListCSVKeys(ctx)
	if err != nil {
		return nil, err
	}

	var found *s3store.Object
	for i, obj := range objects {
		if path.Base(obj.Key) == table.CSVFile {
			found = &objects[i]
			break
		}
	}
	if found == nil {
		return nil, errors.New(errors.ErrorTypeNotFound,
			"CSV not found in raw zone").WithDetail("csv", table.CSVFile)
	}

	tmpDir, err := os.MkdirTemp("", "olistflow-load-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create temp directory")
	}
	defer os.RemoveAll(tmpDir)

	return l.loadTable(ctx, table, *found, tmpDir)
}

func (l *Loader) loadTable(ctx context.Context, table dataset.Table, obj s3store.Object, tmpDir string) (*TableResult, error) {
	start := time.Now()
	log := l.logger.With(zap.String("table", table.Name))

	exists, err := l.db.TableExists(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound,
			"table does not exist, create the schema first").WithDetail("table", table.Name)
	}

	localPath, err := l.zone.DownloadToDir(ctx, obj.Key, tmpDir)
	if err != nil {
		return nil, err
	}

	columns, rows, err := readCSV(localPath, table)
	if err != nil {
		return nil, err
	}

	result := &TableResult{
		Table:    table.Name,
		CSVFile:  table.CSVFile,
		CSVBytes: obj.Size,
		CSVRows:  int64(len(rows)),
	}

	if len(rows) == 0 {
		log.Warn("CSV is empty, skipping")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result, nil
	}

	dbRows, err := l.db.RowCount(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	result.RowsBefore = dbRows

	// Smart skip: matching row counts mean the table is already
	// up to date with the raw zone.
	if l.smartSkip && dbRows == result.CSVRows {
		log.Info("table up to date, skipping",
			zap.Int64("rows", dbRows))
		metrics.TablesSkipped.WithLabelValues(table.Name).Inc()
		result.Skipped = true
		result.RowsAfter = dbRows
		result.Duration = time.Since(start)
		return result, nil
	}

	if l.truncate && dbRows > 0 {
		log.Info("truncating before load", zap.Int64("stale_rows", dbRows))
		if err := l.db.TruncateCascade(ctx, table.Name); err != nil {
			return nil, err
		}
	}

	log.Info("loading table",
		zap.Int64("csv_bytes", result.CSVBytes),
		zap.Int64("csv_rows", result.CSVRows),
		zap.Int("batch_size", l.batchSize))

	for offset := 0; offset < len(rows); offset += l.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "load cancelled")
		}

		end := offset + l.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		inserted, err := l.db.InsertRows(ctx, table.Name, columns, rows[offset:end])
		if err != nil {
			return nil, err
		}
		result.RowsInserted += inserted
	}

	metrics.RowsLoaded.WithLabelValues(table.Name).Add(float64(result.RowsInserted))

	after, err := l.db.RowCount(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	result.RowsAfter = after
	result.Duration = time.Since(start)
	metrics.LoadDuration.WithLabelValues(table.Name).Observe(result.Duration.Seconds())

	// Duplicate source rows fall out through ON CONFLICT DO NOTHING,
	// so the warehouse may legitimately hold fewer rows than the CSV.
	if after < result.CSVRows {
		log.Warn("row count below source after load",
			zap.Int64("csv_rows", result.CSVRows),
			zap.Int64("db_rows", after))
	}

	log.Info("table loaded",
		zap.Int64("rows_inserted", result.RowsInserted),
		zap.Duration("duration", result.Duration))

	return result, nil
}
