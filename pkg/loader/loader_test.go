package loader

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/dataset"
	s3store "github.com/olistflow/olistflow/pkg/storage/s3"
)

// fakeZone serves CSV content from memory, keyed by file name.
type fakeZone struct {
	files map[string]string
}

func (z *fakeZone) ListCSVKeys(ctx context.Context) ([]s3store.Object, error) {
	objects := make([]s3store.Object, 0, len(z.files))
	for name, content := range z.files {
		objects = append(objects, s3store.Object{
			Key:  "raw/" + name,
			Size: int64(len(content)),
		})
	}
	return objects, nil
}

func (z *fakeZone) DownloadToDir(ctx context.Context, key, dir string) (string, error) {
	name := path.Base(key)
	content, ok := z.files[name]
	if !ok {
		return "", os.ErrNotExist
	}
	dest := filepath.Join(dir, name)
	if err := os.WriteFile(dest, []byte(content), 0644); err != nil {
		return "", err
	}
	return dest, nil
}

// fakeDB records loader activity against in-memory row counts.
type fakeDB struct {
	missing   map[string]bool
	counts    map[string]int64
	truncated []string
	inserted  map[string][][]any
	loadOrder []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		missing:  make(map[string]bool),
		counts:   make(map[string]int64),
		inserted: make(map[string][][]any),
	}
}

func (db *fakeDB) TableExists(ctx context.Context, table string) (bool, error) {
	return !db.missing[table], nil
}

func (db *fakeDB) RowCount(ctx context.Context, table string) (int64, error) {
	return db.counts[table], nil
}

func (db *fakeDB) TruncateCascade(ctx context.Context, table string) error {
	db.truncated = append(db.truncated, table)
	db.counts[table] = 0
	return nil
}

func (db *fakeDB) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	db.inserted[table] = append(db.inserted[table], rows...)
	db.counts[table] += int64(len(rows))
	if len(db.loadOrder) == 0 || db.loadOrder[len(db.loadOrder)-1] != table {
		db.loadOrder = append(db.loadOrder, table)
	}
	return int64(len(rows)), nil
}

func sellersCSV() string {
	return "seller_id,seller_zip_code_prefix,seller_city,seller_state\n" +
		"s1,13023,campinas,SP\n" +
		"s2,87020,maringa,PR\n"
}

func customersCSV() string {
	return "customer_id,customer_unique_id,customer_zip_code_prefix,customer_city,customer_state\n" +
		"c1,u1,14409,franca,SP\n"
}

func ordersCSV() string {
	return "order_id,customer_id,order_status,order_purchase_timestamp," +
		"order_approved_at,order_delivered_carrier_date," +
		"order_delivered_customer_date,order_estimated_delivery_date\n" +
		"o1,c1,delivered,2017-10-02 10:56:33,2017-10-02 11:07:15," +
		"2017-10-04 19:55:00,2017-10-10 21:25:13,2017-10-18 00:00:00\n"
}

func newTestLoader(t *testing.T, zone *fakeZone, db *fakeDB, cfg config.LoaderConfig) *Loader {
	t.Helper()
	return New(zone, db, cfg, zaptest.NewLogger(t))
}

func TestLoadTable(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": sellersCSV(),
	}}
	db := newFakeDB()

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000, Truncate: true, SmartSkip: true})

	result, err := l.LoadTable(context.Background(), "sellers_raw")
	require.NoError(t, err)

	assert.Equal(t, "sellers_raw", result.Table)
	assert.Equal(t, int64(len(sellersCSV())), result.CSVBytes)
	assert.Equal(t, int64(2), result.CSVRows)
	assert.Equal(t, int64(2), result.RowsInserted)
	assert.Equal(t, int64(2), result.RowsAfter)
	assert.False(t, result.Skipped)
	assert.Equal(t, []any{"s1", "13023", "campinas", "SP"}, db.inserted["sellers_raw"][0])
	assert.Empty(t, db.truncated)
}

func TestLoadTableSmartSkip(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": sellersCSV(),
	}}
	db := newFakeDB()
	db.counts["sellers_raw"] = 2

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000, Truncate: true, SmartSkip: true})

	result, err := l.LoadTable(context.Background(), "sellers_raw")
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Zero(t, result.RowsInserted)
	assert.Empty(t, db.inserted["sellers_raw"])
	assert.Empty(t, db.truncated)
}

func TestLoadTableTruncatesStaleRows(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": sellersCSV(),
	}}
	db := newFakeDB()
	db.counts["sellers_raw"] = 7 // stale, does not match the CSV

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000, Truncate: true, SmartSkip: true})

	result, err := l.LoadTable(context.Background(), "sellers_raw")
	require.NoError(t, err)

	assert.Equal(t, []string{"sellers_raw"}, db.truncated)
	assert.Equal(t, int64(2), result.RowsInserted)
	assert.Equal(t, int64(7), result.RowsBefore)
	assert.Equal(t, int64(2), result.RowsAfter)
}

func TestLoadTableAppendMode(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": sellersCSV(),
	}}
	db := newFakeDB()
	db.counts["sellers_raw"] = 7

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000, Truncate: false, SmartSkip: false})

	_, err := l.LoadTable(context.Background(), "sellers_raw")
	require.NoError(t, err)

	assert.Empty(t, db.truncated)
	assert.Len(t, db.inserted["sellers_raw"], 2)
}

func TestLoadTableBatching(t *testing.T) {
	content := "seller_id,seller_zip_code_prefix,seller_city,seller_state\n"
	for i := 0; i < 5; i++ {
		content += "s" + string(rune('1'+i)) + ",13023,campinas,SP\n"
	}
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": content,
	}}
	db := newFakeDB()

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 2})

	result, err := l.LoadTable(context.Background(), "sellers_raw")
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.RowsInserted)
	assert.Len(t, db.inserted["sellers_raw"], 5)
}

func TestLoadTableMissingSchema(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": sellersCSV(),
	}}
	db := newFakeDB()
	db.missing["sellers_raw"] = true

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000})

	_, err := l.LoadTable(context.Background(), "sellers_raw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table does not exist")
}

func TestLoadTableUnknownTable(t *testing.T) {
	l := newTestLoader(t, &fakeZone{}, newFakeDB(), config.LoaderConfig{BatchSize: 1000})

	_, err := l.LoadTable(context.Background(), "bogus_raw")
	assert.Error(t, err)
}

func TestLoadTableNotInRawZone(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_customers_dataset.csv": customersCSV(),
	}}
	l := newTestLoader(t, zone, newFakeDB(), config.LoaderConfig{BatchSize: 1000})

	_, err := l.LoadTable(context.Background(), "sellers_raw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSV not found in raw zone")
}

func TestLoadAllDependencyOrder(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_orders_dataset.csv":    ordersCSV(),
		"olist_customers_dataset.csv": customersCSV(),
		"olist_sellers_dataset.csv":   sellersCSV(),
	}}
	db := newFakeDB()

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000})

	summary, err := l.LoadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Loaded)
	assert.Equal(t, int64(4), summary.Rows)
	// customers must land before orders regardless of listing order.
	assert.Equal(t, []string{"customers_raw", "sellers_raw", "orders_raw"}, db.loadOrder)

	// Raw zone object sizes travel into each table result.
	for _, r := range summary.Tables {
		assert.Positive(t, r.CSVBytes, "missing byte count for %s", r.Table)
	}
}

func TestLoadAllIgnoresUnknownCSVs(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": sellersCSV(),
		"random_export.csv":         "a,b\n1,2\n",
	}}
	db := newFakeDB()

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000})

	summary, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Loaded)
	assert.NotContains(t, db.inserted, "random_export")
}

func TestLoadAllEmptyRawZone(t *testing.T) {
	l := newTestLoader(t, &fakeZone{files: map[string]string{}}, newFakeDB(), config.LoaderConfig{BatchSize: 1000})

	_, err := l.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CSV objects found")
}

func TestLoadAllCountsSkips(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv":   sellersCSV(),
		"olist_customers_dataset.csv": customersCSV(),
	}}
	db := newFakeDB()
	db.counts["sellers_raw"] = 2 // already up to date

	l := newTestLoader(t, zone, db, config.LoaderConfig{BatchSize: 1000, SmartSkip: true})

	summary, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Tables, 2)
}

func TestLoadAllCancelled(t *testing.T) {
	zone := &fakeZone{files: map[string]string{
		"olist_sellers_dataset.csv": sellersCSV(),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newTestLoader(t, zone, newFakeDB(), config.LoaderConfig{BatchSize: 1})

	_, err := l.LoadAll(ctx)
	assert.Error(t, err)
}

func TestLoadOrderCoversCatalog(t *testing.T) {
	order, err := dataset.LoadOrder()
	require.NoError(t, err)
	assert.Len(t, order, len(dataset.Catalog))
}
