package quality

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olistflow/olistflow/pkg/testutil"
)

// fakeCounter answers count queries by substring match, defaulting to
// the configured base count.
type fakeCounter struct {
	base    int64
	answers map[string]int64
	err     error
	queries []string
}

func (f *fakeCounter) CountQuery(ctx context.Context, query string) (int64, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return 0, f.err
	}
	for fragment, count := range f.answers {
		if strings.Contains(query, fragment) {
			return count, nil
		}
	}
	return f.base, nil
}

// healthyCounter simulates a populated, clean warehouse: every table
// has rows, and every defect query finds nothing.
func healthyCounter() *fakeCounter {
	return &fakeCounter{
		base: 100,
		answers: map[string]int64{
			"IS NULL":        0,
			"NOT BETWEEN":    0,
			"price < 0":      0,
			"COUNT(DISTINCT": 0,
			"order_delivered_customer_date < order_purchase_timestamp": 0,
		},
	}
}

func TestRunAllPass(t *testing.T) {
	db := healthyCounter()
	suite := New(db, testutil.TestLogger(t))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	report, err := suite.Run(ctx)
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Warnings)
	// 9 row counts + 7 null checks + 2 FK checks + 2 ranges + 4 duplicates + 1 dates.
	assert.Equal(t, 25, report.Passed)
	assert.Len(t, report.Results, 25)
}

func TestRunEmptyTableFails(t *testing.T) {
	db := healthyCounter()
	db.answers["FROM orders_raw"] = 0

	suite := New(db, testutil.TestLogger(t))
	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.GreaterOrEqual(t, report.Failed, 1)

	var found bool
	for _, r := range report.Results {
		if r.Check == "row_count.orders_raw" {
			found = true
			assert.Equal(t, StatusFail, r.Status)
		}
	}
	assert.True(t, found)
}

func TestRunNullsFail(t *testing.T) {
	db := healthyCounter()
	db.answers["IS NULL"] = 12

	suite := New(db, testutil.TestLogger(t))
	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.OK())
	// Both null targets and FK orphan queries match "IS NULL".
	assert.GreaterOrEqual(t, report.Failed, 7)
}

func TestRunReviewScoreOutOfRangeWarns(t *testing.T) {
	db := healthyCounter()
	db.answers["NOT BETWEEN"] = 3

	suite := New(db, testutil.TestLogger(t))
	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	// A warning alone does not fail the run.
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Warnings)

	for _, r := range report.Results {
		if r.Check == "range.review_score" {
			assert.Equal(t, StatusWarn, r.Status)
			assert.Contains(t, r.Message, "3 scores out of range")
		}
	}
}

func TestRunNegativePriceFails(t *testing.T) {
	db := healthyCounter()
	db.answers["price < 0"] = 1

	suite := New(db, testutil.TestLogger(t))
	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.OK())
}

func TestRunDuplicatesFail(t *testing.T) {
	db := healthyCounter()
	db.answers["COUNT(DISTINCT"] = 5

	suite := New(db, testutil.TestLogger(t))
	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Failed)
}

func TestRunQueryError(t *testing.T) {
	db := &fakeCounter{err: errors.New("connection lost")}

	suite := New(db, testutil.TestLogger(t))
	_, err := suite.Run(context.Background())
	assert.Error(t, err)
}

func TestRunCoversEveryCatalogTable(t *testing.T) {
	db := healthyCounter()
	suite := New(db, testutil.TestLogger(t))

	_, err := suite.Run(context.Background())
	require.NoError(t, err)

	joined := strings.Join(db.queries, "\n")
	for _, table := range []string{
		"customers_raw", "sellers_raw", "products_raw", "geolocation_raw",
		"product_category_name_translation_raw", "orders_raw",
		"order_items_raw", "order_payments_raw", "order_reviews_raw",
	} {
		assert.Contains(t, joined, table)
	}
}
