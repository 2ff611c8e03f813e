// Package quality runs the warehouse data quality checks: row counts,
// NULL checks on key columns, foreign-key orphans, value ranges,
// duplicate primary keys, and date consistency.
package quality

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/dataset"
	"github.com/olistflow/olistflow/pkg/metrics"
)

// Status classifies one check outcome.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
)

// Counter is the single warehouse capability the suite needs: run a
// query returning one count.
type Counter interface {
	CountQuery(ctx context.Context, query string) (int64, error)
}

// Result records one check outcome.
type Result struct {
	Check   string `json:"check"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Report aggregates a suite run.
type Report struct {
	Results  []Result      `json:"results"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Warnings int           `json:"warnings"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the run had no failures.
func (r *Report) OK() bool { return r.Failed == 0 }

// Suite runs data quality checks against the warehouse.
type Suite struct {
	db     Counter
	logger *zap.Logger
}

// New creates a quality suite.
func New(db Counter, logger *zap.Logger) *Suite {
	return &Suite{
		db:     db,
		logger: logger.With(zap.String("component", "quality")),
	}
}

// Run executes the full check suite.
func (s *Suite) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	checks := []func(context.Context, *Report) error{
		s.checkRowCounts,
		s.checkNulls,
		s.checkForeignKeys,
		s.checkRanges,
		s.checkDuplicates,
		s.checkDates,
	}

	for _, check := range checks {
		if err := check(ctx, report); err != nil {
			return report, err
		}
	}

	report.Duration = time.Since(start)
	s.logger.Info("quality run complete",
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Int("warnings", report.Warnings),
		zap.Duration("duration", report.Duration))

	return report, nil
}

func (s *Suite) record(report *Report, check string, status Status, message string) {
	report.Results = append(report.Results, Result{Check: check, Status: status, Message: message})
	metrics.QualityChecks.WithLabelValues(string(status)).Inc()
	switch status {
	case StatusPass:
		report.Passed++
	case StatusFail:
		report.Failed++
		s.logger.Warn("quality check failed", zap.String("check", check), zap.String("detail", message))
	case StatusWarn:
		report.Warnings++
	}
}

// checkRowCounts verifies every catalog table holds data.
func (s *Suite) checkRowCounts(ctx context.Context, report *Report) error {
	for _, table := range dataset.TableNames() {
		count, err := s.db.CountQuery(ctx, "SELECT COUNT(*) FROM "+table)
		if err != nil {
			return err
		}
		name := "row_count." + table
		if count > 0 {
			s.record(report, name, StatusPass, fmt.Sprintf("%d rows", count))
		} else {
			s.record(report, name, StatusFail, "empty table")
		}
	}
	return nil
}

// checkNulls verifies key columns carry no NULLs.
func (s *Suite) checkNulls(ctx context.Context, report *Report) error {
	targets := []struct{ table, column string }{
		{"customers_raw", "customer_id"},
		{"orders_raw", "order_id"},
		{"orders_raw", "customer_id"},
		{"order_items_raw", "order_id"},
		{"order_items_raw", "product_id"},
		{"products_raw", "product_id"},
		{"sellers_raw", "seller_id"},
	}

	for _, t := range targets {
		count, err := s.db.CountQuery(ctx, fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s IS NULL", t.table, t.column))
		if err != nil {
			return err
		}
		name := fmt.Sprintf("nulls.%s.%s", t.table, t.column)
		if count == 0 {
			s.record(report, name, StatusPass, "no NULLs")
		} else {
			s.record(report, name, StatusFail, fmt.Sprintf("%d NULL values", count))
		}
	}
	return nil
}

// checkForeignKeys looks for orphaned child rows.
func (s *Suite) checkForeignKeys(ctx context.Context, report *Report) error {
	targets := []struct{ name, query string }{
		{
			"fk.orders_to_customers",
			`SELECT COUNT(*) FROM orders_raw o
			 LEFT JOIN customers_raw c ON o.customer_id = c.customer_id
			 WHERE c.customer_id IS NULL`,
		},
		{
			"fk.order_items_to_orders",
			`SELECT COUNT(*) FROM order_items_raw oi
			 LEFT JOIN orders_raw o ON oi.order_id = o.order_id
			 WHERE o.order_id IS NULL`,
		},
	}

	for _, t := range targets {
		count, err := s.db.CountQuery(ctx, t.query)
		if err != nil {
			return err
		}
		if count == 0 {
			s.record(report, t.name, StatusPass, "no orphans")
		} else {
			s.record(report, t.name, StatusFail, fmt.Sprintf("%d orphaned rows", count))
		}
	}
	return nil
}

// checkRanges validates value ranges. Out-of-range review scores are a
// warning, negative prices a failure.
func (s *Suite) checkRanges(ctx context.Context, report *Report) error {
	count, err := s.db.CountQuery(ctx,
		"SELECT COUNT(*) FROM order_reviews_raw WHERE review_score NOT BETWEEN 1 AND 5")
	if err != nil {
		return err
	}
	if count == 0 {
		s.record(report, "range.review_score", StatusPass, "all scores in [1,5]")
	} else {
		s.record(report, "range.review_score", StatusWarn, fmt.Sprintf("%d scores out of range", count))
	}

	count, err = s.db.CountQuery(ctx,
		"SELECT COUNT(*) FROM order_items_raw WHERE price < 0")
	if err != nil {
		return err
	}
	if count == 0 {
		s.record(report, "range.price", StatusPass, "no negative prices")
	} else {
		s.record(report, "range.price", StatusFail, fmt.Sprintf("%d negative prices", count))
	}
	return nil
}

// checkDuplicates verifies primary key uniqueness.
func (s *Suite) checkDuplicates(ctx context.Context, report *Report) error {
	targets := []struct{ table, pk string }{
		{"customers_raw", "customer_id"},
		{"sellers_raw", "seller_id"},
		{"products_raw", "product_id"},
		{"orders_raw", "order_id"},
	}

	for _, t := range targets {
		count, err := s.db.CountQuery(ctx, fmt.Sprintf(
			"SELECT COUNT(*) - COUNT(DISTINCT %s) FROM %s", t.pk, t.table))
		if err != nil {
			return err
		}
		name := fmt.Sprintf("duplicates.%s.%s", t.table, t.pk)
		if count == 0 {
			s.record(report, name, StatusPass, "no duplicates")
		} else {
			s.record(report, name, StatusFail, fmt.Sprintf("%d duplicates", count))
		}
	}
	return nil
}

// checkDates verifies delivery dates never precede purchase.
func (s *Suite) checkDates(ctx context.Context, report *Report) error {
	count, err := s.db.CountQuery(ctx, `
		SELECT COUNT(*) FROM orders_raw
		WHERE order_delivered_customer_date < order_purchase_timestamp`)
	if err != nil {
		return err
	}
	if count == 0 {
		s.record(report, "dates.delivery_after_purchase", StatusPass, "all deliveries after purchase")
	} else {
		s.record(report, "dates.delivery_after_purchase", StatusFail,
			fmt.Sprintf("%d deliveries before purchase", count))
	}
	return nil
}
