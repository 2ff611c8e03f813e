// Package analytics runs the warehouse aggregation queries: revenue by
// customer state, product category performance, and the delivery-time
// versus review-score regression.
package analytics

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/errors"
)

// StateRevenue summarizes revenue for one customer state.
type StateRevenue struct {
	State         string  `json:"state"`
	TotalRevenue  float64 `json:"total_revenue"`
	OrderCount    int64   `json:"order_count"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// CategoryPerformance summarizes sales for one product category.
type CategoryPerformance struct {
	Category     string  `json:"category"`
	ItemsSold    int64   `json:"items_sold"`
	TotalRevenue float64 `json:"total_revenue"`
	AvgPrice     float64 `json:"avg_price"`
	AvgReview    float64 `json:"avg_review"`
}

// DeliveryBucket aggregates review scores for one delivery-time bucket.
type DeliveryBucket struct {
	DeliveryDays int     `json:"delivery_days"`
	AvgReview    float64 `json:"avg_review"`
	OrderCount   int64   `json:"order_count"`
}

// DeliveryAnalysis couples the regression with its per-day aggregates.
type DeliveryAnalysis struct {
	Regression Regression       `json:"regression"`
	Buckets    []DeliveryBucket `json:"buckets"`
}

// Overview holds the headline warehouse numbers for the dashboard.
type Overview struct {
	Orders    int64   `json:"orders"`
	Customers int64   `json:"customers"`
	Revenue   float64 `json:"revenue"`
	AvgReview float64 `json:"avg_review"`
}

// Analyzer runs aggregation queries against the warehouse.
type Analyzer struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates an analyzer over a warehouse pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		pool:   pool,
		logger: logger.With(zap.String("component", "analytics")),
	}
}

// RevenueByState aggregates revenue per customer state, highest first.
func (a *Analyzer) RevenueByState(ctx context.Context) ([]StateRevenue, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT c.customer_state,
		       COALESCE(SUM(p.payment_value), 0)  AS total_revenue,
		       COUNT(DISTINCT o.order_id)         AS order_count,
		       COALESCE(AVG(p.payment_value), 0)  AS avg_order_value
		FROM orders_raw o
		JOIN customers_raw c ON o.customer_id = c.customer_id
		LEFT JOIN order_payments_raw p ON o.order_id = p.order_id
		GROUP BY c.customer_state
		ORDER BY total_revenue DESC`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "revenue by state query failed")
	}
	defer rows.Close()

	var out []StateRevenue
	for rows.Next() {
		var r StateRevenue
		if err := rows.Scan(&r.State, &r.TotalRevenue, &r.OrderCount, &r.AvgOrderValue); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan state revenue")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CategoryPerformanceAll aggregates sales per English category name,
// highest revenue first. Categories without a translation are dropped,
// matching the source report.
func (a *Analyzer) CategoryPerformanceAll(ctx context.Context) ([]CategoryPerformance, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT t.product_category_name_english,
		       COUNT(i.order_item_id)            AS items_sold,
		       COALESCE(SUM(i.price), 0)         AS total_revenue,
		       COALESCE(AVG(i.price), 0)         AS avg_price,
		       COALESCE(AVG(r.review_score), 0)  AS avg_review
		FROM order_items_raw i
		LEFT JOIN products_raw p ON i.product_id = p.product_id
		LEFT JOIN product_category_name_translation_raw t
		       ON p.product_category_name = t.product_category_name
		LEFT JOIN order_reviews_raw r ON i.order_id = r.order_id
		WHERE t.product_category_name_english IS NOT NULL
		GROUP BY t.product_category_name_english
		ORDER BY total_revenue DESC`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "category performance query failed")
	}
	defer rows.Close()

	var out []CategoryPerformance
	for rows.Next() {
		var c CategoryPerformance
		if err := rows.Scan(&c.Category, &c.ItemsSold, &c.TotalRevenue, &c.AvgPrice, &c.AvgReview); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan category performance")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BestRatedCategories filters category performance down to categories
// with at least minSales items, sorted by average review descending.
func BestRatedCategories(all []CategoryPerformance, minSales int64) []CategoryPerformance {
	out := make([]CategoryPerformance, 0, len(all))
	for _, c := range all {
		if c.ItemsSold >= minSales {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AvgReview > out[j].AvgReview
	})
	return out
}

// DeliveryPerformance regresses review scores on delivery time and
// aggregates average review per whole delivery day. Delivery time is
// truncated to whole days and sub-day deliveries are excluded, matching
// the source report.
func (a *Analyzer) DeliveryPerformance(ctx context.Context) (*DeliveryAnalysis, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT FLOOR(EXTRACT(EPOCH FROM (o.order_delivered_customer_date - o.order_purchase_timestamp)) / 86400.0),
		       r.review_score
		FROM orders_raw o
		JOIN order_reviews_raw r ON o.order_id = r.order_id
		WHERE o.order_delivered_customer_date IS NOT NULL
		  AND o.order_purchase_timestamp IS NOT NULL
		  AND r.review_score IS NOT NULL
		  AND o.order_delivered_customer_date - o.order_purchase_timestamp >= INTERVAL '1 day'`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "delivery performance query failed")
	}
	defer rows.Close()

	var days, scores []float64
	for rows.Next() {
		var d, s float64
		if err := rows.Scan(&d, &s); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan delivery pair")
		}
		days = append(days, d)
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "delivery performance scan failed")
	}

	reg, err := Linregress(days, scores)
	if err != nil {
		return nil, err
	}

	a.logger.Info("delivery regression fitted",
		zap.Int("orders", len(days)),
		zap.Float64("slope", reg.Slope),
		zap.Float64("r_squared", reg.RSquared))

	return &DeliveryAnalysis{
		Regression: reg,
		Buckets:    bucketByDay(days, scores),
	}, nil
}

// bucketByDay averages review scores per whole delivery day.
func bucketByDay(days, scores []float64) []DeliveryBucket {
	sums := make(map[int]float64)
	counts := make(map[int]int64)
	maxDay := 0

	for i, d := range days {
		day := int(d)
		sums[day] += scores[i]
		counts[day]++
		if day > maxDay {
			maxDay = day
		}
	}

	buckets := make([]DeliveryBucket, 0, len(counts))
	for day := 0; day <= maxDay; day++ {
		if counts[day] == 0 {
			continue
		}
		buckets = append(buckets, DeliveryBucket{
			DeliveryDays: day,
			AvgReview:    sums[day] / float64(counts[day]),
			OrderCount:   counts[day],
		})
	}
	return buckets
}

// OverviewMetrics returns the headline numbers for the dashboard.
func (a *Analyzer) OverviewMetrics(ctx context.Context) (*Overview, error) {
	var o Overview
	err := a.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM orders_raw),
		       (SELECT COUNT(*) FROM customers_raw),
		       (SELECT COALESCE(SUM(payment_value), 0) FROM order_payments_raw),
		       (SELECT COALESCE(AVG(review_score), 0) FROM order_reviews_raw)`).
		Scan(&o.Orders, &o.Customers, &o.Revenue, &o.AvgReview)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "overview query failed")
	}
	return &o, nil
}
