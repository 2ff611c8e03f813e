// Package dashboard serves the analytics over HTTP: a small HTML index,
// JSON API endpoints backed by the warehouse queries, and Prometheus
// metrics.
package dashboard

import (
	"context"
	"html/template"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/analytics"
	"github.com/olistflow/olistflow/pkg/quality"
)

// AnalyticsProvider supplies the aggregation results the dashboard
// renders.
type AnalyticsProvider interface {
	OverviewMetrics(ctx context.Context) (*analytics.Overview, error)
	RevenueByState(ctx context.Context) ([]analytics.StateRevenue, error)
	CategoryPerformanceAll(ctx context.Context) ([]analytics.CategoryPerformance, error)
	DeliveryPerformance(ctx context.Context) (*analytics.DeliveryAnalysis, error)
}

// QualityProvider runs the data quality suite on demand.
type QualityProvider interface {
	Run(ctx context.Context) (*quality.Report, error)
}

// Server is the analytics HTTP server.
type Server struct {
	addr      string
	analytics AnalyticsProvider
	quality   QualityProvider
	logger    *zap.Logger
	tmpl      *template.Template
}

// New creates a dashboard server.
func New(addr string, a AnalyticsProvider, q QualityProvider, logger *zap.Logger) *Server {
	return &Server{
		addr:      addr,
		analytics: a,
		quality:   q,
		logger:    logger.With(zap.String("component", "dashboard")),
		tmpl:      template.Must(template.New("index").Parse(indexHTML)),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/overview", s.handleOverview)
	mux.HandleFunc("/api/revenue-by-state", s.handleRevenueByState)
	mux.HandleFunc("/api/categories", s.handleCategories)
	mux.HandleFunc("/api/delivery", s.handleDelivery)
	mux.HandleFunc("/api/quality", s.handleQuality)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve runs the server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	overview, err := s.analytics.OverviewMetrics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, overview); err != nil {
		s.logger.Error("failed to render index", zap.Error(err))
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.analytics.OverviewMetrics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, overview)
}

func (s *Server) handleRevenueByState(w http.ResponseWriter, r *http.Request) {
	rows, err := s.analytics.RevenueByState(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := s.analytics.CategoryPerformanceAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	result, err := s.analytics.DeliveryPerformance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	report, err := s.quality.Run(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>Olist E-Commerce Analytics</title></head>
<body>
<h1>Olist E-Commerce Analytics</h1>
<table border="1" cellpadding="6">
<tr><th>Orders</th><th>Customers</th><th>Revenue (R$)</th><th>Avg Review</th></tr>
<tr><td>{{.Orders}}</td><td>{{.Customers}}</td><td>{{printf "%.2f" .Revenue}}</td><td>{{printf "%.2f" .AvgReview}}</td></tr>
</table>
<h2>API</h2>
<ul>
<li><a href="/api/overview">/api/overview</a></li>
<li><a href="/api/revenue-by-state">/api/revenue-by-state</a></li>
<li><a href="/api/categories">/api/categories</a></li>
<li><a href="/api/delivery">/api/delivery</a></li>
<li><a href="/api/quality">/api/quality</a></li>
<li><a href="/metrics">/metrics</a></li>
</ul>
</body>
</html>
`
