package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/impact"
	"github.com/goquant/tradesim/internal/observability"
	"github.com/goquant/tradesim/internal/perf"
	"github.com/goquant/tradesim/internal/portfolio"
	"github.com/goquant/tradesim/internal/sim"
)

// bookDepth is how many levels per side book snapshots expose over HTTP.
const bookDepth = 20

// Server exposes the simulator over HTTP: order submission and
// cancellation, book and portfolio snapshots, impact previews and latency
// metrics.
type Server struct {
	pipelines map[string]*sim.Pipeline
	ledger    *portfolio.Ledger
	monitor   *perf.Monitor
	model     *impact.Model
	health    *observability.HealthChecker
	logger    *zap.Logger
}

// NewServer wires the API against the running pipelines.
func NewServer(
	pipelines map[string]*sim.Pipeline,
	ledger *portfolio.Ledger,
	monitor *perf.Monitor,
	model *impact.Model,
	health *observability.HealthChecker,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipelines: pipelines,
		ledger:    ledger,
		monitor:   monitor,
		model:     model,
		health:    health,
		logger:    logger,
	}
}

// Router builds the chi router with all routes and middleware registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogging)

	r.Get("/healthz", s.health.Handler())

	r.Post("/orders", s.handleSubmitOrder)
	r.Get("/orders/{order_id}", s.handleGetOrder)
	r.Delete("/orders/{order_id}", s.handleCancelOrder)

	r.Get("/book/{symbol}", s.handleGetBook)

	r.Get("/portfolio", s.handleGetPortfolio)
	r.Get("/portfolio/equity", s.handleGetEquityCurve)

	r.Get("/metrics/latency", s.handleGetLatency)

	r.Get("/impact/estimate", s.handleImpactEstimate)
	r.Get("/impact/schedule", s.handleImpactSchedule)

	return r
}

// requestLogging logs each request's method, path, status and duration.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}
