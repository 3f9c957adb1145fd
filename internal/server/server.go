package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shipperhq/shopware-shipperhq/internal/events"
	"github.com/shipperhq/shopware-shipperhq/internal/telemetry"
	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Server is the HTTP server for the rate service.
type Server struct {
	port       int
	cache      *rates.RateCache
	filter     *rates.MethodFilter
	methods    rates.MethodCatalog
	dispatcher *events.Dispatcher
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
	gatherer   prometheus.Gatherer
}

// Config holds server configuration.
type Config struct {
	Port int
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Cache      *rates.RateCache
	Methods    rates.MethodCatalog
	Dispatcher *events.Dispatcher
	Metrics    *telemetry.Metrics
	// Gatherer backs /metrics, prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
}

// New creates a new server instance.
func New(cfg Config, deps Deps, logger *otelzap.Logger) *Server {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewDispatcher(deps.Cache, logger, metrics)
	}

	return &Server{
		port:       cfg.Port,
		cache:      deps.Cache,
		filter:     rates.NewMethodFilter(deps.Cache),
		methods:    deps.Methods,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		gatherer:   gatherer,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rates", s.handleGetRates)
		r.Post("/rates/{methodID}", s.handleGetRateForMethod)
		r.Post("/methods/filter", s.handleFilterMethods)
		r.Delete("/sessions/{sessionID}/rates", s.handleClearCache)
		r.Post("/events", s.handleEvent)
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
