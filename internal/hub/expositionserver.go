package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ExpositionServer serves the Prometheus text-exposition endpoint. The
// Exposition collector is registered into a dedicated registry exactly
// once at construction; Aggregate then mutates its accumulators in place
// and every scrape's Collect reads them without re-registering.
type ExpositionServer struct {
	httpSrv *http.Server
	logger  *zap.Logger
}

// NewExpositionServer builds an ExpositionServer bound to addr, serving
// exp's metrics at /metrics.
func NewExpositionServer(addr string, exp *Exposition, logger *zap.Logger) (*ExpositionServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(exp); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &ExpositionServer{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("expositionserver"),
	}, nil
}

// Start begins serving in a background goroutine. Bind failures are logged
// (ErrServerClosed is expected on a clean Stop and is not logged).
func (s *ExpositionServer) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("exposition server stopped unexpectedly", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server within ctx's deadline.
func (s *ExpositionServer) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
