package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// APIServer serves the hub's small JSON surface: a liveness root and the
// full state snapshot at /state. Kept on its own HTTP server, separate
// from the exposition server's Prometheus /metrics, so the two text
// formats never collide on one path.
type APIServer struct {
	httpSrv *http.Server
	logger  *zap.Logger
}

// NewAPIServer builds an APIServer bound to addr, backed by state.
func NewAPIServer(addr string, state *State, logger *zap.Logger) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("apiserver")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "dashfleet hub running"})
	})
	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state.Dict())
	})

	return &APIServer{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine.
func (s *APIServer) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server stopped unexpectedly", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server within ctx's deadline.
func (s *APIServer) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger wraps the response writer and logs method/path/status/
// duration/request-id once the handler returns, the same shape as the
// teacher's api.RequestLogger middleware.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
