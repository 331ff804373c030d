package agent

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

// requestIDHeader is the header checked for (and set with) a request id.
const requestIDHeader = "X-Request-Id"

// Interceptor wraps an http.Handler, timing every request and emitting an
// HttpEvent through the Publisher. It is built directly on chi's
// WrapResponseWriter, the same way the hub's own requestLogger middleware
// captures status code and bytes written.
func (a *Agent) Interceptor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" && a.cfg.InjectRequestID {
			requestID = uuid.NewString()
			r.Header.Set(requestIDHeader, requestID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, requestID))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if requestID != "" {
			ww.Header().Set(requestIDHeader, requestID)
		}

		defer func() {
			status := ww.Status()
			if rec := recover(); rec != nil {
				status = http.StatusInternalServerError
				if ww.Status() == 0 {
					ww.WriteHeader(status)
				}
				a.emitHTTPEvent(r, status, start, requestID)
				panic(rec)
			}
			a.emitHTTPEvent(r, status, start, requestID)
		}()

		next.ServeHTTP(ww, r)
	})
}

type requestIDContextKey struct{}

// RequestIDFromContext returns the request id set by Interceptor, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func (a *Agent) emitHTTPEvent(r *http.Request, status int, start time.Time, requestID string) {
	duration := time.Since(start).Seconds()
	path := "?"
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		path = rctx.RoutePattern()
	} else if a.cfg.PathNormalizer != nil {
		path = a.cfg.PathNormalizer(r.Method, r.URL.Path)
	}

	event := protocol.NewHTTPEvent(
		a.agentID,
		r.Method,
		path,
		status,
		duration,
		float64(time.Now().UnixNano())/1e9,
		int32(os.Getpid()),
		a.parentPID,
		requestID,
	)
	a.publisher.Send(event)
}
