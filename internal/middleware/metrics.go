package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestObserver receives request measurements, see infra/metrics.
type RequestObserver interface {
	RequestStarted()
	ObserveRequest(method, route string, code int, elapsed time.Duration)
}

// MetricsMiddleware reports every request to obs, labelled with the chi
// route pattern once routing is done.
func MetricsMiddleware(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			obs.RequestStarted()
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			obs.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
