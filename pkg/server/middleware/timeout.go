package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds the request context by timeout. Handlers see
// the deadline through ctx and stop early; cached computations run on a
// detached context and are not affected. A zero timeout disables the
// middleware.
//
// Example usage:
//
//	handler = TimeoutMiddleware(cfg.Server.WriteTimeout)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
