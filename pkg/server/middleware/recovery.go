package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"taxlab-hq/ledger/pkg/api"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// Internal Server Error response. It logs the panic with stack trace but
// does not expose internal details to clients.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				_ = api.WriteErrorResponse(w, api.NewServerError(
					"An internal error occurred. Please try again later.",
				))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
