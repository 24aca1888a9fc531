package middleware

import "net/http"

// InFlightRecorder tracks requests being served. The metrics collector
// implements it.
type InFlightRecorder interface {
	RequestStarted()
	RequestFinished()
}

// InFlightMiddleware reports each request to recorder while it is served.
func InFlightMiddleware(recorder InFlightRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder.RequestStarted()
			defer recorder.RequestFinished()
			next.ServeHTTP(w, r)
		})
	}
}
