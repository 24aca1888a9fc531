// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// The server chains middleware in this order:
//
//	handler = Recovery(Tracing(Logging(RequestID(InFlight(CORS(Timeout(handler)))))))
//
// Order (innermost to outermost):
//  1. Timeout: Bound the request context
//  2. CORS: Add Cross-Origin Resource Sharing headers
//  3. InFlight: Count requests being served
//  4. RequestID: Generate and propagate request ID
//  5. Logging: Log request/response details
//  6. Tracing: Start a server span (tracing.Tracer.HTTPMiddleware)
//  7. Recovery: Recover from panics
//
// # Request IDs
//
// RequestIDMiddleware reads X-Request-ID from the request or generates a
// UUID, stores it with logging.WithRequestID so every log record of the
// request carries it, and echoes it in the response header.
//
// # Error Format
//
// Middleware errors use the api package's error envelope:
//
//	{"error": {"message": "...", "type": "server_error", "code": "internal_error"}}
package middleware
