// Package logging configures Ledger's structured logger.
//
// New returns a *slog.Logger writing JSON or text. Its handler copies
// request-scoped fields from the context onto every record logged with
// one of the *Context methods:
//
//	ctx = logging.WithRequestID(ctx, id)
//	ctx = logging.WithCountry(ctx, "uk")
//	logger.InfoContext(ctx, "request served", "status", 200)
//	// {"level":"INFO","msg":"request served","status":200,"request_id":"...","country":"uk"}
//
// Background tasks keep the fields of the request that queued them, along
// with the trace and span IDs of any active span.
package logging
