package middleware

type contextKey string

// startTimeKey stores the request start time for latency calculation.
const startTimeKey contextKey = "start_time"
