package logging

import "context"

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	CountryKey   contextKey = "country"
	EndpointKey  contextKey = "endpoint"
	CacheKeyKey  contextKey = "cache_key"
)

// contextFields are the request fields copied into records, in order.
var contextFields = []struct {
	key contextKey
	get func(context.Context) string
}{
	{RequestIDKey, GetRequestID},
	{CountryKey, GetCountry},
	{EndpointKey, GetEndpoint},
	{CacheKeyKey, GetCacheKey},
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithCountry adds the country model serving the request.
func WithCountry(ctx context.Context, country string) context.Context {
	return context.WithValue(ctx, CountryKey, country)
}

func GetCountry(ctx context.Context) string {
	return stringValue(ctx, CountryKey)
}

// WithEndpoint adds the API endpoint name, e.g. "population_reform".
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, EndpointKey, endpoint)
}

func GetEndpoint(ctx context.Context) string {
	return stringValue(ctx, EndpointKey)
}

// WithCacheKey adds the cache key of a memoised computation.
func WithCacheKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, CacheKeyKey, key)
}

func GetCacheKey(ctx context.Context) string {
	return stringValue(ctx, CacheKeyKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
