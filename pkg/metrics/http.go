package metrics

import "time"

// HTTPMetrics provides observability for the HTTP API.
//
// This interface is optional - if not provided to the API server, a no-op
// implementation is used with zero overhead.
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - route: Route pattern (e.g., "/api/admin/upload"), never the raw path
	//   - status: HTTP status code written
	//   - duration: Time taken to serve the request
	RecordRequest(route string, status int, duration time.Duration)

	// RecordRateLimited increments the rejected-by-rate-limit counter.
	RecordRateLimited(route string)

	// RecordAuthFailure increments the failed authentication counter.
	RecordAuthFailure(route string)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(route string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRateLimited(route string)                                {}
func (noopHTTPMetrics) RecordAuthFailure(route string)                                {}
