package graph

import "net/http"

// ConcurrencyLimit restricts the number of GraphQL requests admitted at
// once, so a burst cannot pile up estimate work and upstream connections.
// Excess requests are turned away immediately rather than queued, with the
// same GraphQL-shaped error body the admission proxy uses.
func ConcurrencyLimit(limit int) func(http.Handler) http.Handler {
	sem := make(chan struct{}, limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				next.ServeHTTP(w, r)
			default:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"errors":[{"message":"too many concurrent requests","extensions":{"code":"SERVER_BUSY"}}]}`))
			}
		})
	}
}
