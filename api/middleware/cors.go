package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// localOrigins serve the web client during development.
var localOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS applies the browser origin policy. Clients need to read the retry
// and replay headers the write routes set, so those are exposed.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = localOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, RequestIDHeader},
		ExposedHeaders: []string{
			RequestIDHeader,
			replayedHeader,
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
