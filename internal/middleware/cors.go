// Package middleware provides HTTP middleware for the MediAI API.
package middleware

import (
	"net/http"
	"slices"

	"github.com/ashureev/mediai-broker/internal/identity"
	"github.com/go-chi/cors"
)

// CORS returns middleware that handles CORS headers.
// Credentials are only allowed when every origin is listed explicitly.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(allowedOrigins, "*")
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID", identity.SessionHeaderName},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}
