package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns middleware that applies the API's allowed origin policy.
// Storefronts live on tenant subdomains, so the origin list is a suffix
// wildcard over the base domain plus local dev.
func CORS(baseDomain string) func(http.Handler) http.Handler {
	origins := []string{"http://localhost:3000"}
	if baseDomain != "" {
		origins = append(origins,
			"https://"+baseDomain,
			"https://*."+baseDomain,
		)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Marketplace-Key", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
