package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/loyalty-backend/pkg/types"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000", // admin dashboard dev
	"http://localhost:5173", // member app dev
}

// CORS returns middleware that applies the configured origin policy. An empty
// list falls back to the local development origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", types.RequestIDHeader, "X-Requested-With"},
		ExposedHeaders:   []string{types.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
