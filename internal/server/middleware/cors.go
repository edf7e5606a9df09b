package middleware

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// CORS allows cross-origin calls from allowedOrigins, or from anywhere when
// the list is empty.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", ResolverKeyHeader, OracleSignatureHeader},
		MaxAge:         int((24 * time.Hour).Seconds()),
	})
	return c.Handler
}
