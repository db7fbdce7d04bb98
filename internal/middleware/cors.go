package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows browser clients from allowedOrigins. An empty list
// or "*" allows every origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", idempotencyHeader, requestIDHeader}
	config.ExposeHeaders = []string{requestIDHeader}
	config.MaxAge = 12 * time.Hour

	if allowAll(allowedOrigins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}

	return cors.New(config)
}

// OriginChecker returns a websocket origin check that accepts the same
// origins as CORSMiddleware. Requests without an Origin header are not
// from browsers and pass.
func OriginChecker(allowedOrigins []string) func(*http.Request) bool {
	if allowAll(allowedOrigins) {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowedOrigins, origin)
	}
}

func allowAll(allowedOrigins []string) bool {
	return len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
}
