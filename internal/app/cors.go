package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// useCORS lets the listed origins call the API with credentials, so the
// refresh cookie survives cross-origin requests. Without origins only
// same-origin browsers are served and no CORS headers are sent.
func useCORS(router gin.IRoutes, allowedOrigins []string) {
	if len(allowedOrigins) == 0 {
		return
	}

	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = allowedOrigins
	cfg.AllowCredentials = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.MaxAge = 12 * time.Hour
	router.Use(cors.New(cfg))
}
