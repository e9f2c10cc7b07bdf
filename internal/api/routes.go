package api

import (
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api/handlers/asset"
	"github.com/gin-gonic/gin"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

// RegisterRoutes mounts the asset API. auth must set the caller identity;
// limiter runs after it so counters are keyed by caller.
func RegisterRoutes(r *gin.Engine, h *asset.Handler, auth, limiter gin.HandlerFunc) {
	r.Use(corsMiddleware())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		assets := api.Group("/assets", auth, limiter)
		assets.POST("", h.Upload)
		assets.GET("", h.List)
		assets.GET("/stats", h.Stats)
		assets.GET("/:name", h.GetInfo)
		assets.GET("/:name/download", h.Download)
		assets.GET("/:name/thumbnail", h.Thumbnail)
		assets.DELETE("/:name", h.Delete)
	}
}
