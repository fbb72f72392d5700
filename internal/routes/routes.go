package routes

import (
	"github.com/gin-gonic/gin"

	handler "transaction-sync-backend/internal/handlers"
)

func RegisterRoutes(r *gin.Engine, syncHandler *handler.SyncHandler) {
	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// External-scheduler trigger (bearer-secret protected)
	api.GET("/cron/sync", syncHandler.TriggerCron)
	api.POST("/cron/sync", syncHandler.TriggerCron)

	// Sync status and manual trigger
	syncRoutes := api.Group("/sync")
	syncRoutes.GET("", syncHandler.Status)
	syncRoutes.POST("", syncHandler.TriggerManual)
	syncRoutes.POST("/backfill", syncHandler.Backfill)
}
