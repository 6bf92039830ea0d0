package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/crediario/credits-backend/internal/middleware"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, auth *middleware.ServiceTokenAuth, rateLimiter *middleware.RateLimiter, creditHandler *CreditHandler, wsHandler *WebSocketHandler) {
	// API version 1
	api := e.Group("/api/v1")

	// Credit routes (protected, service-to-service)
	credits := api.Group("/credits")
	credits.Use(auth.Authenticate())
	credits.Use(middleware.RateLimitMiddleware(rateLimiter))
	credits.POST("/add", creditHandler.AddCredits)
	credits.POST("/consume", creditHandler.ConsumeCredits)
	credits.POST("/refund", creditHandler.RefundCredits)
	credits.POST("/expire", creditHandler.ExpireCredits)
	credits.POST("/renew", creditHandler.RenewCredits)
	credits.GET("/:tenantId/balance", creditHandler.GetBalance)
	credits.GET("/:tenantId/history", creditHandler.GetHistory)

	// WebSocket endpoint for credit events
	api.GET("/ws", wsHandler.HandleWS)
}
