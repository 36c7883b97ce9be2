package main

import (
	"callkit-core/internal/auth"
	"callkit-core/internal/calls"
	"callkit-core/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic; handlers delegate to internal/.
func registerRoutes(r *gin.Engine, authManager *auth.Manager, callsSvc *calls.Service) {
	h := httpapi.Handlers{Calls: callsSvc}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Event ingress: push gateway and native shim deliveries.
	webhooks := r.Group("/webhooks")
	webhooks.Use(auth.RequireScope(authManager, auth.ScopeIngest))
	{
		webhooks.POST("/push/call", h.Ingest)
	}

	// Query surface for the telephony UI provider and app backends.
	v1 := r.Group("/v1")
	v1.Use(auth.RequireScope(authManager, auth.ScopeQuery))
	{
		v1.GET("/calls/current", h.GetCurrent)
		v1.GET("/calls/last", h.GetLastCallID)
		v1.GET("/calls/:session_id", h.GetCall)
		v1.GET("/calls/:session_id/history", h.GetHistory)
		v1.DELETE("/calls/:session_id", h.DeleteCall)
		v1.DELETE("/calls", h.ClearAll)
		v1.GET("/stats", h.GetStats)
	}
}
