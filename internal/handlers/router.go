package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"complaint-portal/internal/portal"
	"complaint-portal/internal/telemetry"
)

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, m *telemetry.Metrics) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := portal.RegisterValidations(v); err != nil {
			h.logger.WithError(err).Fatal("Failed to register validations")
		}
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), RequestID(), m.Middleware())

	// Health endpoints
	router.GET("/healthz", h.HealthCheck)
	router.GET("/readyz", h.ReadinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public portal
	api := router.Group("/api")
	api.POST("/complaints", h.SubmitComplaint)
	api.GET("/complaints/:id/track", h.TrackComplaint)

	// Admin dashboard
	admin := router.Group("/admin", AdminAuth(h.config.AdminPassword))
	admin.POST("/reload", h.Reload)
	admin.GET("/complaints", h.ListComplaints)
	admin.GET("/complaints/:id", h.GetComplaint)
	admin.PATCH("/complaints/:id/status", h.UpdateStatus)
	admin.POST("/complaints/:id/notify", h.NotifyUser)
	admin.GET("/dashboard", h.GetDashboard)
	admin.GET("/analytics", h.GetAnalytics)
	admin.GET("/users", h.GetUsers)
	admin.GET("/quality", h.GetDataQualityReport)
	admin.GET("/export", h.ExportComplaints)
	admin.POST("/export/push", h.PushExport)

	return router
}
