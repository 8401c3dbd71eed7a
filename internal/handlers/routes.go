package handlers

import "github.com/gin-gonic/gin"

// RegisterHealthRoutes registers liveness, readiness and info endpoints.
func RegisterHealthRoutes(router *gin.Engine, h *HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Ready)
	router.GET("/api/v1/info", h.Info)
}

// RegisterAnalysisRoutes registers the analysis API under v1.
func RegisterAnalysisRoutes(v1 *gin.RouterGroup, h *AnalysisHandler) {
	properties := v1.Group("/properties")
	{
		properties.GET("", h.ListProperties)
		properties.GET("/:id/analysis", h.GetAnalysis)
	}

	analyze := v1.Group("/analyze")
	{
		analyze.POST("", h.Analyze)
		analyze.POST("/batch", h.AnalyzeBatch)
	}

	v1.GET("/zips/:zip/forecast", h.ForecastZip)
	v1.POST("/reference/refresh", h.RefreshReference)
}
