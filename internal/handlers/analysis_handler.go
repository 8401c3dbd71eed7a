package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/broker/internal/analysis"
	apierrors "github.com/stwalsh4118/broker/internal/errors"
	"github.com/stwalsh4118/broker/internal/middleware"
	"github.com/stwalsh4118/broker/internal/models"
	"github.com/stwalsh4118/broker/internal/services"
)

// AnalysisHandler handles property analysis HTTP requests.
type AnalysisHandler struct {
	service services.AnalysisService
}

// NewAnalysisHandler creates a new AnalysisHandler instance.
func NewAnalysisHandler(service services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
	}
}

// ListPropertiesRequest represents the query parameters for the property list endpoint.
type ListPropertiesRequest struct {
	Zip   string `form:"zip" binding:"omitempty,len=5,numeric"`
	Limit int    `form:"limit" binding:"omitempty,gte=1,lte=500"`
}

// AnalyzeRequest identifies a property by ID or by street address.
type AnalyzeRequest struct {
	ID      string `json:"id" binding:"required_without=Address"`
	Address string `json:"address" binding:"required_without=ID"`
}

// BatchRequest lists the properties to analyze together.
type BatchRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=100,dive,required"`
}

// ForecastRequest represents the query parameters for the ZIP forecast endpoint.
type ForecastRequest struct {
	Horizon int `form:"horizon" binding:"omitempty,gte=1,lte=120"`
}

// RefreshRequest represents the query parameters for the reference refresh endpoint.
type RefreshRequest struct {
	Invalidate bool `form:"invalidate"`
}

// PropertyListResponse represents the response for the property list endpoint.
type PropertyListResponse struct {
	Properties []models.PropertySnapshot `json:"properties"`
	Count      int                       `json:"count"`
}

// AnalysisResponse wraps a single analysis result.
type AnalysisResponse struct {
	Analysis *models.AnalysisResult `json:"analysis"`
}

// ListProperties handles GET /api/v1/properties.
func (h *AnalysisHandler) ListProperties(c *gin.Context) {
	var req ListPropertiesRequest
	if !bindQuery(c, &req) {
		return
	}

	properties, err := h.service.ListProperties(c.Request.Context(), req.Zip, req.Limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list properties")
		return
	}

	c.JSON(http.StatusOK, PropertyListResponse{
		Properties: properties,
		Count:      len(properties),
	})
}

// GetAnalysis handles GET /api/v1/properties/:id/analysis.
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	propertyID := c.Param("id")

	result, err := h.service.Analyze(c.Request.Context(), propertyID)
	if err != nil {
		respondServiceError(c, err, "Failed to analyze property")
		return
	}

	c.JSON(http.StatusOK, AnalysisResponse{Analysis: result})
}

// Analyze handles POST /api/v1/analyze. The ID wins when both ID and address are given.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if !bindJSON(c, &req) {
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Processing analyze request", map[string]interface{}{
			"property_id": req.ID,
			"by_address":  req.ID == "",
		})
	}

	var (
		result *models.AnalysisResult
		err    error
	)
	if req.ID != "" {
		result, err = h.service.Analyze(c.Request.Context(), req.ID)
	} else {
		result, err = h.service.AnalyzeByAddress(c.Request.Context(), req.Address)
	}
	if err != nil {
		respondServiceError(c, err, "Failed to analyze property")
		return
	}

	c.JSON(http.StatusOK, AnalysisResponse{Analysis: result})
}

// AnalyzeBatch handles POST /api/v1/analyze/batch.
// Per-property failures are reported inside a 200 response.
func (h *AnalysisHandler) AnalyzeBatch(c *gin.Context) {
	var req BatchRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.AnalyzeBatch(c.Request.Context(), req.IDs)
	if err != nil {
		respondServiceError(c, err, "Failed to analyze batch")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ForecastZip handles GET /api/v1/zips/:zip/forecast.
func (h *AnalysisHandler) ForecastZip(c *gin.Context) {
	var req ForecastRequest
	if !bindQuery(c, &req) {
		return
	}

	forecast, err := h.service.ForecastZip(c.Request.Context(), c.Param("zip"), req.Horizon)
	if err != nil {
		respondServiceError(c, err, "Failed to forecast zip code")
		return
	}

	c.JSON(http.StatusOK, forecast)
}

// RefreshReference handles POST /api/v1/reference/refresh.
func (h *AnalysisHandler) RefreshReference(c *gin.Context) {
	var req RefreshRequest
	if !bindQuery(c, &req) {
		return
	}

	status, err := h.service.RefreshReference(c.Request.Context(), req.Invalidate)
	if err != nil {
		respondServiceError(c, err, "Failed to refresh reference data")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Reference refreshed on request", map[string]interface{}{
			"version":    status.Version,
			"rebuilt":    status.Rebuilt,
			"invalidate": req.Invalidate,
		})
	}

	c.JSON(http.StatusOK, status)
}

// bindQuery binds and validates query parameters, writing the error response on failure.
func bindQuery(c *gin.Context, req interface{}) bool {
	return handleBindError(c, c.ShouldBindQuery(req), "Invalid query parameters")
}

// bindJSON binds and validates a JSON body, writing the error response on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	return handleBindError(c, c.ShouldBindJSON(req), "Invalid request body")
}

func handleBindError(c *gin.Context, err error, message string) bool {
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apierrors.ValidationError(c, validationErrors)
		return false
	}
	apierrors.BadRequest(c, message, nil)
	return false
}

// respondServiceError maps service and engine errors to HTTP responses.
func respondServiceError(c *gin.Context, err error, message string) {
	details := map[string]interface{}{"reason": err.Error()}

	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, services.ErrPropertyNotFound):
		apierrors.NotFound(c, "Property not found")
	case errors.Is(err, analysis.ErrDataIntegrity):
		apierrors.UnprocessableEntity(c, apierrors.ErrDataIntegrity, "Market data is inconsistent", details)
	case errors.Is(err, analysis.ErrInsufficientHistory):
		apierrors.UnprocessableEntity(c, apierrors.ErrInsufficientHistory, "Not enough market history to forecast", details)
	case errors.Is(err, analysis.ErrInsufficientFactors):
		apierrors.UnprocessableEntity(c, apierrors.ErrInsufficientFactors, "Not enough metrics to score the property", details)
	case errors.Is(err, analysis.ErrForecastUnavailable):
		apierrors.UnprocessableEntity(c, apierrors.ErrForecastUnavailable, "No forecast could be produced", details)
	case errors.Is(err, services.ErrReferenceMissing):
		apierrors.ServiceUnavailable(c, "Reference data unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		apierrors.ServiceUnavailable(c, "Request timed out", err)
	default:
		apierrors.InternalServerError(c, message, err)
	}
}
