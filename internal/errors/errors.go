package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/broker/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound           = "NOT_FOUND"
	ErrBadRequest         = "BAD_REQUEST"
	ErrInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrValidation         = "VALIDATION_ERROR"
	ErrServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Analysis failures. The request was well formed but the data cannot support an answer.
	ErrDataIntegrity       = "DATA_INTEGRITY_ERROR"
	ErrInsufficientHistory = "INSUFFICIENT_HISTORY"
	ErrInsufficientFactors = "INSUFFICIENT_FACTORS"
	ErrForecastUnavailable = "FORECAST_UNAVAILABLE"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// respond writes the error envelope and aborts the handler chain.
func respond(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: middleware.GetRequestID(c),
		},
	})
}

// warn logs a client-side failure with the request-scoped logger, if any.
func warn(c *gin.Context, msg string, fields map[string]interface{}) {
	log := middleware.GetLogger(c)
	if log == nil {
		return
	}
	fields["request_id"] = middleware.GetRequestID(c)
	fields["path"] = c.Request.URL.Path
	log.Warn(msg, fields)
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	warn(c, "Resource not found", map[string]interface{}{
		"message": message,
	})
	respond(c, http.StatusNotFound, ErrNotFound, message, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	fields := map[string]interface{}{"message": message}
	if details != nil {
		fields["details"] = details
	}
	warn(c, "Bad request", fields)
	respond(c, http.StatusBadRequest, ErrBadRequest, message, details)
}

// UnprocessableEntity returns a 422 response for a request the engine could not answer
// from the available data. code is one of the analysis failure codes.
func UnprocessableEntity(c *gin.Context, code, message string, details map[string]interface{}) {
	warn(c, "Analysis could not be completed", map[string]interface{}{
		"code":    code,
		"message": message,
	})
	respond(c, http.StatusUnprocessableEntity, code, message, details)
}

// ServiceUnavailable returns a 503 response, used when the reference data cannot be loaded.
func ServiceUnavailable(c *gin.Context, message string, err error) {
	if log := middleware.GetLogger(c); log != nil {
		log.Error("Service unavailable", err, map[string]interface{}{
			"message":    message,
			"request_id": middleware.GetRequestID(c),
			"path":       c.Request.URL.Path,
		})
	}
	respond(c, http.StatusServiceUnavailable, ErrServiceUnavailable, message, nil)
}

// InternalServerError returns a 500 Internal Server Error response.
// The error is logged with full context; the client only sees message.
func InternalServerError(c *gin.Context, message string, err error) {
	if log := middleware.GetLogger(c); log != nil {
		log.Error("Internal server error", err, map[string]interface{}{
			"message":    message,
			"request_id": middleware.GetRequestID(c),
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	}
	respond(c, http.StatusInternalServerError, ErrInternalServer, message, nil)
}

// ValidationError returns a 400 Bad Request error response with field-specific validation errors.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{}, len(validationErrors))
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}

	warn(c, "Validation error", map[string]interface{}{
		"fields": details,
	})
	respond(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "required_without":
		return "Required when " + err.Param() + " is not set"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "len":
		return "Must have length of " + err.Param()
	case "numeric":
		return "Must contain only digits"
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "dive":
		return "Every element must be valid"
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
