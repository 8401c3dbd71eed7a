package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/broker/internal/logger"
	"github.com/stwalsh4118/broker/internal/middleware"
)

func init() {
	// Set Gin to test mode to suppress logs during tests
	gin.SetMode(gin.TestMode)
}

// setupTestContext creates a test Gin context with logger and request ID in context.
func setupTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/properties/p1/analysis", nil)

	c.Set("logger", logger.New("test"))
	c.Set(middleware.RequestIDKey, "test-request-id")

	return c, w
}

// parseErrorResponse parses the JSON response into an ErrorResponse struct.
func parseErrorResponse(t *testing.T, body *bytes.Buffer) ErrorResponse {
	var response ErrorResponse
	err := json.Unmarshal(body.Bytes(), &response)
	require.NoError(t, err, "Failed to parse error response JSON")
	return response
}

func TestNotFound(t *testing.T) {
	c, w := setupTestContext()

	NotFound(c, "Property not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, c.IsAborted())

	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrNotFound, response.Error.Code)
	assert.Equal(t, "Property not found", response.Error.Message)
	assert.Equal(t, "test-request-id", response.Error.RequestID)
	assert.Nil(t, response.Error.Details)
}

func TestBadRequest(t *testing.T) {
	t.Run("without details", func(t *testing.T) {
		c, w := setupTestContext()

		BadRequest(c, "Invalid input", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		response := parseErrorResponse(t, w.Body)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
		assert.Equal(t, "Invalid input", response.Error.Message)
		assert.Nil(t, response.Error.Details, "Expected no details when nil is passed")
	})

	t.Run("with details", func(t *testing.T) {
		c, w := setupTestContext()

		BadRequest(c, "Invalid horizon", map[string]interface{}{
			"field": "horizon",
			"value": "forever",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		response := parseErrorResponse(t, w.Body)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
		assert.Equal(t, "horizon", response.Error.Details["field"])
		assert.Equal(t, "forever", response.Error.Details["value"])
	})
}

func TestUnprocessableEntity(t *testing.T) {
	codes := []string{ErrDataIntegrity, ErrInsufficientHistory, ErrInsufficientFactors, ErrForecastUnavailable}

	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			c, w := setupTestContext()

			UnprocessableEntity(c, code, "zip 78701 has 3 months, need at least 6", map[string]interface{}{
				"zipcode": "78701",
			})

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			response := parseErrorResponse(t, w.Body)
			assert.Equal(t, code, response.Error.Code)
			assert.Equal(t, "78701", response.Error.Details["zipcode"])
			assert.Equal(t, "test-request-id", response.Error.RequestID)
		})
	}
}

func TestServiceUnavailable(t *testing.T) {
	c, w := setupTestContext()

	ServiceUnavailable(c, "Reference data unavailable", errors.New("market file missing"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrServiceUnavailable, response.Error.Code)
	assert.NotContains(t, w.Body.String(), "market file missing")
}

func TestInternalServerError(t *testing.T) {
	c, w := setupTestContext()

	InternalServerError(c, "An unexpected error occurred", errors.New("database connection failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrInternalServer, response.Error.Code)
	assert.Equal(t, "An unexpected error occurred", response.Error.Message)
	assert.Equal(t, "test-request-id", response.Error.RequestID)
	assert.Nil(t, response.Error.Details)
	assert.NotContains(t, w.Body.String(), "database connection failed", "Internal errors must not leak to clients")
}

func TestValidationError(t *testing.T) {
	c, w := setupTestContext()

	type listQuery struct {
		Zip   string `validate:"omitempty,len=5,numeric"`
		Limit int    `validate:"gte=0,lte=500"`
	}

	err := validator.New().Struct(listQuery{Zip: "787", Limit: 1000})
	require.Error(t, err, "Expected validation to fail")

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	ValidationError(c, validationErrors)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrValidation, response.Error.Code)
	assert.Equal(t, "Validation failed for one or more fields", response.Error.Message)
	assert.Equal(t, "Must have length of 5", response.Error.Details["Zip"])
	assert.Equal(t, "Must be less than or equal to 500", response.Error.Details["Limit"])
}

func TestFormatValidationError(t *testing.T) {
	tests := []struct {
		tag      string
		param    string
		expected string
	}{
		{"required", "", "This field is required"},
		{"required_without", "Address", "Required when Address is not set"},
		{"min", "1", "Value is too short or small (minimum: 1)"},
		{"max", "100", "Value is too long or large (maximum: 100)"},
		{"len", "5", "Must have length of 5"},
		{"numeric", "", "Must contain only digits"},
		{"gt", "0", "Must be greater than 0"},
		{"gte", "1", "Must be greater than or equal to 1"},
		{"lte", "120", "Must be less than or equal to 120"},
		{"dive", "", "Every element must be valid"},
		{"unknown_tag", "", "Validation failed for tag: unknown_tag"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			result := formatValidationError(&mockFieldError{tag: tt.tag, param: tt.param})
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestErrorResponseWithoutContext(t *testing.T) {
	// Error functions must work without logger or request ID in context
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	NotFound(c, "Resource not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrNotFound, response.Error.Code)
	assert.Empty(t, response.Error.RequestID)
}

// mockFieldError is a mock implementation of validator.FieldError for testing.
type mockFieldError struct {
	tag   string
	param string
}

func (m *mockFieldError) Tag() string                    { return m.tag }
func (m *mockFieldError) ActualTag() string              { return m.tag }
func (m *mockFieldError) Namespace() string              { return "" }
func (m *mockFieldError) StructNamespace() string        { return "" }
func (m *mockFieldError) Field() string                  { return "TestField" }
func (m *mockFieldError) StructField() string            { return "TestField" }
func (m *mockFieldError) Value() interface{}             { return nil }
func (m *mockFieldError) Param() string                  { return m.param }
func (m *mockFieldError) Kind() reflect.Kind             { return reflect.String }
func (m *mockFieldError) Type() reflect.Type             { return nil }
func (m *mockFieldError) Translate(ut.Translator) string { return "" }
func (m *mockFieldError) Error() string                  { return "" }
