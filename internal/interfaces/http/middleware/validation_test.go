package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/backend/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
	SetupValidator()
}

type linkPayload struct {
	Provider  string `json:"provider" binding:"required,providercode"`
	ReturnURL string `json:"return_url" binding:"omitempty,url"`
}

func bindJSON(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	var payload linkPayload
	return c.ShouldBindJSON(&payload)
}

func TestSetupValidator_FieldNamesUseJSONTags(t *testing.T) {
	err := bindJSON(t, `{}`)
	require.Error(t, err)

	resp := FormatValidationErrors(err, "req-1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "provider", resp.Error.Details[0].Field)
	assert.Equal(t, "This field is required", resp.Error.Details[0].Message)
}

func TestSetupValidator_ProviderCodeTag(t *testing.T) {
	err := bindJSON(t, `{"provider":"MONZO"}`)
	require.Error(t, err)

	resp := FormatValidationErrors(err, "")
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "provider", resp.Error.Details[0].Field)
	assert.Equal(t, "Unsupported provider code", resp.Error.Details[0].Message)

	assert.NoError(t, bindJSON(t, `{"provider":"SALTEDGE"}`))
}

func TestFormatValidationErrors_NonValidatorError(t *testing.T) {
	err := bindJSON(t, `{not json`)
	require.Error(t, err)

	resp := FormatValidationErrors(err, "req-2")
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
}

func TestHandleValidationError_Answers400(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Set(RequestIDHeader, "req-3")

	HandleValidationError(c, bindJSON(t, `{}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "req-3")
}
