package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/domain/shared"
	"github.com/fintrack/backend/internal/interfaces/http/dto"
	"github.com/fintrack/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDHeader); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// sentinelErrorCodes maps domain sentinel errors to API error codes. Wrapped
// errors are matched with errors.Is.
var sentinelErrorCodes = []struct {
	err  error
	code string
}{
	{banking.ErrConnectionNotFound, dto.ErrCodeNotFound},
	{banking.ErrSyncAlreadyInProgress, dto.ErrCodeSyncInProgress},
	{banking.ErrConnectionNotSyncable, dto.ErrCodeInvalidState},
	{banking.ErrConnectionTerminal, dto.ErrCodeInvalidState},
	{banking.ErrInvalidTransition, dto.ErrCodeInvalidState},
	{banking.ErrInvalidProvider, dto.ErrCodeInvalidProvider},
	{banking.ErrProviderNotConfigured, dto.ErrCodeProviderNotConfigured},
	{banking.ErrConnectionExpired, dto.ErrCodeConsentExpired},
	{banking.ErrLinkDenied, dto.ErrCodeLinkDenied},
	{banking.ErrProviderRateLimited, dto.ErrCodeProviderRateLimited},
	{banking.ErrProviderAuthFailed, dto.ErrCodeProviderAuthFailed},
	{banking.ErrProviderUnavailable, dto.ErrCodeProviderUnavailable},
	{banking.ErrProviderInvalidResponse, dto.ErrCodeProviderUnavailable},
	{banking.ErrProviderRequestFailed, dto.ErrCodeProviderUnavailable},
}

// HandleError converts domain and provider errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	for _, m := range sentinelErrorCodes {
		if errors.Is(err, m.err) {
			h.ErrorWithCode(c, m.code, err.Error())
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}
