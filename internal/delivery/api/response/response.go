// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"net/http"

	deliverycontext "rssauth/internal/delivery/context"
	domainerrors "rssauth/internal/domain/errors"

	"github.com/labstack/echo/v4"
)

// SuccessResponse defines the structure for successful responses
type SuccessResponse struct {
	Data any       `json:"data"`
	Meta *MetaInfo `json:"meta"`
}

// ErrorResponse defines the structure for error responses
type ErrorResponse struct {
	Error *ErrorInfo `json:"error"`
	Meta  *MetaInfo  `json:"meta"`
}

// ErrorInfo contains detailed error information
type ErrorInfo struct {
	Code    string `json:"code"`              // Machine-readable error code, e.g., "VALIDATION_FAILED"
	Message string `json:"message"`           // User-friendly error message
	Details any    `json:"details,omitempty"` // Field list for validation errors; never set for 401/403/5xx
}

// MetaInfo represents response metadata
type MetaInfo struct {
	RequestID string `json:"request_id"`
}

func meta(c echo.Context) *MetaInfo {
	return &MetaInfo{RequestID: deliverycontext.GetRequestID(c)}
}

// Success returns a successful response
func Success(c echo.Context, statusCode int, data any) error {
	return c.JSON(statusCode, SuccessResponse{
		Data: data,
		Meta: meta(c),
	})
}

// Error returns an error response
func Error(c echo.Context, statusCode int, errorCode string, message string, details any) error {
	if statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusUnauthorized ||
		statusCode == http.StatusForbidden {
		details = nil
	}

	return c.JSON(statusCode, ErrorResponse{
		Error: &ErrorInfo{
			Code:    errorCode,
			Message: message,
			Details: details,
		},
		Meta: meta(c),
	})
}

// BindingError returns a 400 for bodies that cannot be decoded
func BindingError(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, domainerrors.ErrValidationFailed.ErrorCode(), message, nil)
}

// InternalServerError returns a 500 error
func InternalServerError(c echo.Context) error {
	return Error(c, http.StatusInternalServerError,
		domainerrors.ErrInternalError.ErrorCode(), domainerrors.ErrInternalError.Message(), nil)
}
