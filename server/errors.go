package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code      hyphae.ErrorCode       `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
}

const errCodeInternal hyphae.ErrorCode = "INTERNAL"

// StatusFor maps an error code to its HTTP status.
func StatusFor(code hyphae.ErrorCode) int {
	switch code {
	case hyphae.ErrCodeInvalidRequest, hyphae.ErrCodeUnsupportedPaymentHeader:
		return http.StatusBadRequest
	case hyphae.ErrCodeAgentNotFound:
		return http.StatusNotFound
	case hyphae.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case hyphae.ErrCodeBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case hyphae.ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case hyphae.ErrCodeUpstreamUnreachable, hyphae.ErrCodeUpstreamTooLarge:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as an ErrorBody and stops the chain. Errors
// outside the gateway taxonomy are reported as INTERNAL without their text.
func abortWithError(c *gin.Context, err error) {
	detail := ErrorDetail{
		Code:      errCodeInternal,
		Message:   "internal error",
		RequestID: c.GetString(requestIDKey),
	}
	var gwErr *hyphae.GatewayError
	if errors.As(err, &gwErr) {
		detail.Code = gwErr.Code
		detail.Message = gwErr.Message
		if len(gwErr.Details) > 0 {
			detail.Details = gwErr.Details
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(detail.Code), ErrorBody{Error: detail})
}

func badRequest(c *gin.Context, msg string, err error) {
	abortWithError(c, hyphae.NewGatewayError(hyphae.ErrCodeInvalidRequest, msg, err))
}
