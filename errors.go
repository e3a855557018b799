package hyphae

import "errors"

// Sentinel errors for gateway operations.
var (
	// ErrInvalidAgent indicates an agent record violates its construction invariants.
	ErrInvalidAgent = errors.New("hyphae: invalid agent")

	// ErrInvalidAgentID indicates an id not of the form "provider:originalId".
	ErrInvalidAgentID = errors.New("hyphae: invalid agent id")

	// ErrInvalidFilters indicates malformed search parameters.
	ErrInvalidFilters = errors.New("hyphae: invalid search filters")

	// ErrAgentNotFound indicates no adapter knows the requested agent.
	ErrAgentNotFound = errors.New("hyphae: agent not found")

	// ErrUnknownProvider indicates the id names an adapter that is not registered.
	ErrUnknownProvider = errors.New("hyphae: unknown provider")

	// ErrBlockedTarget indicates the endpoint points at an internal or private network target.
	ErrBlockedTarget = errors.New("hyphae: blocked target")

	// ErrBodyTooLarge indicates the request body exceeded the configured ceiling.
	ErrBodyTooLarge = errors.New("hyphae: request body too large")

	// ErrInvalidRequest indicates a malformed invoke request.
	ErrInvalidRequest = errors.New("hyphae: invalid request")

	// ErrUnsupportedPaymentHeader indicates a payment header name outside the allow-list.
	ErrUnsupportedPaymentHeader = errors.New("hyphae: unsupported payment header")

	// ErrUpstreamTimeout indicates the upstream did not answer within the invoke timeout.
	ErrUpstreamTimeout = errors.New("hyphae: upstream timeout")

	// ErrUpstreamUnreachable indicates a network-level failure reaching the upstream.
	ErrUpstreamUnreachable = errors.New("hyphae: upstream unreachable")

	// ErrUpstreamResponseTooLarge indicates the upstream body exceeded the relay ceiling.
	ErrUpstreamResponseTooLarge = errors.New("hyphae: upstream response too large")
)

// ErrorCode represents gateway error codes for programmatic handling.
type ErrorCode string

const (
	ErrCodeInvalidRequest           ErrorCode = "INVALID_REQUEST"
	ErrCodeAgentNotFound            ErrorCode = "AGENT_NOT_FOUND"
	ErrCodeSSRFBlocked              ErrorCode = "SSRF_BLOCKED"
	ErrCodeBodyTooLarge             ErrorCode = "BODY_TOO_LARGE"
	ErrCodeUnsupportedPaymentHeader ErrorCode = "UNSUPPORTED_PAYMENT_HEADER"
	ErrCodeUpstreamTimeout          ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamUnreachable      ErrorCode = "UPSTREAM_UNREACHABLE"
	ErrCodeUpstreamTooLarge         ErrorCode = "UPSTREAM_RESPONSE_TOO_LARGE"
)

// GatewayError provides structured error information.
type GatewayError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError with the given code and message.
func NewGatewayError(code ErrorCode, message string, err error) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *GatewayError) WithDetails(key string, value interface{}) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first GatewayError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return ""
}
