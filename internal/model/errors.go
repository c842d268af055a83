package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure classes the storefront core distinguishes.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrAuthRequired   = errors.New("authentication required")
	ErrAlreadyInCart  = errors.New("already in cart")
	ErrServiceFault   = errors.New("service fault")
	ErrUnreachable    = errors.New("service unreachable")
)

// User-visible messages for failures that carry no server-provided text.
const (
	MsgLoginRequired     = "Login to add an item to the cart"
	MsgAlreadyInCart     = "Item already in cart. Use the cart sidebar to update quantity or remove item."
	MsgProductsFailed    = "Could not fetch products. Check that the backend is running, reachable and returns valid JSON."
	MsgCartFailed        = "Could not fetch cart details. Check that the backend is running, reachable and returns valid JSON."
	MsgSearchUnreachable = "Backend isn't running. Could not search products."
	MsgSearchFailed      = "Could not search products."
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewAuthRequiredError rejects a cart operation attempted without a session token.
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:       "AUTH_REQUIRED",
		Message:    MsgLoginRequired,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrAuthRequired,
	}
}

// NewAlreadyInCartError rejects a duplicate "add to cart".
func NewAlreadyInCartError(productID string) *APIError {
	return &APIError{
		Code:       "ALREADY_IN_CART",
		Message:    MsgAlreadyInCart,
		StatusCode: http.StatusConflict,
		Err:        fmt.Errorf("%w: %s", ErrAlreadyInCart, productID),
	}
}

// NewServiceError wraps a non-2xx response from the storefront service.
// message is the server-provided text; it may be empty.
func NewServiceError(statusCode int, message string) *APIError {
	return &APIError{
		Code:       "SERVICE_ERROR",
		Message:    message,
		StatusCode: statusCode,
		Err:        fmt.Errorf("%w: status %d", ErrServiceFault, statusCode),
	}
}

// NewMalformedResponseError reports a 2xx response whose body could not be decoded.
func NewMalformedResponseError(service string, err error) *APIError {
	return &APIError{
		Code:       "MALFORMED_RESPONSE",
		Message:    fmt.Sprintf("%s returned an unreadable response", service),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrServiceFault, err),
	}
}

// NewUnreachableError creates a 503 error for network-level failures.
func NewUnreachableError(service string, err error) *APIError {
	return &APIError{
		Code:       "UNREACHABLE",
		Message:    fmt.Sprintf("%s is unreachable", service),
		StatusCode: http.StatusServiceUnavailable,
		Err:        fmt.Errorf("%w: %v", ErrUnreachable, err),
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ServerMessage returns the message the storefront service sent with a failed
// response, or "" when err is not a service fault or the body had none.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && errors.Is(apiErr, ErrServiceFault) && apiErr.Code == "SERVICE_ERROR" {
		return apiErr.Message
	}
	return ""
}

// IsGuardRejection reports whether err was raised locally by an input guard.
// Guard rejections never reach the network.
func IsGuardRejection(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrAlreadyInCart) || errors.Is(err, ErrInvalidRequest)
}
