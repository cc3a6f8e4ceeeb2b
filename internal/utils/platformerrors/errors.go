package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// getRequestIDFromContext extracts request ID from context
func getRequestIDFromContext(ctx context.Context) string {
	val := ctx.Value("requestID")
	if requestID, ok := val.(string); ok {
		return requestID
	}
	return ""
}

// ErrorType represents the category of error. Provider-facing categories map
// one-to-one onto the routing engine's fallback decisions.
type ErrorType string

const (
	ErrorTypeNotConfigured ErrorType = "NOT_CONFIGURED"
	ErrorTypeAuth          ErrorType = "AUTH"
	ErrorTypeQuota         ErrorType = "QUOTA"
	ErrorTypeTransient     ErrorType = "TRANSIENT"
	ErrorTypeMalformed     ErrorType = "MALFORMED"
	ErrorTypeDeadline      ErrorType = "DEADLINE"
	ErrorTypeExhausted     ErrorType = "EXHAUSTED"
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeInternal      ErrorType = "INTERNAL"
)

// Layer represents the application layer where the error occurred
type Layer string

const (
	LayerDomain         Layer = "domain"
	LayerInfrastructure Layer = "infrastructure"
	LayerConnector      Layer = "connector"
	LayerRegistry       Layer = "registry"
	LayerCommon         Layer = "common"
)

// PlatformError represents an error with context and metadata
type PlatformError struct {
	UUID      string
	Type      ErrorType
	Message   string
	Err       error
	Context   map[string]any
	RequestID string
	Layer     Layer
	Timestamp time.Time
}

// Error implements the error interface
func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s][%s][%s] %s: %v", e.Layer, e.Type, e.UUID, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s][%s][%s] %s", e.Layer, e.Type, e.UUID, e.Message)
}

// Unwrap returns the underlying error
func (e *PlatformError) Unwrap() error {
	return e.Err
}

// GetErrorType returns the error type
func (e *PlatformError) GetErrorType() ErrorType {
	return e.Type
}

// GetUUID returns the error UUID
func (e *PlatformError) GetUUID() string {
	return e.UUID
}

// NewError creates a new PlatformError with the specified parameters
func NewError(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, customUUID string) *PlatformError {
	return NewErrorWithContext(ctx, layer, errorType, message, err, customUUID, nil)
}

// NewErrorWithContext creates a new PlatformError with additional context fields
func NewErrorWithContext(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, customUUID string, contextFields map[string]any) *PlatformError {
	requestID := getRequestIDFromContext(ctx)

	errorUUID := customUUID
	if errorUUID == "" {
		errorUUID = uuid.NewString()
	}

	errorContext := make(map[string]any)
	for k, v := range contextFields {
		errorContext[k] = v
	}

	return &PlatformError{
		UUID:      errorUUID,
		Type:      errorType,
		Message:   message,
		Err:       err,
		RequestID: requestID,
		Layer:     layer,
		Timestamp: time.Now().UTC(),
		Context:   errorContext,
	}
}

// AsError wraps err in a PlatformError, preserving the error type when err is
// already a PlatformError. Context deadline and cancellation errors are mapped
// to ErrorTypeDeadline so the engine can stop the fallback chain.
func AsError(ctx context.Context, layer Layer, err error, message string) *PlatformError {
	if err == nil {
		return nil
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return NewError(ctx, layer, pe.Type, message, err, "")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(ctx, layer, ErrorTypeDeadline, message, err, "")
	}
	return NewError(ctx, layer, ErrorTypeInternal, message, err, "")
}

// TypeOf returns the error type of err, or ErrorTypeInternal when err carries
// no platform classification.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Type
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorTypeDeadline
	}
	return ErrorTypeInternal
}

// IsAuth reports whether err is an auth-class failure.
func IsAuth(err error) bool { return TypeOf(err) == ErrorTypeAuth }

// IsQuota reports whether err is a quota-class failure.
func IsQuota(err error) bool { return TypeOf(err) == ErrorTypeQuota }

// IsTransient reports whether err is eligible for retry.
func IsTransient(err error) bool { return TypeOf(err) == ErrorTypeTransient }

// IsDeadline reports whether err means the overall deadline elapsed.
func IsDeadline(err error) bool { return TypeOf(err) == ErrorTypeDeadline }
