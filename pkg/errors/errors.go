package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrTimeout            = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)

	// Delivery outcomes. Rate limits are retryable and carry the
	// destination-provided delay; rejections and oversized payloads are not
	// fixable by retrying.
	ErrRateLimited     = NewError("RATE_LIMITED", "destination rate limit hit", http.StatusTooManyRequests)
	ErrPermanentReject = NewError("PERMANENT_REJECT", "destination rejected payload", http.StatusBadGateway)
	ErrPayloadTooLarge = NewError("PAYLOAD_TOO_LARGE", "payload exceeds destination size limit", http.StatusRequestEntityTooLarge)
	ErrCircuitOpen     = NewError("CIRCUIT_OPEN", "destination circuit is open", http.StatusServiceUnavailable)
	ErrQueueFull       = NewError("QUEUE_FULL", "delivery queue is full", http.StatusServiceUnavailable)
	ErrTransformFailed = NewError("TRANSFORM_FAILED", "media transform failed", http.StatusInternalServerError)
	ErrSourceExhausted = NewError("SOURCE_EXHAUSTED", "source event stream closed", http.StatusServiceUnavailable)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	switch e.Code {
	case ErrValidation.Code, ErrNotFound.Code, ErrPermanentReject.Code, ErrPayloadTooLarge.Code:
		return false
	}
	return true
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	switch e.Code {
	case ErrValidation.Code, ErrNotFound.Code, ErrPermanentReject.Code, ErrPayloadTooLarge.Code:
		return true
	}
	return false
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

// WithDetail returns a copy carrying the extra detail. The receiver's map
// is never written; package-level sentinels stay immutable so concurrent
// callers can derive from them freely.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		err.Details[k] = v
	}
	err.Details[key] = value
	return &err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		err.Details[k] = v
	}
	for k, v := range details {
		err.Details[k] = v
	}
	return &err
}

// WithRetryAfter attaches the destination-provided retry delay so the
// dispatcher can schedule the next attempt no earlier than requested.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	return e.WithDetail("retry_after", d)
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsRateLimited(err error) bool {
	return hasCode(err, ErrRateLimited.Code)
}

func IsCircuitOpen(err error) bool {
	return hasCode(err, ErrCircuitOpen.Code)
}

func IsQueueFull(err error) bool {
	return hasCode(err, ErrQueueFull.Code)
}

func IsPayloadTooLarge(err error) bool {
	return hasCode(err, ErrPayloadTooLarge.Code)
}

func IsPermanentReject(err error) bool {
	return hasCode(err, ErrPermanentReject.Code)
}

// IsFatal reports whether err is an application error that retrying
// cannot fix.
func IsFatal(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.IsFatal()
	}
	return false
}

func IsTransformFailed(err error) bool {
	return hasCode(err, ErrTransformFailed.Code)
}

// RetryAfter extracts a destination-provided retry delay, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return 0, false
	}
	d, ok := appErr.Details["retry_after"].(time.Duration)
	return d, ok
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		// If it's not our error type, wrap it
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
