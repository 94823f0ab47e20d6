package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinels. Every error surfaced by a service is marked with exactly one of these.
var (
	ErrNotFound         = newSentinel(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = newSentinel(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = newSentinel(ErrCodeValidation, "validation error")
	ErrPermissionDenied = newSentinel(ErrCodePermissionDenied, "permission denied")
	ErrHTTPClient       = newSentinel(ErrCodeHTTPClient, "http client error")
	ErrDatabase         = newSentinel(ErrCodeDatabase, "database error")
	ErrSystem           = newSentinel(ErrCodeSystemError, "system error")

	// billing
	ErrInvalidDiscount           = newSentinel(ErrCodeInvalidDiscount, "invalid discount")
	ErrPriceResolution           = newSentinel(ErrCodePriceResolution, "price resolution failed")
	ErrInvalidPaymentMethod      = newSentinel(ErrCodeInvalidPaymentMethod, "invalid payment method")
	ErrInvalidTransition         = newSentinel(ErrCodeInvalidTransition, "invalid state transition")
	ErrConcurrentModification    = newSentinel(ErrCodeConcurrentModification, "concurrent modification")
	ErrProcessorRateLimited      = newSentinel(ErrCodeProcessorRateLimited, "payment processor rate limited")
	ErrProcessorUnavailable      = newSentinel(ErrCodeProcessorUnavailable, "payment processor unavailable")
	ErrSignatureVerificationFail = newSentinel(ErrCodeSignatureVerification, "signature verification failed")

	statusCodeMap = map[error]int{
		ErrHTTPClient:                http.StatusInternalServerError,
		ErrDatabase:                  http.StatusInternalServerError,
		ErrNotFound:                  http.StatusNotFound,
		ErrAlreadyExists:             http.StatusConflict,
		ErrValidation:                http.StatusBadRequest,
		ErrPermissionDenied:          http.StatusForbidden,
		ErrSystem:                    http.StatusInternalServerError,
		ErrInvalidDiscount:           http.StatusBadRequest,
		ErrPriceResolution:           http.StatusBadRequest,
		ErrInvalidPaymentMethod:      http.StatusBadRequest,
		ErrInvalidTransition:         http.StatusConflict,
		ErrConcurrentModification:    http.StatusConflict,
		ErrProcessorRateLimited:      http.StatusTooManyRequests,
		ErrProcessorUnavailable:      http.StatusServiceUnavailable,
		ErrSignatureVerificationFail: http.StatusBadRequest,
	}
)

const (
	ErrCodeHTTPClient             = "http_client_error"
	ErrCodeSystemError            = "system_error"
	ErrCodeNotFound               = "not_found"
	ErrCodeAlreadyExists          = "already_exists"
	ErrCodeValidation             = "validation_error"
	ErrCodePermissionDenied       = "permission_denied"
	ErrCodeDatabase               = "database_error"
	ErrCodeInvalidDiscount        = "invalid_discount"
	ErrCodePriceResolution        = "price_resolution_error"
	ErrCodeInvalidPaymentMethod   = "invalid_payment_method"
	ErrCodeInvalidTransition      = "invalid_transition"
	ErrCodeConcurrentModification = "concurrent_modification"
	ErrCodeProcessorRateLimited   = "processor_rate_limited"
	ErrCodeProcessorUnavailable   = "processor_unavailable"
	ErrCodeSignatureVerification  = "signature_verification_failed"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func newSentinel(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is re-exported so callers never need to import two errors packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsConcurrentModification reports whether a write lost an optimistic version check.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsProcessorTransient reports whether a processor call may succeed if repeated.
func IsProcessorTransient(err error) bool {
	return errors.Is(err, ErrProcessorRateLimited) || errors.Is(err, ErrProcessorUnavailable)
}

func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}

// Code returns the machine readable code of the sentinel err is marked with.
func Code(err error) string {
	for e := range statusCodeMap {
		if errors.Is(err, e) {
			return e.(*InternalError).Code
		}
	}
	return ErrCodeSystemError
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
