package commonerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCategory string

const (
	CategoryValidation   ErrorCategory = "VALIDATION"
	CategoryNotFound     ErrorCategory = "NOT_FOUND"
	CategoryUnauthorized ErrorCategory = "UNAUTHORIZED"
	CategoryInternal     ErrorCategory = "INTERNAL"
	CategoryExternal     ErrorCategory = "EXTERNAL"
)

type DomainError interface {
	error
	Code() string
	Category() ErrorCategory
	HTTPStatus() int
	Message() string
	TraceID() string
	Unwrap() error
	WithCause(cause error) DomainError
	WithTraceID(traceID string) DomainError
}

type domainError struct {
	code     string
	category ErrorCategory
	status   int
	message  string
	traceID  string
	cause    error
}

func (e *domainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *domainError) Code() string {
	return e.code
}

func (e *domainError) Category() ErrorCategory {
	return e.category
}

func (e *domainError) HTTPStatus() int {
	return e.status
}

func (e *domainError) Message() string {
	return e.message
}

func (e *domainError) TraceID() string {
	return e.traceID
}

func (e *domainError) Unwrap() error {
	return e.cause
}

// Is matches by code so that a copy produced by WithCause still satisfies
// errors.Is against the catalog value.
func (e *domainError) Is(target error) bool {
	t, ok := target.(*domainError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *domainError) WithCause(cause error) DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

func (e *domainError) WithTraceID(traceID string) DomainError {
	cp := *e
	cp.traceID = traceID
	return &cp
}

func NewDomainError(code string, category ErrorCategory, status int, message string) DomainError {
	return &domainError{
		code:     code,
		category: category,
		status:   status,
		message:  message,
	}
}

func AsDomainError(err error) (DomainError, bool) {
	var de DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

var (
	ErrMissingRequiredEnv = NewDomainError(
		"MISSING_REQUIRED_ENV",
		CategoryValidation,
		http.StatusInternalServerError,
		"missing required environment variable",
	)

	ErrInvalidJWTSecret = NewDomainError(
		"INVALID_JWT_SECRET",
		CategoryValidation,
		http.StatusInternalServerError,
		"JWT_SECRET must be at least 32 bytes",
	)

	ErrInvalidStoreDriver = NewDomainError(
		"INVALID_STORE_DRIVER",
		CategoryValidation,
		http.StatusInternalServerError,
		"unsupported subscription store driver",
	)

	ErrInvalidToken = NewDomainError(
		"INVALID_TOKEN",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"token is not valid",
	)

	ErrMissingSessionToken = NewDomainError(
		"MISSING_SESSION_TOKEN",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"token carries no session id",
	)

	ErrSubscriptionNotFound = NewDomainError(
		"SUBSCRIPTION_NOT_FOUND",
		CategoryNotFound,
		http.StatusNotFound,
		"push subscription not found",
	)

	ErrInvalidSubscription = NewDomainError(
		"INVALID_SUBSCRIPTION",
		CategoryValidation,
		http.StatusBadRequest,
		"invalid push subscription",
	)

	ErrNotifyDisabled = NewDomainError(
		"NOTIFY_DISABLED",
		CategoryNotFound,
		http.StatusNotFound,
		"notify endpoint is disabled",
	)

	ErrCircuitOpen = NewDomainError(
		"CIRCUIT_OPEN",
		CategoryExternal,
		http.StatusServiceUnavailable,
		"circuit breaker is open",
	)

	ErrKeyPairGenerateFailed = NewDomainError(
		"KEY_PAIR_GENERATE_FAILED",
		CategoryInternal,
		http.StatusInternalServerError,
		"failed to generate VAPID key pair",
	)

	ErrKeyPairPersistFailed = NewDomainError(
		"KEY_PAIR_PERSIST_FAILED",
		CategoryInternal,
		http.StatusInternalServerError,
		"failed to persist VAPID key pair",
	)

	ErrSubscriptionSaveFailed = NewDomainError(
		"SUBSCRIPTION_SAVE_FAILED",
		CategoryInternal,
		http.StatusInternalServerError,
		"failed to save push subscription",
	)

	ErrSubscriptionDeleteFailed = NewDomainError(
		"SUBSCRIPTION_DELETE_FAILED",
		CategoryInternal,
		http.StatusInternalServerError,
		"failed to delete push subscription",
	)

	ErrSubscriptionGetFailed = NewDomainError(
		"SUBSCRIPTION_GET_FAILED",
		CategoryInternal,
		http.StatusInternalServerError,
		"failed to get push subscription",
	)
)
