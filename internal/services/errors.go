package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ===============================
// ERROR TYPES
// ===============================

// Error type identifiers
const (
	ErrTypeValidation       = "VALIDATION_ERROR"
	ErrTypeNotFound         = "NOT_FOUND"
	ErrTypeUnauthorized     = "UNAUTHORIZED"
	ErrTypeForbidden        = "FORBIDDEN"
	ErrTypeInternal         = "INTERNAL_ERROR"
	ErrTypeUnknownBadge     = "UNKNOWN_BADGE"
	ErrTypeMalformedUpdate  = "MALFORMED_UPDATE"
	ErrTypeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrTypeDelivery         = "DELIVERY_FAILED"
)

// ServiceError represents a structured service error
type ServiceError struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for this error
func (e *ServiceError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// ===============================
// ERROR CONSTRUCTORS
// ===============================

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// ===============================
// BADGE ENGINE ERRORS
// ===============================

// UnknownBadgeError is returned when an update names a badge the catalog does not define.
// The update is rejected and no state changes.
type UnknownBadgeError struct {
	*ServiceError
	BadgeID string `json:"badge_id"`
}

// NewUnknownBadgeError creates an unknown badge error
func NewUnknownBadgeError(badgeID string) *UnknownBadgeError {
	return &UnknownBadgeError{
		ServiceError: &ServiceError{
			Type:       ErrTypeUnknownBadge,
			Message:    fmt.Sprintf("no badge definition found for id %q", badgeID),
			Code:       "UNKNOWN_BADGE",
			Details:    map[string]interface{}{"badge_id": badgeID},
			StatusCode: http.StatusNotFound,
		},
		BadgeID: badgeID,
	}
}

// MalformedUpdateError is returned for feed items missing required fields.
// The update is skipped.
type MalformedUpdateError struct {
	*ServiceError
	UserID  string `json:"user_id,omitempty"`
	BadgeID string `json:"badge_id,omitempty"`
}

// NewMalformedUpdateError creates a malformed update error
func NewMalformedUpdateError(userID, badgeID string, cause error) *MalformedUpdateError {
	return &MalformedUpdateError{
		ServiceError: &ServiceError{
			Type:       ErrTypeMalformedUpdate,
			Message:    "counter update is missing required fields",
			Code:       "MALFORMED_UPDATE",
			StatusCode: http.StatusBadRequest,
			Cause:      cause,
		},
		UserID:  userID,
		BadgeID: badgeID,
	}
}

// StoreUnavailableError is returned when the progress store cannot be read or written
type StoreUnavailableError struct {
	*ServiceError
	UserID   string `json:"user_id"`
	BadgeID  string `json:"badge_id"`
	Buffered bool   `json:"buffered"`
}

// NewStoreUnavailableError creates a store unavailable error
func NewStoreUnavailableError(userID, badgeID string, buffered bool, cause error) *StoreUnavailableError {
	msg := "progress store unavailable, update dropped"
	if buffered {
		msg = "progress store unavailable, update buffered"
	}
	return &StoreUnavailableError{
		ServiceError: &ServiceError{
			Type:       ErrTypeStoreUnavailable,
			Message:    msg,
			Code:       "STORE_UNAVAILABLE",
			StatusCode: http.StatusServiceUnavailable,
			Cause:      cause,
		},
		UserID:   userID,
		BadgeID:  badgeID,
		Buffered: buffered,
	}
}

// NewDeliveryError wraps an achievement sink failure. Delivery failures never
// roll back progress.
func NewDeliveryError(badgeID string, cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeDelivery,
		Message:    fmt.Sprintf("achievement for badge %q could not be delivered", badgeID),
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// ===============================
// ERROR UTILITIES
// ===============================

// GetServiceError extracts a ServiceError from an error, or creates a generic one
func GetServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var unknown *UnknownBadgeError
	if errors.As(err, &unknown) {
		return unknown.ServiceError
	}

	var malformed *MalformedUpdateError
	if errors.As(err, &malformed) {
		return malformed.ServiceError
	}

	var store *StoreUnavailableError
	if errors.As(err, &store) {
		return store.ServiceError
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	// Create a generic internal error
	return NewInternalError(err.Error())
}

// GetStatusCode maps any error to an HTTP status code
func GetStatusCode(err error) int {
	return GetServiceError(err).GetStatusCode()
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType string) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Type == errorType
	}
	return false
}

// IsUnknownBadge checks if an error is an unknown badge error
func IsUnknownBadge(err error) bool {
	var target *UnknownBadgeError
	return errors.As(err, &target)
}

// IsMalformedUpdate checks if an error is a malformed update error
func IsMalformedUpdate(err error) bool {
	var target *MalformedUpdateError
	return errors.As(err, &target)
}

// IsStoreUnavailable checks if an error is a store unavailable error
func IsStoreUnavailable(err error) bool {
	var target *StoreUnavailableError
	return errors.As(err, &target)
}

// IsDeliveryError checks if an error is an achievement delivery failure
func IsDeliveryError(err error) bool {
	return IsErrorType(err, ErrTypeDelivery)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return IsErrorType(err, ErrTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return IsErrorType(err, ErrTypeValidation)
}
