package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("resource not found")

	ErrInvalidRequest  = errors.New("invalid request body")
	ErrValidation      = errors.New("validation failed")
	ErrInvalidPlatform = errors.New("unsupported review platform")
	ErrInvalidRating   = errors.New("rating must be an integer between 1 and 5")
	ErrEmptyFeedback   = errors.New("feedback text must not be empty")

	ErrUnauthorized = errors.New("callback signature verification failed")

	ErrNoClickAnchor  = errors.New("request has no click timestamp for this platform")
	ErrNoListingURL   = errors.New("business has no listing url for this platform")
	ErrScheduleFailed = errors.New("failed to enqueue attribution job")

	ErrUnrecognizedURL = errors.New("listing url does not match any known pattern")
)

type RequestNotFoundError struct{ RequestID string }

func (e *RequestNotFoundError) Error() string {
	return fmt.Sprintf("review request '%s' not found", e.RequestID)
}
func (e *RequestNotFoundError) Is(target error) bool { return target == ErrNotFound }

type BusinessNotFoundError struct{ BusinessID string }

func (e *BusinessNotFoundError) Error() string {
	return fmt.Sprintf("business '%s' not found", e.BusinessID)
}
func (e *BusinessNotFoundError) Is(target error) bool { return target == ErrNotFound }
