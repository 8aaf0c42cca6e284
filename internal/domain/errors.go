package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrFetch           = errors.New("fetch failed")
	ErrStorageWrite    = errors.New("storage write failed")
	ErrCycleInProgress = errors.New("poll cycle already in progress")
	ErrInvalidRequest  = errors.New("invalid request")
)

// ValidationError describes a malformed incoming booking.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FetchError is a BookingSource failure for one location.
type FetchError struct {
	LocationID int64
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("location %d: fetch bookings: %v", e.LocationID, e.Err)
}

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

func (e *FetchError) Unwrap() error { return e.Err }
