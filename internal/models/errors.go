package models

import (
	"errors"
	"fmt"
)

var (
	// ErrSeatLimitExceeded is returned when a selection would exceed the passenger count
	ErrSeatLimitExceeded = errors.New("seat limit exceeded")
	// ErrIncompleteSelection is returned when the seats chosen don't match the passenger count
	ErrIncompleteSelection = errors.New("incomplete seat selection")
	// ErrInvalidBookingState is fatal to the current booking attempt
	ErrInvalidBookingState = errors.New("invalid booking state")
	// ErrSessionExpired means the bearer credential is no longer accepted
	ErrSessionExpired = errors.New("session expired")
	// ErrNoBookingInProgress is returned when an operation needs a started booking
	ErrNoBookingInProgress = errors.New("no booking in progress")
)

// SeatConflictError is returned when the server could only reserve some of
// the requested seats because another purchase claimed them first
type SeatConflictError struct {
	Requested   int    `json:"requested"`
	Reserved    int    `json:"reserved"`
	Unavailable int    `json:"unavailable_count"`
	Message     string `json:"message"`
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("%d of %d requested seats are no longer available", e.Unavailable, e.Requested)
}

// APIError is a non-2xx answer from the remote API, message kept verbatim
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote API returned status %d", e.StatusCode)
	}
	return e.Message
}
