package store

import "errors"

var (
	ErrServiceRequestNotFound = errors.New("service request not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrSessionNotFound        = errors.New("session not found")
	ErrUnavailable            = errors.New("store unavailable")
)
