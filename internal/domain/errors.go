package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrSessionConflict    = errors.New("another session is active")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrUnsupportedPlan    = errors.New("unsupported plan")
	ErrProviderFailure    = errors.New("provider failure")
	ErrDuplicateUsername  = errors.New("username already exists")
)
