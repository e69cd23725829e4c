package client

import "errors"

var (
	// ErrUnauthorized is returned when the backend rejects the session
	ErrUnauthorized = errors.New("session not authorized")

	// ErrQuotaExceeded is returned when the daily upload quota is spent
	ErrQuotaExceeded = errors.New("daily upload quota exceeded")
)
