package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrActiveRound     = errors.New("another round is already active")
	ErrAlreadyResolved = errors.New("round already resolved")
	ErrInvalidMode     = errors.New("invalid round mode")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLockHeld        = errors.New("lock already held")
)
