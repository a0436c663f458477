package lock

import "errors"

var (
	// ErrLockTimeout is returned when a character's lock cannot be
	// acquired within the timeout.
	ErrLockTimeout = errors.New("character is busy, lock acquisition timeout")
)
