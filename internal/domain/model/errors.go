package model

import "errors"

// Sentinel error kinds for the leveling domain. Callers match with errors.Is.
var (
	ErrInvalidRegistry = errors.New("invalid registry")
	ErrShapeMismatch   = errors.New("vector shape mismatch")
	ErrUnauthorized    = errors.New("caller is not the organization authority")
	ErrNotFound        = errors.New("record not found")
	ErrCorruptRecord   = errors.New("corrupt record")
	ErrCounterOverflow = errors.New("counter overflow")
)
