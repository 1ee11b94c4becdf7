package feedback

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrInvalidInput marks requests that can never succeed; do not retry.
	ErrInvalidInput = errors.New("invalid input")
)
