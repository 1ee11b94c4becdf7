package feedbacksim

import "errors"

var (
	// ErrInvalidConfig is returned for unusable run settings.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrUnhealthy is returned when the service does not answer its health check.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrLostUpdate is returned when stored state disagrees with what was submitted.
	ErrLostUpdate = errors.New("lost update detected")
)
