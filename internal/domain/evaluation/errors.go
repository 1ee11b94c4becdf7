package evaluation

import "errors"

var (
	// ErrInvalidRequest is returned for missing descriptions or requirements.
	ErrInvalidRequest = errors.New("invalid evaluation request")
	// ErrNoEvaluation means the scorer answered without a usable score.
	ErrNoEvaluation = errors.New("scorer returned no evaluation")
)
