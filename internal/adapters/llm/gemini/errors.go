package gemini

import "errors"

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("gemini api key is required")
	// ErrNotInitialized is returned by a zero Generator.
	ErrNotInitialized = errors.New("gemini generator is not initialized")
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("gemini api returned empty response")
)
