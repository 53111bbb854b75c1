package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrCredentialMissing = errors.New("no api key set for session")
	ErrEmbeddingProvider = errors.New("embedding provider failure")
	ErrGenerationFailed  = errors.New("generation failed")
)
