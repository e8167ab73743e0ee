package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrBackendUnavailable = errors.New("language model backend unavailable")
	ErrBackendTimeout     = errors.New("language model backend timed out")
	ErrPersistence        = errors.New("persistence failed")
)

// User-facing fallbacks. Every failure the caller can see is one of these.
const (
	ApologyMessage            = "I'm sorry, I ran into a problem while preparing my answer. Please try again in a moment."
	OverloadMessage           = "I'm having trouble working out how to help with that. Could you please rephrase your question?"
	ExtractionAcknowledgement = "Thank you, I've noted the details about your farm."
)
