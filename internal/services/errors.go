package services

import "errors"

// Service errors
var (
	// ErrNoResults means no pipeline run has completed yet.
	ErrNoResults = errors.New("no index results available")
	// ErrNoIndicators means the configuration lists no indicator sources.
	ErrNoIndicators = errors.New("no indicators configured")
	// ErrUnknownCheck is returned for a diagnostic name outside Checks.
	ErrUnknownCheck = errors.New("unknown diagnostic check")
)
