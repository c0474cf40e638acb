package parser

import "errors"

var (
	// ErrUnsupportedBackend is returned by New for an unknown Kind.
	ErrUnsupportedBackend = errors.New("unsupported parser backend")

	// ErrBackendUnavailable is returned when a backend cannot serve requests,
	// for example when the layout service is not configured.
	ErrBackendUnavailable = errors.New("parser backend unavailable")

	// ErrEmptyDocument is returned for a file with no bytes.
	ErrEmptyDocument = errors.New("document is empty")
)
