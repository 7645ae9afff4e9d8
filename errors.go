package main

import (
	"github.com/pkg/errors"
)

// Sentinel errors. Callers classify wrapped errors with errors.Cause.
var (
	// ErrResourceExhausted marks a batch that could not be processed because
	// the host ran out of (or was predicted to run out of) memory.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrUnknownArchitecture is returned for an unrecognized model selector.
	ErrUnknownArchitecture = errors.New("unknown model architecture")

	// ErrCheckpointExists is returned instead of overwriting a checkpoint.
	ErrCheckpointExists = errors.New("checkpoint already exists")

	// ErrWidthMismatch is returned when pretrained weights do not fit the
	// model's embedding width.
	ErrWidthMismatch = errors.New("embedding width mismatch")

	// ErrMissingData is returned when input files are absent and cannot be generated.
	ErrMissingData = errors.New("missing input data")

	// ErrInvalidLabel is returned for labels outside {0, 1}.
	ErrInvalidLabel = errors.New("label must be 0 or 1")
)

// isResourceExhausted reports whether err (or its cause) is ErrResourceExhausted.
func isResourceExhausted(err error) bool {
	return err != nil && errors.Cause(err) == ErrResourceExhausted
}
