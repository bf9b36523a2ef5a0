package usecase

import "errors"

var (
	// ErrTrainingInProgress is returned when a training run is requested
	// while another is still running.
	ErrTrainingInProgress = errors.New("training already in progress")

	// ErrInvalidRequest wraps malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
)
