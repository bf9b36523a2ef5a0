package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is on the typed errors below.
var (
	ErrData            = errors.New("data error")
	ErrSchema          = errors.New("schema error")
	ErrArtifactMissing = errors.New("artifact missing")
)

// DataError reports that the training dataset is absent or unusable.
type DataError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	msg := "data error"
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

func (e *DataError) Is(target error) bool { return target == ErrData }

// SchemaError reports a required column missing from the dataset.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("schema error: missing column %q", e.Column)
	}
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ArtifactMissingError reports that the persisted artifact triple cannot be
// loaded as a consistent unit. Serving must refuse to score when it occurs.
type ArtifactMissingError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *ArtifactMissingError) Error() string {
	msg := fmt.Sprintf("artifact missing: %s", e.Artifact)
	if e.Path != "" {
		msg += fmt.Sprintf(" at %s", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArtifactMissingError) Unwrap() error { return e.Err }

func (e *ArtifactMissingError) Is(target error) bool { return target == ErrArtifactMissing }
