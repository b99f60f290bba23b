package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by Transcribe when no model is resident.
	ErrNotLoaded = errors.New("no transcription model loaded")
	// ErrUnknownModel is returned when a model id is not in the catalog.
	ErrUnknownModel = errors.New("unknown model")
	// ErrModelMissing is wrapped by LoadError when the model file is absent.
	ErrModelMissing = errors.New("model file not found")
	// ErrEmptyModelID is wrapped by LoadError when no model id is given.
	ErrEmptyModelID = errors.New("model id is empty")
)

// LoadError reports that a model could not be made resident. It is not retried.
type LoadError struct {
	ModelID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.ModelID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
