package model

import "fmt"

// LoadError indicates the model file could not be loaded or its
// input/output signature is not usable.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("load model %s", e.Path)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// InferenceError indicates a single inference call failed. The session
// stays usable for the next cycle.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
