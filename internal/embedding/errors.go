package embedding

import (
	"errors"
	"fmt"
)

// ErrEmbeddingFailed is returned when a model produced no usable vector
var ErrEmbeddingFailed = errors.New("embedding failed")

// ModelLoadError is returned by Embed when the model could not be loaded.
// The load is attempted again on the next call.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load embedding model: %v", e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}
