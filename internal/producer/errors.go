package producer

import "fmt"

// PanicError carries a panic recovered from a background task
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("background task panicked: %v", e.Value)
}
