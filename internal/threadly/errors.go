package threadly

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the package boundary. Callers should compare
// against these with errors.Is; ExecutionError additionally wraps the
// original task failure.
var (
	ErrInvalidArgument        = errors.New("threadly: invalid argument")
	ErrIllegalState           = errors.New("threadly: illegal state")
	ErrCancelled              = errors.New("threadly: cancelled")
	ErrTimeout                = errors.New("threadly: timeout")
	ErrInterrupted            = errors.New("threadly: interrupted")
	ErrConcurrentModification = errors.New("threadly: concurrent modification")
)

// ExecutionError wraps the cause of a failed task, surfaced by Future.Get.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("threadly: task failed: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
