package memory

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed write: bad kind or action, negative
// quantity, empty namespace or content. Never retried.
type ValidationError struct {
	Op        string
	Namespace string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Namespace == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Namespace, e.Reason)
}

// NotFoundError is returned when a memory lookup misses.
type NotFoundError struct {
	Namespace string
	ID        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory not found: %s [%s]", e.ID, e.Namespace)
}

// StorageError wraps a failure of the underlying storage medium. The façade
// retries these with bounded exponential backoff before surfacing them.
type StorageError struct {
	Op        string
	Namespace string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s [%s]: %v", e.Op, e.Namespace, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a storage-medium failure worth
// retrying. Validation and not-found errors are terminal.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
