package tracker

import (
	"errors"
	"fmt"
)

// ErrNegativeReading is returned for readings with a negative odometer value.
var ErrNegativeReading = errors.New("negative odometer reading")

// StorageError reports a failed KV operation.
//
// Read failures never surface as StorageError; they are logged and the
// tracker falls back to zero state. Only writes are reported to callers.
type StorageError struct {
	// Op is the KV operation ("set_many", "get_number", ...).
	Op string

	// Day is the record day being written, if any.
	Day Day

	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Day != "" {
		return fmt.Sprintf("storage %s (day=%s): %v", e.Op, e.Day, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError returns true if err wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
