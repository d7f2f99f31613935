package services

import (
	"errors"
	"fmt"
)

// ErrPostcodeNotFound means the search postcode could not be geocoded.
var ErrPostcodeNotFound = errors.New("postcode not found or invalid")

// StorageError wraps a failed database query. Its message is for logs only;
// callers outside the process get a generic error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
