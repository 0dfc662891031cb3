package drive

import (
	"errors"
	"fmt"
)

// ErrInvalidPath reports an empty or malformed folder path.
var ErrInvalidPath = errors.New("drive: invalid folder path")

// RemoteError wraps a failed Drive API call (credentials, quota, connectivity).
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("drive: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Code identifies the error kind for handler summary logs.
func (e *RemoteError) Code() string { return "DRIVE_REMOTE" }

func remoteErr(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}
