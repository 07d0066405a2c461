package alerts

import (
	"errors"
	"fmt"
)

// ErrNoConnectivity means the remote store cannot be reached right now.
var ErrNoConnectivity = errors.New("no internet connection")

// RemoteWriteError is a failed push of one alert to the remote store. The
// record's attempt counter has been bumped.
type RemoteWriteError struct {
	AlertID string
	Err     error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("push alert %s: %v", e.AlertID, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// LocalStoreError is a failure of the on-device alert store.
type LocalStoreError struct {
	Op  string
	Err error
}

func (e *LocalStoreError) Error() string {
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *LocalStoreError) Unwrap() error { return e.Err }

func localErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &LocalStoreError{Op: op, Err: err}
}
