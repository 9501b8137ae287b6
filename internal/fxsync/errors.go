package fxsync

import (
	"fmt"

	"github.com/odyssey-erp/fxsync/internal/rates"
)

// UpstreamError reports a non-200 response from the rate API.
type UpstreamError = rates.UpstreamError

// StorageWriteError means the raw snapshot could not be archived. The load
// step was not attempted.
type StorageWriteError struct {
	Key string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("fxsync: archive %s: %v", e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// LoadError means the stored procedure call failed. The archived copy stays in
// place and can be reloaded by key.
type LoadError struct {
	Key        string
	SnapshotAt string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("fxsync: load snapshot %s (%s): %v", e.SnapshotAt, e.Key, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
