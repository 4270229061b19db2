package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyProcessed indicates a guarded transition was skipped because
	// another writer already completed the record.
	ErrAlreadyProcessed = errors.New("repository: already processed")
)
