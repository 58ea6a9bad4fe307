package documents

import "errors"

var (
	ErrNotFound     = errors.New("document not found")
	ErrConflict     = errors.New("verification already in progress")
	ErrInvalidInput = errors.New("invalid input")
	// ErrStale is returned by a Repo when a create or compare-and-set loses to another writer.
	ErrStale = errors.New("stale record version")
)
