package object

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidKey is returned for storage keys that escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Object describes a stored file.
type Object struct {
	Key       string
	SizeBytes int64
	MimeType  string
}

// ObjectStore saves, probes and removes uploaded documents.
type ObjectStore interface {
	Save(ctx context.Context, userID string, fileName string, r io.Reader) (Object, error)
	Exists(ctx context.Context, storageKey string) (bool, error)
	// Delete removes storageKey. Deleting a missing object is not an error.
	Delete(ctx context.Context, storageKey string) error
}
