package storage

import (
	"context"
	"errors"
)

// ErrUploadFailed indicates the backing store rejected or lost an upload.
var ErrUploadFailed = errors.New("storage: upload failed")

// Store abstracts where entry images live. Implementations return a public
// URL that clients can fetch directly. Delete must be a no-op when the
// reference is absent, already removed, or not managed by this store.
type Store interface {
	Store(ctx context.Context, data []byte, contentType, pathHint string) (string, error)
	Delete(ctx context.Context, publicURL string) error
}
