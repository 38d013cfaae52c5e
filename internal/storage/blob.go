// Package storage abstracts the blob container holding user resources,
// the reindex lock and the reindex watermarks.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrBlobExists is returned by CreateIfAbsent when the blob already exists.
	ErrBlobExists = errors.New("blob already exists")
	// ErrBlobNotFound is returned when a blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")
)

// BlobStore is the minimal surface the application needs from the
// container: plain reads/writes for resources and watermarks, plus a
// conditional create used as the mutual-exclusion primitive for the
// reindex lock.
type BlobStore interface {
	// Upload writes the blob, overwriting any existing content.
	Upload(ctx context.Context, name string, data []byte, contentType string) error
	// CreateIfAbsent writes the blob only if it does not exist yet.
	// Returns ErrBlobExists otherwise.
	CreateIfAbsent(ctx context.Context, name string, data []byte) error
	// Download returns the blob content, or ErrBlobNotFound.
	Download(ctx context.Context, name string) ([]byte, error)
	// Delete removes the blob. Deleting a missing blob returns ErrBlobNotFound.
	Delete(ctx context.Context, name string) error
}
