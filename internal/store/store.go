package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotExist is returned by Get, Stat, and Delete-adjacent lookups when no
// object is stored under the requested key.
var ErrNotExist = errors.New("object does not exist")

// DefaultContentType is recorded for objects stored without an explicit
// MIME type.
const DefaultContentType = "application/octet-stream"

// ObjectInfo describes a stored object as reported by List and Stat.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

// CompletedPart is the token returned by UploadPart and consumed by
// CompleteMultipart. PartNumber is 1-based, matching S3 semantics.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// Store is the object-store surface the upload coordinator is built
// against. Implementations must treat Put as an overwrite and must make a
// multipart upload visible only once CompleteMultipart returns.
type Store interface {
	// Put stores data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves the payload and content type stored under key. It
	// returns ErrNotExist if the key is absent.
	Get(ctx context.Context, key string) ([]byte, string, error)

	// Stat reports metadata for the object stored under key without
	// retrieving the payload. It returns ErrNotExist if the key is absent.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes the object stored under key. Deleting an absent key
	// is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every stored object whose key begins with prefix. An
	// empty prefix lists the entire store.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// BeginMultipart opens a multipart upload for key and returns an
	// opaque handle for the subsequent part uploads.
	BeginMultipart(ctx context.Context, key string, contentType string) (string, error)

	// UploadPart stores one numbered part of the multipart upload
	// identified by handle. Part numbers are 1-based and parts for
	// distinct numbers may be uploaded concurrently.
	UploadPart(ctx context.Context, handle string, partNumber int, data []byte) (CompletedPart, error)

	// CompleteMultipart assembles the uploaded parts, in ascending part
	// number order, into the object the handle was opened for.
	CompleteMultipart(ctx context.Context, handle string, parts []CompletedPart) error

	// AbortMultipart discards an open multipart upload and any parts
	// stored for it.
	AbortMultipart(ctx context.Context, handle string) error
}
