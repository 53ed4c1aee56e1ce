package depot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates malformed caller input. No state is
	// created before validation passes.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSessionNotFound indicates the upload identifier does not resolve
	// to a session, either because it never existed or because the upload
	// already completed and was cleaned up.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrFileNotFound indicates a download request for a key with no
	// completed object.
	ErrFileNotFound = errors.New("file not found")

	// ErrReassemblyFailed indicates a store-level failure while
	// concatenating chunks or finalizing a multipart upload. Chunks and
	// session metadata are left intact so completion can be retried.
	ErrReassemblyFailed = errors.New("reassembly failed")

	// ErrCompletionInFlight indicates a concurrent CompleteUpload call for
	// the same upload identifier.
	ErrCompletionInFlight = errors.New("completion already in progress for this upload")
)

// MissingChunkError reports the first gap found when verifying that every
// chunk index exists before reassembly.
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("missing chunk %d", e.Index)
}
