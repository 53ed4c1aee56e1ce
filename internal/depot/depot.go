package depot

import (
	"context"
	"fmt"
	"sync"

	"depot/internal/store"
)

// MultipartThreshold is the default declared-size boundary between the
// in-memory concatenation strategy and the store-native multipart
// strategy: 100 MiB.
const MultipartThreshold = 100 << 20

// Depot coordinates chunked uploads against an object store. It is
// stateless between requests; all durable state lives in the store. The
// only in-process state is the table of in-flight completions, which
// serializes CompleteUpload per upload identifier.
type Depot struct {
	store     store.Store
	threshold int64

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option configures a Depot.
type Option func(*Depot)

// WithMultipartThreshold overrides the declared-size boundary above which
// reassembly uses the store's multipart upload capability.
func WithMultipartThreshold(threshold int64) Option {
	return func(d *Depot) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// New returns a Depot backed by the given object store.
func New(s store.Store, opts ...Option) *Depot {
	d := &Depot{
		store:     s,
		threshold: MultipartThreshold,
		inFlight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReceiveChunk validates the session and persists one chunk as a transient
// object. Chunks may arrive in any order and a chunk may be re-uploaded
// before completion; the latest bytes for an index win.
func (d *Depot) ReceiveChunk(ctx context.Context, uploadID string, partIndex int, data []byte) error {
	if partIndex < 0 {
		return fmt.Errorf("%w: part index must not be negative", ErrInvalidRequest)
	}

	// Fail fast on unknown sessions rather than silently accepting orphan
	// chunks.
	if _, err := d.GetSession(ctx, uploadID); err != nil {
		return err
	}

	if err := d.store.Put(ctx, chunkKey(uploadID, partIndex), data, store.DefaultContentType); err != nil {
		return fmt.Errorf("persist chunk %d of %s: %w", partIndex, uploadID, err)
	}
	return nil
}

// beginCompletion registers uploadID in the flight table, failing if a
// completion for it is already running.
func (d *Depot) beginCompletion(uploadID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inFlight[uploadID]; busy {
		return ErrCompletionInFlight
	}
	d.inFlight[uploadID] = struct{}{}
	return nil
}

func (d *Depot) endCompletion(uploadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, uploadID)
}
