package depot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"depot/internal/store"
)

// CompleteUpload reassembles the chunks of uploadID into a final object
// under filename and sweeps the transient state. Declared size below the
// multipart threshold selects the in-memory concatenation path; at or
// above it, the store's native multipart upload is used so the whole file
// is never buffered in this process.
//
// A failure mid-reassembly leaves chunks and session metadata intact, so
// the caller can retry CompleteUpload without re-uploading chunks.
// Concurrent completions for the same uploadID are rejected with
// ErrCompletionInFlight.
func (d *Depot) CompleteUpload(ctx context.Context, uploadID, filename string, chunkCount int) error {
	if filename == "" {
		return fmt.Errorf("%w: filename must not be empty", ErrInvalidRequest)
	}
	if chunkCount < 1 {
		return fmt.Errorf("%w: chunk count must be at least 1", ErrInvalidRequest)
	}

	if err := d.beginCompletion(uploadID); err != nil {
		return err
	}
	defer d.endCompletion(uploadID)

	session, err := d.GetSession(ctx, uploadID)
	if err != nil {
		return err
	}

	// Every index in [0, chunkCount) must exist before any byte is
	// assembled; report the first gap and touch nothing.
	for i := 0; i < chunkCount; i++ {
		if _, err := d.store.Stat(ctx, chunkKey(uploadID, i)); err != nil {
			if errors.Is(err, store.ErrNotExist) {
				return &MissingChunkError{Index: i}
			}
			return fmt.Errorf("verify chunk %d of %s: %w", i, uploadID, err)
		}
	}

	if session.DeclaredSize >= d.threshold {
		err = d.assembleMultipart(ctx, session, uploadID, filename, chunkCount)
	} else {
		err = d.assembleInMemory(ctx, session, uploadID, filename, chunkCount)
	}
	if err != nil {
		return err
	}

	// Sweep synchronously so a successful response implies no leaked
	// transient state in the common case. A failed sweep never masks the
	// completed reassembly.
	if err := d.cleanup(ctx, uploadID, chunkCount); err != nil {
		slog.Error("Cleanup after completion failed", "upload_id", uploadID, "err", err)
	}
	return nil
}

// assembleInMemory reads every chunk into memory in index order and writes
// the concatenation as a single object. Only safe below the threshold.
func (d *Depot) assembleInMemory(ctx context.Context, session UploadSession, uploadID, filename string, chunkCount int) error {
	var buf bytes.Buffer
	for i := 0; i < chunkCount; i++ {
		data, _, err := d.store.Get(ctx, chunkKey(uploadID, i))
		if err != nil {
			if errors.Is(err, store.ErrNotExist) {
				return &MissingChunkError{Index: i}
			}
			return fmt.Errorf("%w: read chunk %d: %v", ErrReassemblyFailed, i, err)
		}
		buf.Write(data)
	}

	if err := d.store.Put(ctx, filename, buf.Bytes(), session.ContentType); err != nil {
		return fmt.Errorf("%w: write final object %q: %v", ErrReassemblyFailed, filename, err)
	}

	slog.Info("Upload assembled", "upload_id", uploadID, "filename", filename, "chunks", chunkCount, "size", buf.Len(), "strategy", "concat")
	return nil
}

// assembleMultipart streams each chunk into a store-native multipart
// upload as part index+1 (store part numbering is 1-based). Parts are
// independent once the chunks are durably stored, so they are uploaded
// concurrently; finalize runs only after every part has succeeded. On any
// failure the multipart upload is abandoned for store-side expiry.
func (d *Depot) assembleMultipart(ctx context.Context, session UploadSession, uploadID, filename string, chunkCount int) error {
	handle, err := d.store.BeginMultipart(ctx, filename, session.ContentType)
	if err != nil {
		return fmt.Errorf("%w: begin multipart for %q: %v", ErrReassemblyFailed, filename, err)
	}

	parts := make([]store.CompletedPart, chunkCount)

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < chunkCount; i++ {
		eg.Go(func() error {
			data, _, err := d.store.Get(egCtx, chunkKey(uploadID, i))
			if err != nil {
				return fmt.Errorf("read chunk %d: %w", i, err)
			}

			part, err := d.store.UploadPart(egCtx, handle, i+1, data)
			if err != nil {
				return fmt.Errorf("upload part %d: %w", i+1, err)
			}

			parts[i] = part
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		d.abandonMultipart(ctx, handle, uploadID)
		return fmt.Errorf("%w: %v", ErrReassemblyFailed, err)
	}

	if err := d.store.CompleteMultipart(ctx, handle, parts); err != nil {
		d.abandonMultipart(ctx, handle, uploadID)
		return fmt.Errorf("%w: finalize multipart for %q: %v", ErrReassemblyFailed, filename, err)
	}

	slog.Info("Upload assembled", "upload_id", uploadID, "filename", filename, "chunks", chunkCount, "strategy", "multipart")
	return nil
}

func (d *Depot) abandonMultipart(ctx context.Context, handle, uploadID string) {
	if err := d.store.AbortMultipart(ctx, handle); err != nil {
		slog.Warn("Abandoning multipart upload for store-side expiry", "upload_id", uploadID, "handle", handle, "err", err)
	}
}

// cleanup deletes chunks [0, chunkCount) and the session metadata object.
// Deletions run concurrently and every key is attempted even if some fail;
// the first failure is reported after the full sweep.
func (d *Depot) cleanup(ctx context.Context, uploadID string, chunkCount int) error {
	var eg errgroup.Group

	for i := 0; i < chunkCount; i++ {
		eg.Go(func() error {
			key := chunkKey(uploadID, i)
			if err := d.store.Delete(ctx, key); err != nil {
				slog.Warn("Failed to delete chunk object", "upload_id", uploadID, "key", key, "err", err)
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		key := metaKey(uploadID)
		if err := d.store.Delete(ctx, key); err != nil {
			slog.Warn("Failed to delete session metadata", "upload_id", uploadID, "key", key, "err", err)
			return err
		}
		return nil
	})

	return eg.Wait()
}

// AbortUpload explicitly abandons an in-progress upload, sweeping its
// chunks and session metadata. There is no automatic reclamation of
// abandoned sessions; this is the only way transient state is reclaimed
// without a successful completion.
func (d *Depot) AbortUpload(ctx context.Context, uploadID string, chunkCount int) error {
	if chunkCount < 0 {
		return fmt.Errorf("%w: chunk count must not be negative", ErrInvalidRequest)
	}

	if _, err := d.GetSession(ctx, uploadID); err != nil {
		return err
	}

	if err := d.cleanup(ctx, uploadID, chunkCount); err != nil {
		slog.Error("Cleanup of aborted upload failed", "upload_id", uploadID, "err", err)
	}
	return nil
}
