package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*LocalStore)(nil)
	_ Store = (*MinioStore)(nil)
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "a.txt", []byte("hello"), "text/plain"))

	data, contentType, err := m.Get(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
	require.Equal(t, "text/plain", contentType)

	info, err := m.Stat(ctx, "a.txt")
	require.NoError(t, err)
	require.EqualValues(t, 5, info.Size)
	require.False(t, info.UploadedAt.IsZero())

	// Put is an overwrite.
	require.NoError(t, m.Put(ctx, "a.txt", []byte("rewritten"), ""))
	data, contentType, err = m.Get(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("rewritten"), data)
	require.Equal(t, DefaultContentType, contentType, "empty content type falls back to the default")

	require.NoError(t, m.Delete(ctx, "a.txt"))
	_, _, err = m.Get(ctx, "a.txt")
	require.ErrorIs(t, err, ErrNotExist)

	// Deleting an absent key is not an error.
	require.NoError(t, m.Delete(ctx, "a.txt"))
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()

	require.Error(t, m.Put(context.Background(), "", []byte("x"), ""))
}

func TestMemoryStoreListPrefix(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "id1.chunk.0", []byte("a"), ""))
	require.NoError(t, m.Put(ctx, "id1.chunk.1", []byte("b"), ""))
	require.NoError(t, m.Put(ctx, "id2.chunk.0", []byte("c"), ""))
	require.NoError(t, m.Put(ctx, "other.txt", []byte("d"), ""))

	infos, err := m.List(ctx, "id1.")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "id1.chunk.0", infos[0].Key, "listing is key-ordered")
	require.Equal(t, "id1.chunk.1", infos[1].Key)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestMemoryStoreMultipart(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()
	ctx := context.Background()

	handle, err := m.BeginMultipart(ctx, "big.bin", "application/zip")
	require.NoError(t, err)

	// Upload parts out of order; completion order is governed by part
	// number, not upload order.
	part2, err := m.UploadPart(ctx, handle, 2, []byte("-world"))
	require.NoError(t, err)
	part1, err := m.UploadPart(ctx, handle, 1, []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, m.CompleteMultipart(ctx, handle, []CompletedPart{part2, part1}))

	data, contentType, err := m.Get(ctx, "big.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("hello-world"), data)
	require.Equal(t, "application/zip", contentType)

	// The handle is consumed.
	_, err = m.UploadPart(ctx, handle, 3, []byte("x"))
	require.Error(t, err)
}

func TestMemoryStoreMultipartAbort(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()
	ctx := context.Background()

	handle, err := m.BeginMultipart(ctx, "never.bin", "")
	require.NoError(t, err)
	_, err = m.UploadPart(ctx, handle, 1, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, m.AbortMultipart(ctx, handle))

	_, _, err = m.Get(ctx, "never.bin")
	require.ErrorIs(t, err, ErrNotExist, "aborted upload must not produce an object")

	err = m.CompleteMultipart(ctx, handle, nil)
	require.Error(t, err, "completing an aborted handle must fail")
}

func TestMemoryStoreMultipartValidation(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.BeginMultipart(ctx, "", "")
	require.Error(t, err, "empty key")

	handle, err := m.BeginMultipart(ctx, "k.bin", "")
	require.NoError(t, err)

	_, err = m.UploadPart(ctx, handle, 0, []byte("x"))
	require.Error(t, err, "part numbers are 1-based")

	_, err = m.UploadPart(ctx, "bogus", 1, []byte("x"))
	require.Error(t, err, "unknown handle")

	err = m.CompleteMultipart(ctx, handle, []CompletedPart{{PartNumber: 1, ETag: "nope"}})
	require.Error(t, err, "part never uploaded")
}
