package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryObject struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

type memoryMultipart struct {
	key         string
	contentType string
	parts       map[int][]byte
	etags       map[int]string
}

// MemoryStore is an in-memory Store used as the zero-configuration dev
// backend and as the test double for the coordinator. All state is lost on
// process exit.
type MemoryStore struct {
	mu         sync.RWMutex
	objects    map[string]memoryObject
	multiparts map[string]*memoryMultipart
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:    make(map[string]memoryObject),
		multiparts: make(map[string]*memoryMultipart),
	}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("put: key must not be empty")
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: buf, contentType: contentType, uploadedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotExist
	}

	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, obj.contentType, nil
}

func (m *MemoryStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotExist
	}

	return ObjectInfo{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UploadedAt:  obj.uploadedAt,
	}, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, ObjectInfo{
			Key:         key,
			Size:        int64(len(obj.data)),
			ContentType: obj.contentType,
			UploadedAt:  obj.uploadedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *MemoryStore) BeginMultipart(_ context.Context, key string, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("begin multipart: key must not be empty")
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	handle := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.multiparts[handle] = &memoryMultipart{
		key:         key,
		contentType: contentType,
		parts:       make(map[int][]byte),
		etags:       make(map[int]string),
	}
	return handle, nil
}

func (m *MemoryStore) UploadPart(_ context.Context, handle string, partNumber int, data []byte) (CompletedPart, error) {
	if partNumber < 1 {
		return CompletedPart{}, fmt.Errorf("upload part: part number %d is not positive", partNumber)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	sum := md5.Sum(buf)
	etag := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()

	mp, ok := m.multiparts[handle]
	if !ok {
		return CompletedPart{}, fmt.Errorf("upload part: unknown multipart handle %q", handle)
	}

	mp.parts[partNumber] = buf
	mp.etags[partNumber] = etag
	return CompletedPart{PartNumber: partNumber, ETag: etag}, nil
}

func (m *MemoryStore) CompleteMultipart(_ context.Context, handle string, parts []CompletedPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mp, ok := m.multiparts[handle]
	if !ok {
		return fmt.Errorf("complete multipart: unknown multipart handle %q", handle)
	}

	sorted := make([]CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var assembled []byte
	for _, part := range sorted {
		data, ok := mp.parts[part.PartNumber]
		if !ok {
			return fmt.Errorf("complete multipart: part %d was never uploaded", part.PartNumber)
		}
		if mp.etags[part.PartNumber] != part.ETag {
			return fmt.Errorf("complete multipart: etag mismatch for part %d", part.PartNumber)
		}
		assembled = append(assembled, data...)
	}

	m.objects[mp.key] = memoryObject{
		data:        assembled,
		contentType: mp.contentType,
		uploadedAt:  time.Now().UTC(),
	}
	delete(m.multiparts, handle)
	return nil
}

func (m *MemoryStore) AbortMultipart(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.multiparts, handle)
	return nil
}
