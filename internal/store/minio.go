package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinioStore is a Store backed by any S3-compatible service via the MinIO
// client. Multipart uploads use the low-level Core client so parts can be
// pushed individually and completed with an explicit part list.
type MinioStore struct {
	core   *minio.Core
	bucket string

	// handle -> target object key for multipart uploads opened by this
	// process. The Core API needs the object key on every part call but
	// callers only carry the opaque handle.
	mu      sync.Mutex
	targets map[string]string
}

// NewMinioStore connects to the configured endpoint and ensures the bucket
// exists, creating it if necessary.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio store: bucket must not be empty")
	}

	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := core.Client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := core.Client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{
		core:    core,
		bucket:  cfg.Bucket,
		targets: make(map[string]string),
	}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = DefaultContentType
	}

	_, err := s.core.Client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.core.Client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %q: %w", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; errors (including NoSuchKey) surface on Stat/Read.
	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", ErrNotExist
		}
		return nil, "", fmt.Errorf("stat object %q: %w", key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("read object %q: %w", key, err)
	}

	return data, info.ContentType, nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.core.Client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, ErrNotExist
		}
		return ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, err)
	}

	return ObjectInfo{
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		UploadedAt:  info.LastModified,
	}, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.core.Client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	for objectInfo := range s.core.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if objectInfo.Err != nil {
			return nil, fmt.Errorf("list objects with prefix %q: %w", prefix, objectInfo.Err)
		}
		infos = append(infos, ObjectInfo{
			Key:         objectInfo.Key,
			Size:        objectInfo.Size,
			ContentType: objectInfo.ContentType,
			UploadedAt:  objectInfo.LastModified,
		})
	}
	return infos, nil
}

func (s *MinioStore) BeginMultipart(ctx context.Context, key string, contentType string) (string, error) {
	if contentType == "" {
		contentType = DefaultContentType
	}

	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("begin multipart for %q: %w", key, err)
	}

	s.mu.Lock()
	s.targets[uploadID] = key
	s.mu.Unlock()

	return uploadID, nil
}

func (s *MinioStore) UploadPart(ctx context.Context, handle string, partNumber int, data []byte) (CompletedPart, error) {
	key, err := s.targetForHandle(handle)
	if err != nil {
		return CompletedPart{}, err
	}

	part, err := s.core.PutObjectPart(ctx, s.bucket, key, handle, partNumber, bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
	if err != nil {
		return CompletedPart{}, fmt.Errorf("upload part %d for %q: %w", partNumber, key, err)
	}

	return CompletedPart{PartNumber: part.PartNumber, ETag: part.ETag}, nil
}

func (s *MinioStore) CompleteMultipart(ctx context.Context, handle string, parts []CompletedPart) error {
	key, err := s.targetForHandle(handle)
	if err != nil {
		return err
	}

	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, part := range parts {
		completeParts = append(completeParts, minio.CompletePart{
			PartNumber: part.PartNumber,
			ETag:       part.ETag,
		})
	}

	if _, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, handle, completeParts, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("complete multipart for %q: %w", key, err)
	}

	s.forgetHandle(handle)
	return nil
}

func (s *MinioStore) AbortMultipart(ctx context.Context, handle string) error {
	key, err := s.targetForHandle(handle)
	if err != nil {
		return err
	}

	if err := s.core.AbortMultipartUpload(ctx, s.bucket, key, handle); err != nil {
		return fmt.Errorf("abort multipart for %q: %w", key, err)
	}

	s.forgetHandle(handle)
	return nil
}

func (s *MinioStore) targetForHandle(handle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.targets[handle]
	if !ok {
		return "", fmt.Errorf("unknown multipart handle %q", handle)
	}
	return key, nil
}

func (s *MinioStore) forgetHandle(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, handle)
}
