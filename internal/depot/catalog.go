package depot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"depot/internal/store"
)

// FileInfo describes one completed, user-visible file in the catalog.
type FileInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ListFiles lists completed objects, excluding transient chunk and session
// metadata keys. The exclusion holds even when a cleanup sweep partially
// failed and left transient objects behind.
func (d *Depot) ListFiles(ctx context.Context) ([]FileInfo, error) {
	objects, err := d.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list store contents: %w", err)
	}

	files := make([]FileInfo, 0, len(objects))
	for _, obj := range objects {
		if isTransientKey(obj.Key) {
			continue
		}
		files = append(files, FileInfo{
			Name:       obj.Key,
			Size:       obj.Size,
			UploadedAt: obj.UploadedAt,
		})
	}
	return files, nil
}

// Download returns the payload and content type of a completed file.
func (d *Depot) Download(ctx context.Context, name string) ([]byte, string, error) {
	if name == "" || isTransientKey(name) {
		return nil, "", ErrFileNotFound
	}

	data, contentType, err := d.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotExist) {
		return nil, "", ErrFileNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read file %q: %w", name, err)
	}
	return data, contentType, nil
}
