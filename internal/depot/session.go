package depot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"depot/internal/store"
)

// Session statuses. There is no failed terminal state: a failed completion
// leaves the session in-progress so the client can retry, and a successful
// completion deletes the session record outright.
const (
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// UploadSession ties an upload identifier to its target filename, content
// type, and declared size for the duration of a chunked upload. It is
// persisted as a small JSON object in the store under "{uploadId}.meta"
// and deleted after completion.
type UploadSession struct {
	UploadID     string    `json:"uploadId"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"contentType"`
	DeclaredSize int64     `json:"declaredSize"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateSession registers a new upload and returns its identifier. The
// declared size is advisory; it only steers the reassembly strategy later.
func (d *Depot) CreateSession(ctx context.Context, filename, contentType string, declaredSize int64) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("%w: filename must not be empty", ErrInvalidRequest)
	}
	if declaredSize < 0 {
		return "", fmt.Errorf("%w: declared size must not be negative", ErrInvalidRequest)
	}
	if contentType == "" {
		contentType = store.DefaultContentType
	}

	session := UploadSession{
		UploadID:     uuid.NewString(),
		Filename:     filename,
		ContentType:  contentType,
		DeclaredSize: declaredSize,
		Status:       StatusInProgress,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	if err := d.store.Put(ctx, metaKey(session.UploadID), data, "application/json"); err != nil {
		return "", fmt.Errorf("persist session %s: %w", session.UploadID, err)
	}

	return session.UploadID, nil
}

// GetSession loads the session record for uploadID. ErrSessionNotFound
// covers both identifiers that never existed and uploads that already
// completed and were cleaned up.
func (d *Depot) GetSession(ctx context.Context, uploadID string) (UploadSession, error) {
	data, _, err := d.store.Get(ctx, metaKey(uploadID))
	if errors.Is(err, store.ErrNotExist) {
		return UploadSession{}, ErrSessionNotFound
	}
	if err != nil {
		return UploadSession{}, fmt.Errorf("load session %s: %w", uploadID, err)
	}

	var session UploadSession
	if err := json.Unmarshal(data, &session); err != nil {
		return UploadSession{}, fmt.Errorf("decode session %s: %w", uploadID, err)
	}
	return session, nil
}
