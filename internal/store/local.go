package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// LocalStore is a Store backed by the local filesystem for payloads and
// SQLite for metadata. Payloads are content-addressed by their SHA-256
// hexadecimal hash, with the first two characters used as a subdirectory
// prefix. Multipart parts are staged as temp files and concatenated on
// completion.
type LocalStore struct {
	dataDir string
	db      *sql.DB
}

// NewLocalStore initializes the metadata database under dataDir and
// returns a new LocalStore.
func NewLocalStore(dataDir string) (*LocalStore, error) {
	if dataDir == "" {
		return nil, errors.New("dataDir must not be empty")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.sqlite")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &LocalStore{dataDir: dataDir, db: db}, nil
}

// Close closes the metadata database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS objects (
			key TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			size INTEGER NOT NULL,
			content_type TEXT,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_objects_hash ON objects(hash);`,
		`CREATE TABLE IF NOT EXISTS multipart_uploads (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL,
			content_type TEXT,
			created_at TIMESTAMP NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// payloadPath computes the filesystem path for the payload identified by
// hashHex.
func (s *LocalStore) payloadPath(hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	return filepath.Join(s.dataDir, hashHex[:2], hashHex), nil
}

func (s *LocalStore) writePayload(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	objPath, err := s.payloadPath(hashHex)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(objPath, data, 0o644); err != nil {
		return "", err
	}
	return hashHex, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("put: key must not be empty")
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	hashHex, err := s.writePayload(data)
	if err != nil {
		return fmt.Errorf("write payload for %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO objects(key, hash, size, content_type, created_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			hash=excluded.hash,
			size=excluded.size,
			content_type=excluded.content_type,
			created_at=excluded.created_at`,
		key, hashHex, len(data), contentType, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert object metadata for %q: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	var (
		hashHex     string
		contentType sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT hash, content_type FROM objects WHERE key = ?`, key,
	).Scan(&hashHex, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotExist
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup object metadata for %q: %w", key, err)
	}

	objPath, err := s.payloadPath(hashHex)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(objPath)
	if err != nil {
		return nil, "", fmt.Errorf("read payload for %q: %w", key, err)
	}

	ct := DefaultContentType
	if contentType.Valid {
		ct = contentType.String
	}
	return data, ct, nil
}

func (s *LocalStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	var (
		size        int64
		contentType sql.NullString
		createdAt   time.Time
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT size, content_type, created_at FROM objects WHERE key = ?`, key,
	).Scan(&size, &contentType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ObjectInfo{}, ErrNotExist
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("lookup object metadata for %q: %w", key, err)
	}

	info := ObjectInfo{Key: key, Size: size, ContentType: DefaultContentType, UploadedAt: createdAt}
	if contentType.Valid {
		info.ContentType = contentType.String
	}
	return info, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete object metadata for %q: %w", key, err)
	}

	// Unreferenced payload files are intentionally not garbage-collected
	// here. That can be added later based on hash reference counts.
	return nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	args := []any{}
	query := `SELECT key, size, content_type, created_at FROM objects`
	if prefix != "" {
		query += ` WHERE key LIKE ?`
		args = append(args, prefix+"%")
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var infos []ObjectInfo
	for rows.Next() {
		var (
			info        ObjectInfo
			contentType sql.NullString
		)
		if err := rows.Scan(&info.Key, &info.Size, &contentType, &info.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}
		info.ContentType = DefaultContentType
		if contentType.Valid {
			info.ContentType = contentType.String
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *LocalStore) BeginMultipart(ctx context.Context, key string, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("begin multipart: key must not be empty")
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	handle := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO multipart_uploads(id, key, content_type, created_at) VALUES(?, ?, ?, ?)`,
		handle, key, contentType, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("record multipart upload for %q: %w", key, err)
	}

	if err := os.MkdirAll(s.partDir(handle), 0o755); err != nil {
		return "", fmt.Errorf("create part dir for %q: %w", key, err)
	}
	return handle, nil
}

func (s *LocalStore) partDir(handle string) string {
	return filepath.Join(s.dataDir, "tmp", handle)
}

func (s *LocalStore) partPath(handle string, partNumber int) string {
	return filepath.Join(s.partDir(handle), fmt.Sprintf("part.%d", partNumber))
}

func (s *LocalStore) multipartTarget(ctx context.Context, handle string) (key, contentType string, err error) {
	var ct sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT key, content_type FROM multipart_uploads WHERE id = ?`, handle,
	).Scan(&key, &ct)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("unknown multipart handle %q", handle)
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup multipart handle %q: %w", handle, err)
	}

	contentType = DefaultContentType
	if ct.Valid {
		contentType = ct.String
	}
	return key, contentType, nil
}

func (s *LocalStore) UploadPart(ctx context.Context, handle string, partNumber int, data []byte) (CompletedPart, error) {
	if partNumber < 1 {
		return CompletedPart{}, fmt.Errorf("upload part: part number %d is not positive", partNumber)
	}

	if _, _, err := s.multipartTarget(ctx, handle); err != nil {
		return CompletedPart{}, err
	}

	if err := os.WriteFile(s.partPath(handle, partNumber), data, 0o644); err != nil {
		return CompletedPart{}, fmt.Errorf("write part %d for handle %q: %w", partNumber, handle, err)
	}

	sum := sha256.Sum256(data)
	return CompletedPart{PartNumber: partNumber, ETag: hex.EncodeToString(sum[:])}, nil
}

func (s *LocalStore) CompleteMultipart(ctx context.Context, handle string, parts []CompletedPart) error {
	key, contentType, err := s.multipartTarget(ctx, handle)
	if err != nil {
		return err
	}

	sorted := make([]CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var assembled []byte
	for _, part := range sorted {
		data, err := os.ReadFile(s.partPath(handle, part.PartNumber))
		if err != nil {
			return fmt.Errorf("read part %d for handle %q: %w", part.PartNumber, handle, err)
		}
		assembled = append(assembled, data...)
	}

	if err := s.Put(ctx, key, assembled, contentType); err != nil {
		return err
	}
	return s.AbortMultipart(ctx, handle)
}

func (s *LocalStore) AbortMultipart(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE id = ?`, handle); err != nil {
		return fmt.Errorf("delete multipart record %q: %w", handle, err)
	}
	return os.RemoveAll(s.partDir(handle))
}
