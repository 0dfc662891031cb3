package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Upload is a persisted record of a completed Drive upload.
type Upload struct {
	ID          int64     `db:"id"`
	ChatID      int64     `db:"chat_id"`
	UserID      int64     `db:"user_id"`
	FileName    string    `db:"file_name"`
	Path        string    `db:"path"`
	DriveFileID string    `db:"drive_file_id"`
	SizeBytes   int64     `db:"size_bytes"`
	UploadedAt  time.Time `db:"uploaded_at"`
}

// Recorder persists completed uploads and answers history queries.
type Recorder interface {
	Record(ctx context.Context, u Upload) error
	Recent(ctx context.Context, chatID int64, limit int) ([]Upload, error)
	Count(ctx context.Context) (int64, error)
}

// UploadStore is the Postgres-backed Recorder.
type UploadStore struct {
	db *sqlx.DB
}

// NewUploadStore wraps an open database handle.
func NewUploadStore(db *sqlx.DB) *UploadStore {
	return &UploadStore{db: db}
}

// Record inserts one upload row.
func (s *UploadStore) Record(ctx context.Context, u Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO uploads (chat_id, user_id, file_name, path, drive_file_id, size_bytes, uploaded_at)
		VALUES (:chat_id, :user_id, :file_name, :path, :drive_file_id, :size_bytes, :uploaded_at)`
	if _, err := s.db.NamedExecContext(ctx, q, u); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// Recent returns the latest uploads for a chat, newest first.
func (s *UploadStore) Recent(ctx context.Context, chatID int64, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT id, chat_id, user_id, file_name, path, drive_file_id, size_bytes, uploaded_at
		FROM uploads
		WHERE chat_id = $1
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $2`
	var out []Upload
	if err := s.db.SelectContext(ctx, &out, q, chatID, limit); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return out, nil
}

// Count returns the total number of recorded uploads across all chats.
func (s *UploadStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM uploads`); err != nil {
		return 0, fmt.Errorf("count uploads: %w", err)
	}
	return n, nil
}

var _ Recorder = (*UploadStore)(nil)
