package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// ErrStatusConflict is returned by TransitionJob when the job exists but its
// status is not one of the expected source statuses.
var ErrStatusConflict = errors.New("job status changed concurrently")

// TrackCursor is a keyset pagination position over (created_at, id) descending.
type TrackCursor struct {
	CreatedAt time.Time
	TrackID   string
}

// TrackQuery filters a user's library listing.
type TrackQuery struct {
	OwnerUserID string
	Search      string
	StoryID     *string
	Cursor      *TrackCursor
	PageSize    int
}

// Storage is the PostgreSQL implementation of the job, track and ledger stores.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// NewStorageFromDB wraps an existing handle.
func NewStorageFromDB(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to rollback transaction", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so user search text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func notFound(entity string) error {
	return domain.NewNotFound(entity)
}
