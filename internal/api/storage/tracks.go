package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/model"
)

const trackColumns = `t.id, t.owner_user_id, t.source_job_id, t.title, t.audio_ref, t.duration_seconds,
	t.is_public, t.share_slug, t.story_id, t.part_index, t.part_title, t.created_at, t.updated_at`

// UpsertTrack inserts a track or, when one already exists for the same
// (owner_user_id, audio_ref), fills in a newly known duration and returns it.
func (s *Storage) UpsertTrack(ctx context.Context, track *domain.Track) (*domain.Track, error) {
	query := `
		INSERT INTO tracks AS t (
			id, owner_user_id, source_job_id, title, audio_ref, duration_seconds,
			is_public, share_slug, story_id, part_index, part_title, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, FALSE, NULL, $7, $8, $9, NOW(), NOW()
		)
		ON CONFLICT (owner_user_id, audio_ref) DO UPDATE
		SET duration_seconds = COALESCE(EXCLUDED.duration_seconds, t.duration_seconds),
		    source_job_id = COALESCE(t.source_job_id, EXCLUDED.source_job_id),
		    updated_at = CASE
		        WHEN EXCLUDED.duration_seconds IS DISTINCT FROM t.duration_seconds
		             AND EXCLUDED.duration_seconds IS NOT NULL THEN NOW()
		        ELSE t.updated_at
		    END
		RETURNING ` + trackColumns

	var row model.Track
	err := s.db.QueryRowxContext(ctx, query,
		track.ID,
		track.OwnerUserID,
		model.NullString(track.SourceJobID),
		track.Title,
		track.AudioRef,
		model.NullInt(track.DurationSeconds),
		model.NullString(track.StoryID),
		model.NullInt(track.PartIndex),
		model.NullString(track.PartTitle),
	).StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert track: %w", err)
	}

	s.logger.Debug("Track upserted",
		slog.String("track_id", row.ID),
		slog.String("audio_ref", row.AudioRef),
	)
	return row.ToDomain(), nil
}

func (s *Storage) GetTrack(ctx context.Context, trackID string) (*domain.Track, error) {
	return s.getTrack(ctx, `SELECT `+trackColumns+` FROM tracks t WHERE t.id = $1`, trackID)
}

// TrackBySlug only finds tracks that are currently public.
func (s *Storage) TrackBySlug(ctx context.Context, slug string) (*domain.Track, error) {
	return s.getTrack(ctx, `SELECT `+trackColumns+` FROM tracks t WHERE t.share_slug = $1 AND t.is_public`, slug)
}

func (s *Storage) getTrack(ctx context.Context, query string, args ...interface{}) (*domain.Track, error) {
	var row model.Track
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("track")
		}
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return row.ToDomain(), nil
}

// ListTracks returns one page of an owner's library. With a story filter every
// part of the story is returned in part order and the cursor and page size are
// ignored. Otherwise one extra row is fetched to signal that more results exist.
func (s *Storage) ListTracks(ctx context.Context, q TrackQuery) ([]*domain.Track, error) {
	query := `SELECT ` + trackColumns + `
		FROM tracks t
		LEFT JOIN jobs j ON j.id = t.source_job_id
		WHERE t.owner_user_id = $1
	`
	args := []interface{}{q.OwnerUserID}
	argIdx := 2

	if search := strings.TrimSpace(q.Search); search != "" {
		query += fmt.Sprintf(" AND (t.title ILIKE $%d OR j.prompt ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+escapeLike(search)+"%")
		argIdx++
	}

	if q.StoryID != nil {
		query += fmt.Sprintf(" AND t.story_id = $%d", argIdx)
		args = append(args, *q.StoryID)
		argIdx++
		query += " ORDER BY t.part_index ASC NULLS LAST, t.created_at ASC, t.id ASC"
	} else {
		if q.Cursor != nil {
			query += fmt.Sprintf(" AND (t.created_at, t.id) < ($%d, $%d)", argIdx, argIdx+1)
			args = append(args, q.Cursor.CreatedAt, q.Cursor.TrackID)
			argIdx += 2
		}
		query += " ORDER BY t.created_at DESC, t.id DESC"
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, q.PageSize+1)
	}

	var rows []model.Track
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}

	tracks := make([]*domain.Track, 0, len(rows))
	for _, r := range rows {
		tracks = append(tracks, r.ToDomain())
	}
	return tracks, nil
}

func (s *Storage) TracksByJob(ctx context.Context, jobID string) ([]*domain.Track, error) {
	var rows []model.Track
	err := s.db.SelectContext(ctx, &rows, `SELECT `+trackColumns+` FROM tracks t WHERE t.source_job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job tracks: %w", err)
	}

	tracks := make([]*domain.Track, 0, len(rows))
	for _, r := range rows {
		tracks = append(tracks, r.ToDomain())
	}
	return tracks, nil
}

func (s *Storage) RenameTrack(ctx context.Context, trackID, title string) (*domain.Track, error) {
	return s.updateTrack(ctx, `
		UPDATE tracks t SET title = $1, updated_at = NOW()
		WHERE t.id = $2
		RETURNING `+trackColumns, title, trackID)
}

func (s *Storage) AssignStory(ctx context.Context, trackID string, a domain.StoryAssignment) (*domain.Track, error) {
	return s.updateTrack(ctx, `
		UPDATE tracks t
		SET story_id = $1, part_index = $2, part_title = $3, updated_at = NOW()
		WHERE t.id = $4
		RETURNING `+trackColumns,
		model.NullString(a.StoryID), model.NullInt(a.PartIndex), model.NullString(a.PartTitle), trackID)
}

// SetTrackShare stores the publish flag together with its slug.
func (s *Storage) SetTrackShare(ctx context.Context, trackID string, public bool, slug *string) (*domain.Track, error) {
	return s.updateTrack(ctx, `
		UPDATE tracks t SET is_public = $1, share_slug = $2, updated_at = NOW()
		WHERE t.id = $3
		RETURNING `+trackColumns, public, model.NullString(slug), trackID)
}

func (s *Storage) updateTrack(ctx context.Context, query string, args ...interface{}) (*domain.Track, error) {
	var row model.Track
	if err := s.db.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("track")
		}
		return nil, fmt.Errorf("failed to update track: %w", err)
	}
	return row.ToDomain(), nil
}

func (s *Storage) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tracks WHERE share_slug = $1)`, slug); err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// AudioRefInUse reports whether any job result or any other track still points at ref.
func (s *Storage) AudioRefInUse(ctx context.Context, ref, exceptTrackID string) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM jobs WHERE result_ref = $1)
		    OR EXISTS(SELECT 1 FROM tracks WHERE audio_ref = $1 AND id <> $2)
	`
	var inUse bool
	if err := s.db.GetContext(ctx, &inUse, query, ref, exceptTrackID); err != nil {
		return false, fmt.Errorf("failed to check audio references: %w", err)
	}
	return inUse, nil
}

func (s *Storage) DeleteTrack(ctx context.Context, trackID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = $1`, trackID)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return requireAffected(res, "track")
}
