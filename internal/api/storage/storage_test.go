package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStorageFromDB(sqlx.NewDb(db, "postgres"), logger), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var jobRowColumns = []string{
	"id", "owner_user_id", "title", "prompt", "preset", "requested_duration_sec", "status",
	"result_ref", "error_message", "actual_duration_sec", "created_at", "updated_at",
}

func jobRow(status string, resultRef any) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(jobRowColumns).
		AddRow("job-1", "u1", "Title", "a prompt", nil, nil, status, resultRef, nil, 42, now, now)
}

func TestChargeCredits(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(mock sqlmock.Sqlmock)
		wantBalance int64
		wantKind    domain.ErrorKind
	}{
		{
			name: "charged",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q("UPDATE users")).
					WithArgs(int64(1), "u1").
					WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(4)))
			},
			wantBalance: 4,
		},
		{
			name: "insufficient",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q("UPDATE users")).
					WithArgs(int64(1), "u1").
					WillReturnRows(sqlmock.NewRows([]string{"credits"}))
				mock.ExpectQuery(q("SELECT credits FROM users WHERE id = $1")).
					WithArgs("u1").
					WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(0)))
			},
			wantKind: domain.KindInsufficientCredits,
		},
		{
			name: "unknown user",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q("UPDATE users")).
					WithArgs(int64(1), "u1").
					WillReturnRows(sqlmock.NewRows([]string{"credits"}))
				mock.ExpectQuery(q("SELECT credits FROM users WHERE id = $1")).
					WithArgs("u1").
					WillReturnRows(sqlmock.NewRows([]string{"credits"}))
			},
			wantKind: domain.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			tt.setup(mock)

			balance, err := s.ChargeCredits(context.Background(), "u1", 1)
			if tt.wantKind != domain.KindInternal {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantBalance, balance)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateJob(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	job := &domain.Job{
		ID:          "job-1",
		OwnerUserID: "u1",
		Title:       "Title",
		Prompt:      "a prompt",
		Status:      domain.JobStatusQueued,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	lockUser := func(mock sqlmock.Sqlmock) {
		mock.ExpectBegin()
		mock.ExpectQuery(q("SELECT id FROM users WHERE id = $1 FOR UPDATE")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	}

	t.Run("charged and inserted", func(t *testing.T) {
		s, mock := newMockStorage(t)
		lockUser(mock)
		mock.ExpectQuery(q("UPDATE users")).
			WithArgs(int64(1), "u1").
			WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(2)))
		mock.ExpectQuery(q("SELECT created_at FROM jobs")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
		mock.ExpectExec(q("INSERT INTO jobs")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		balance, err := s.CreateJob(context.Background(), job, 1, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(2), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient credits rolls back", func(t *testing.T) {
		s, mock := newMockStorage(t)
		lockUser(mock)
		mock.ExpectQuery(q("UPDATE users")).
			WithArgs(int64(1), "u1").
			WillReturnRows(sqlmock.NewRows([]string{"credits"}))
		mock.ExpectQuery(q("SELECT credits FROM users WHERE id = $1")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(0)))
		mock.ExpectRollback()

		_, err := s.CreateJob(context.Background(), job, 1, 5*time.Second)
		require.Error(t, err)
		assert.Equal(t, domain.KindInsufficientCredits, domain.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cooldown rolls back the charge", func(t *testing.T) {
		s, mock := newMockStorage(t)
		lockUser(mock)
		mock.ExpectQuery(q("UPDATE users")).
			WithArgs(int64(1), "u1").
			WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(2)))
		mock.ExpectQuery(q("SELECT created_at FROM jobs")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created.Add(-2 * time.Second)))
		mock.ExpectRollback()

		_, err := s.CreateJob(context.Background(), job, 1, 5*time.Second)
		require.Error(t, err)
		assert.Equal(t, domain.KindRateLimited, domain.KindOf(err))
		var de *domain.Error
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 3*time.Second, de.RetryAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransitionJob(t *testing.T) {
	from := []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusProcessing}

	t.Run("applied", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(q("UPDATE jobs")).
			WithArgs("DONE", "generated/job-1.mp3", nil, int64(42), "job-1", sqlmock.AnyArg()).
			WillReturnRows(jobRow("DONE", "generated/job-1.mp3"))

		d := 42
		job, err := s.TransitionJob(context.Background(), "job-1", from, domain.Done("generated/job-1.mp3", &d))
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusDone, job.Status)
		assert.Equal(t, "generated/job-1.mp3", *job.ResultRef)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status changed concurrently", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(q("UPDATE jobs")).
			WillReturnRows(sqlmock.NewRows(jobRowColumns))
		mock.ExpectQuery(q("FROM jobs WHERE id = $1")).
			WithArgs("job-1").
			WillReturnRows(jobRow("FAILED", nil))

		_, err := s.TransitionJob(context.Background(), "job-1", from, domain.Done("generated/job-1.mp3", nil))
		assert.ErrorIs(t, err, ErrStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing job", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(q("UPDATE jobs")).
			WillReturnRows(sqlmock.NewRows(jobRowColumns))
		mock.ExpectQuery(q("FROM jobs WHERE id = $1")).
			WithArgs("job-1").
			WillReturnRows(sqlmock.NewRows(jobRowColumns))

		_, err := s.TransitionJob(context.Background(), "job-1", from, domain.Failed("boom"))
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertTrack(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "owner_user_id", "source_job_id", "title", "audio_ref", "duration_seconds",
		"is_public", "share_slug", "story_id", "part_index", "part_title", "created_at", "updated_at",
	}

	mock.ExpectQuery(q("ON CONFLICT (owner_user_id, audio_ref) DO UPDATE")).
		WithArgs("track-new", "u1", "job-1", "Title", "generated/job-1.mp3", int64(42), nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("track-old", "u1", "job-1", "Old title", "generated/job-1.mp3", 42, false, nil, nil, nil, nil, now, now))

	jobID, d := "job-1", 42
	track, err := s.UpsertTrack(context.Background(), &domain.Track{
		ID:              "track-new",
		OwnerUserID:     "u1",
		SourceJobID:     &jobID,
		Title:           "Title",
		AudioRef:        "generated/job-1.mp3",
		DurationSeconds: &d,
	})
	require.NoError(t, err)
	assert.Equal(t, "track-old", track.ID)
	assert.Equal(t, "Old title", track.Title)
	assert.Equal(t, 42, *track.DurationSeconds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTracks_StoryHasNoLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "owner_user_id", "source_job_id", "title", "audio_ref", "duration_seconds",
		"is_public", "share_slug", "story_id", "part_index", "part_title", "created_at", "updated_at",
	}
	story := "saga"

	tests := []struct {
		name  string
		query TrackQuery
		sql   string
		args  []driver.Value
	}{
		{
			name:  "story parts",
			query: TrackQuery{OwnerUserID: "u1", StoryID: &story, PageSize: 1},
			sql:   q("t.story_id = $2 ORDER BY t.part_index ASC NULLS LAST, t.created_at ASC, t.id ASC") + "$",
			args:  []driver.Value{"u1", "saga"},
		},
		{
			name:  "library page",
			query: TrackQuery{OwnerUserID: "u1", PageSize: 1},
			sql:   q("ORDER BY t.created_at DESC, t.id DESC LIMIT $2") + "$",
			args:  []driver.Value{"u1", int64(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			mock.ExpectQuery(tt.sql).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows(cols).
					AddRow("t0", "u1", nil, "Part 0", "saga/0.mp3", nil, false, nil, "saga", 0, nil, now, now).
					AddRow("t1", "u1", nil, "Part 1", "saga/1.mp3", nil, false, nil, "saga", 1, nil, now, now))

			tracks, err := s.ListTracks(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Len(t, tracks, 2)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteTrack_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectExec(q("DELETE FROM tracks")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteTrack(context.Background(), "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_done\\`, escapeLike(`100% _done\`))
}
