package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const jobColumns = `id, owner_user_id, title, prompt, preset, requested_duration_sec, status,
	result_ref, error_message, actual_duration_sec, created_at, updated_at`

// CreateJob persists a QUEUED job and charges its owner in one transaction.
// The owner row is locked first so the charge and the creation cooldown see
// a consistent view under concurrent creates.
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job, cost int64, cooldown time.Duration) (int64, error) {
	var balance int64

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked string
		err := tx.GetContext(ctx, &locked, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, job.OwnerUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound("user")
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		// charged first so an exhausted balance is reported ahead of the
		// cooldown; a cooldown rejection rolls the charge back
		balance, err = chargeCredits(ctx, tx, job.OwnerUserID, cost)
		if err != nil {
			return err
		}

		if cooldown > 0 {
			var last time.Time
			err = tx.GetContext(ctx, &last, `
				SELECT created_at FROM jobs
				WHERE owner_user_id = $1
				ORDER BY created_at DESC
				LIMIT 1
			`, job.OwnerUserID)
			switch {
			case err == nil:
				if wait := last.Add(cooldown).Sub(job.CreatedAt); wait > 0 {
					return domain.NewRateLimited("a job was created moments ago, please wait", wait)
				}
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("failed to check creation cooldown: %w", err)
			}
		}

		row := model.JobFromDomain(job)
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO jobs (
				id, owner_user_id, title, prompt, preset, requested_duration_sec, status,
				result_ref, error_message, actual_duration_sec, created_at, updated_at
			) VALUES (
				:id, :owner_user_id, :title, :prompt, :preset, :requested_duration_sec, :status,
				:result_ref, :error_message, :actual_duration_sec, :created_at, :updated_at
			)
		`, row)
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.OwnerUserID),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var row model.Job
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("job")
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.ToDomain()
}

// ListJobs returns an owner's jobs newest first.
func (s *Storage) ListJobs(ctx context.Context, ownerUserID string, take, skip int) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	var rows []model.Job
	if err := s.db.SelectContext(ctx, &rows, query, ownerUserID, take, skip); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.ToDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// TransitionJob applies outcome only if the job's current status is one of
// from (any status when from is empty). It returns ErrStatusConflict when the
// job exists in another status.
func (s *Storage) TransitionJob(ctx context.Context, jobID string, from []domain.JobStatus, outcome domain.JobOutcome) (*domain.Job, error) {
	expected := make([]string, 0, len(from))
	for _, st := range from {
		expected = append(expected, string(st))
	}

	query := `
		UPDATE jobs
		SET status = $1::text,
		    result_ref = CASE WHEN $1::text = 'DONE' THEN $2::text ELSE NULL END,
		    error_message = CASE WHEN $1::text = 'FAILED' THEN $3::text WHEN $1::text = 'DONE' THEN NULL ELSE error_message END,
		    actual_duration_sec = CASE WHEN $1::text = 'DONE' THEN $4::int ELSE actual_duration_sec END,
		    updated_at = NOW()
		WHERE id = $5
		  AND (cardinality($6::text[]) = 0 OR status = ANY($6::text[]))
		RETURNING ` + jobColumns

	var row model.Job
	err := s.db.QueryRowxContext(ctx, query,
		string(outcome.Status),
		model.NullString(outcome.ResultRef),
		model.NullString(outcome.ErrorMessage),
		model.NullInt(outcome.ActualDurationSec),
		jobID,
		pq.Array(expected),
	).StructScan(&row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to transition job: %w", err)
		}
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return nil, getErr
		}
		s.logger.Warn("Job transition lost race",
			slog.String("job_id", jobID),
			slog.String("to", string(outcome.Status)),
		)
		return nil, ErrStatusConflict
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", row.Status),
	)
	return row.ToDomain()
}

// DeleteJob removes the job row. Tracks keep a nullable back-reference.
func (s *Storage) DeleteJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return requireAffected(res, "job")
}
