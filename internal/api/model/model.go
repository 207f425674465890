package model

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

type User struct {
	ID                      string         `db:"id"`
	Email                   string         `db:"email"`
	IsAdmin                 bool           `db:"is_admin"`
	Credits                 int64          `db:"credits"`
	ExternalCustomerRef     sql.NullString `db:"external_customer_ref"`
	ExternalSubscriptionRef sql.NullString `db:"external_subscription_ref"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
}

type Job struct {
	ID                   string         `db:"id"`
	OwnerUserID          string         `db:"owner_user_id"`
	Title                string         `db:"title"`
	Prompt               string         `db:"prompt"`
	Preset               sql.NullString `db:"preset"`
	RequestedDurationSec sql.NullInt32  `db:"requested_duration_sec"`
	Status               string         `db:"status"`
	ResultRef            sql.NullString `db:"result_ref"`
	ErrorMessage         sql.NullString `db:"error_message"`
	ActualDurationSec    sql.NullInt32  `db:"actual_duration_sec"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

type Track struct {
	ID              string         `db:"id"`
	OwnerUserID     string         `db:"owner_user_id"`
	SourceJobID     sql.NullString `db:"source_job_id"`
	Title           string         `db:"title"`
	AudioRef        string         `db:"audio_ref"`
	DurationSeconds sql.NullInt32  `db:"duration_seconds"`
	IsPublic        bool           `db:"is_public"`
	ShareSlug       sql.NullString `db:"share_slug"`
	StoryID         sql.NullString `db:"story_id"`
	PartIndex       sql.NullInt32  `db:"part_index"`
	PartTitle       sql.NullString `db:"part_title"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (u User) ToDomain() *domain.User {
	return &domain.User{
		ID:                      u.ID,
		Email:                   u.Email,
		IsAdmin:                 u.IsAdmin,
		Credits:                 u.Credits,
		ExternalCustomerRef:     StringPtr(u.ExternalCustomerRef),
		ExternalSubscriptionRef: StringPtr(u.ExternalSubscriptionRef),
		CreatedAt:               u.CreatedAt,
		UpdatedAt:               u.UpdatedAt,
	}
}

func (j Job) ToDomain() (*domain.Job, error) {
	status, err := domain.ParseJobStatus(j.Status)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}

	return &domain.Job{
		ID:                   j.ID,
		OwnerUserID:          j.OwnerUserID,
		Title:                j.Title,
		Prompt:               j.Prompt,
		Preset:               StringPtr(j.Preset),
		RequestedDurationSec: IntPtr(j.RequestedDurationSec),
		Status:               status,
		ResultRef:            StringPtr(j.ResultRef),
		ErrorMessage:         StringPtr(j.ErrorMessage),
		ActualDurationSec:    IntPtr(j.ActualDurationSec),
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            j.UpdatedAt,
	}, nil
}

func JobFromDomain(j *domain.Job) Job {
	return Job{
		ID:                   j.ID,
		OwnerUserID:          j.OwnerUserID,
		Title:                j.Title,
		Prompt:               j.Prompt,
		Preset:               NullString(j.Preset),
		RequestedDurationSec: NullInt(j.RequestedDurationSec),
		Status:               string(j.Status),
		ResultRef:            NullString(j.ResultRef),
		ErrorMessage:         NullString(j.ErrorMessage),
		ActualDurationSec:    NullInt(j.ActualDurationSec),
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            j.UpdatedAt,
	}
}

func (t Track) ToDomain() *domain.Track {
	return &domain.Track{
		ID:              t.ID,
		OwnerUserID:     t.OwnerUserID,
		SourceJobID:     StringPtr(t.SourceJobID),
		Title:           t.Title,
		AudioRef:        t.AudioRef,
		DurationSeconds: IntPtr(t.DurationSeconds),
		IsPublic:        t.IsPublic,
		ShareSlug:       StringPtr(t.ShareSlug),
		StoryID:         StringPtr(t.StoryID),
		PartIndex:       IntPtr(t.PartIndex),
		PartTitle:       StringPtr(t.PartTitle),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func IntPtr(ni sql.NullInt32) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int32)
	return &i
}

func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func NullInt(i *int) sql.NullInt32 {
	if i == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*i), Valid: true}
}
