package dto

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

// JobCreateRequest is the single typed shape of POST /jobs, whether the body
// arrived as JSON, multipart form data or a urlencoded form.
type JobCreateRequest struct {
	Prompt string  `json:"prompt" form:"prompt"`
	Preset *string `json:"preset" form:"preset"`
	Title  *string `json:"title" form:"title"`
	// DurationSec accepts a JSON number, a numeric string or a form value.
	DurationSec json.Number `json:"durationSec" form:"durationSec"`
}

// Duration parses DurationSec. Empty means not requested.
func (r JobCreateRequest) Duration() (*int, error) {
	raw := strings.TrimSpace(r.DurationSec.String())
	if raw == "" {
		return nil, nil
	}
	// clamped before conversion; Normalize ignores the non-positive ones
	if n, err := json.Number(raw).Int64(); err == nil {
		d := int(min(max(n, 0), domain.MaxRequestedDuration))
		return &d, nil
	}
	f, err := json.Number(raw).Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, domain.NewInvalidInput("INVALID_DURATION", "durationSec must be a number")
	}
	d := int(math.Round(math.Min(math.Max(f, 0), domain.MaxRequestedDuration)))
	return &d, nil
}

// ToInput converts the request for the owner.
func (r JobCreateRequest) ToInput(ownerUserID string) (domain.NewJobInput, error) {
	d, err := r.Duration()
	if err != nil {
		return domain.NewJobInput{}, err
	}
	return domain.NewJobInput{
		OwnerUserID: ownerUserID,
		Prompt:      r.Prompt,
		Preset:      r.Preset,
		Title:       r.Title,
		DurationSec: d,
	}, nil
}

type JobCreateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

type ListJobsRequest struct {
	Take int `form:"take"`
	Skip int `form:"skip"`
}

type CompleteJobRequest struct {
	ResultURL   *string `json:"resultUrl"`
	DurationSec *int    `json:"durationSec"`
	Error       *string `json:"error"`
}

type FailJobRequest struct {
	Reason string `json:"reason"`
}

type JobStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type JobSummaryDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	DurationSec *int   `json:"durationSec,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type JobDTO struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Prompt               string  `json:"prompt"`
	Preset               *string `json:"preset"`
	RequestedDurationSec *int    `json:"requestedDurationSec"`
	Status               string  `json:"status"`
	ResultURL            *string `json:"resultUrl"`
	ErrorMessage         *string `json:"errorMessage"`
	DurationSec          *int    `json:"durationSec"`
	CreatedAt            string  `json:"createdAt"`
	UpdatedAt            string  `json:"updatedAt"`
}

func NewJobDTO(j *domain.Job) JobDTO {
	return JobDTO{
		ID:                   j.ID,
		Title:                j.Title,
		Prompt:               j.Prompt,
		Preset:               j.Preset,
		RequestedDurationSec: j.RequestedDurationSec,
		Status:               string(j.Status),
		ResultURL:            j.ResultRef,
		ErrorMessage:         j.ErrorMessage,
		DurationSec:          j.ActualDurationSec,
		CreatedAt:            j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            j.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewJobSummaryDTO(j *domain.Job) JobSummaryDTO {
	return JobSummaryDTO{
		ID:          j.ID,
		Title:       j.Title,
		Status:      string(j.Status),
		DurationSec: j.ActualDurationSec,
		CreatedAt:   j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
