package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
)

const (
	// MinPromptLength is the minimum trimmed prompt length in runes
	MinPromptLength = 3
	// MaxJobTitleLength bounds job titles in runes
	MaxJobTitleLength = 80
	// MinRequestedDuration and MaxRequestedDuration bound the advisory duration
	MinRequestedDuration = 30
	MaxRequestedDuration = 1800
)

// ParseJobStatus converts a persisted status string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return JobStatus(s), nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// Terminal reports whether no regular transition leaves this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing:
		return false
	case JobStatusDone, JobStatusFailed:
		return true
	}
	panic(fmt.Sprintf("unhandled job status %q", string(s)))
}

// CanTransition reports whether the regular lifecycle allows from -> to.
// Force-fail bypasses this table.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusProcessing || to == JobStatusDone || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusDone || to == JobStatusFailed
	case JobStatusDone, JobStatusFailed:
		return false
	}
	panic(fmt.Sprintf("unhandled job status %q", string(from)))
}

// SourcesFor returns every status from which a regular transition to `to` is legal.
func SourcesFor(to JobStatus) []JobStatus {
	all := []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed}
	var out []JobStatus
	for _, from := range all {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Job is a single generation request and its execution state.
type Job struct {
	ID                   string
	OwnerUserID          string
	Title                string
	Prompt               string
	Preset               *string
	RequestedDurationSec *int
	Status               JobStatus
	ResultRef            *string
	ErrorMessage         *string
	ActualDurationSec    *int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// JobOutcome describes the terminal write applied by a transition.
type JobOutcome struct {
	Status            JobStatus
	ResultRef         *string
	ErrorMessage      *string
	ActualDurationSec *int
}

// Done builds the outcome of a successful completion. The error message is cleared.
func Done(resultRef string, durationSec *int) JobOutcome {
	return JobOutcome{Status: JobStatusDone, ResultRef: &resultRef, ActualDurationSec: durationSec}
}

// Failed builds the outcome of a failed completion. The result ref is cleared.
func Failed(message string) JobOutcome {
	if strings.TrimSpace(message) == "" {
		message = "generation failed"
	}
	return JobOutcome{Status: JobStatusFailed, ErrorMessage: &message}
}

// Processing builds the outcome of a start transition.
func Processing() JobOutcome {
	return JobOutcome{Status: JobStatusProcessing}
}

// Apply writes the outcome onto the job, keeping resultRef set iff DONE.
func (o JobOutcome) Apply(j *Job, now time.Time) {
	j.Status = o.Status
	switch o.Status {
	case JobStatusDone:
		j.ResultRef = o.ResultRef
		j.ErrorMessage = nil
		j.ActualDurationSec = o.ActualDurationSec
	case JobStatusFailed:
		j.ResultRef = nil
		j.ErrorMessage = o.ErrorMessage
	case JobStatusQueued, JobStatusProcessing:
	}
	j.UpdatedAt = now
}

// NewJobInput is the validated input of job creation.
type NewJobInput struct {
	OwnerUserID string
	Prompt      string
	Preset      *string
	Title       *string
	DurationSec *int
}

// Normalize trims and validates the input, resolving the effective title.
func (in NewJobInput) Normalize() (prompt, title string, preset *string, duration *int, err error) {
	prompt = strings.TrimSpace(in.Prompt)
	if utf8.RuneCountInString(prompt) < MinPromptLength {
		return "", "", nil, nil, NewInvalidInput("INVALID_PROMPT",
			fmt.Sprintf("prompt must be at least %d characters", MinPromptLength))
	}

	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		title = truncateRunes(collapseSpaces(stripControl(*in.Title)), MaxJobTitleLength)
	}
	if title == "" {
		title = DeriveTitle(prompt)
	}

	if in.Preset != nil {
		p := strings.ToLower(strings.TrimSpace(*in.Preset))
		if p != "" {
			preset = &p
		}
	}

	// advisory only: out-of-range values are clamped, non-positive ones ignored
	if in.DurationSec != nil && *in.DurationSec > 0 {
		d := min(max(*in.DurationSec, MinRequestedDuration), MaxRequestedDuration)
		duration = &d
	}

	return prompt, title, preset, duration, nil
}
