package dto

import (
	"strings"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

type ListTracksRequest struct {
	Cursor  string `form:"cursor"`
	Query   string `form:"q"`
	StoryID string `form:"storyId"`
	Take    int    `form:"take"`
}

type ListTracksResponse struct {
	Tracks     []TrackDTO `json:"tracks"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type PromoteTrackRequest struct {
	JobID     string  `json:"jobId" binding:"required"`
	Title     *string `json:"title"`
	StoryID   *string `json:"storyId"`
	PartIndex *int    `json:"partIndex"`
	PartTitle *string `json:"partTitle"`
}

type RenameTrackRequest struct {
	Title string `json:"title" binding:"required"`
}

type AssignStoryRequest struct {
	StoryID   *string `json:"storyId"`
	PartIndex *int    `json:"partIndex"`
	PartTitle *string `json:"partTitle"`
}

type ShareTrackRequest struct {
	IsPublic *bool `json:"isPublic" binding:"required"`
}

type TrackDTO struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	SourceJobID     *string `json:"jobId"`
	DurationSeconds *int    `json:"durationSeconds"`
	IsPublic        bool    `json:"isPublic"`
	ShareSlug       *string `json:"shareSlug"`
	ShareURL        string  `json:"shareUrl,omitempty"`
	StoryID         *string `json:"storyId"`
	PartIndex       *int    `json:"partIndex"`
	PartTitle       *string `json:"partTitle"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

// NewTrackDTO renders a track. publicBaseURL, when set, is used to build the
// share link of a published track.
func NewTrackDTO(t *domain.Track, publicBaseURL string) TrackDTO {
	out := TrackDTO{
		ID:              t.ID,
		Title:           t.Title,
		SourceJobID:     t.SourceJobID,
		DurationSeconds: t.DurationSeconds,
		IsPublic:        t.IsPublic,
		ShareSlug:       t.ShareSlug,
		StoryID:         t.StoryID,
		PartIndex:       t.PartIndex,
		PartTitle:       t.PartTitle,
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.IsPublic && t.ShareSlug != nil && publicBaseURL != "" {
		out.ShareURL = strings.TrimRight(publicBaseURL, "/") + "/public/" + *t.ShareSlug
	}
	return out
}
