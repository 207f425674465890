package domain

import "time"

const (
	// MaxReconciledTitleLength bounds titles resolved by the track reconciler
	MaxReconciledTitleLength = 80

	fallbackTrackTitle = "Untitled track"
)

// Track is a library entry derived from one completed job's audio.
type Track struct {
	ID              string
	OwnerUserID     string
	SourceJobID     *string
	Title           string
	AudioRef        string
	DurationSeconds *int
	IsPublic        bool
	ShareSlug       *string
	StoryID         *string
	PartIndex       *int
	PartTitle       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StoryAssignment groups a track into a multi-part narration.
type StoryAssignment struct {
	StoryID   *string
	PartIndex *int
	PartTitle *string
}

// ResolveTrackTitle picks explicit > job title > derived from prompt > fallback,
// bounded to MaxReconciledTitleLength runes.
func ResolveTrackTitle(explicit *string, job *Job) string {
	candidates := make([]string, 0, 3)
	if explicit != nil {
		candidates = append(candidates, *explicit)
	}
	if job != nil {
		candidates = append(candidates, job.Title)
		if p := collapseSpaces(job.Prompt); p != "" {
			candidates = append(candidates, DeriveTitle(p))
		}
	}
	for _, c := range candidates {
		if s := truncateRunes(collapseSpaces(stripControl(c)), MaxReconciledTitleLength); s != "" {
			return s
		}
	}
	return fallbackTrackTitle
}
