package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/storage"
)

const (
	DefaultTrackPageSize = 20
	MaxTrackPageSize     = 100

	slugLength   = 10
	slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	slugAttempts = 5
)

var errJobNotDone = &domain.Error{
	Kind:    domain.KindInvalidState,
	Code:    "JOB_NOT_DONE",
	Message: "job has no audio yet",
}

// PromoteInput turns a completed job into a library track.
type PromoteInput struct {
	JobID     string
	Title     *string
	StoryID   *string
	PartIndex *int
	PartTitle *string
}

// ListTracksInput filters a library page.
type ListTracksInput struct {
	Cursor  *storage.TrackCursor
	Query   string
	StoryID *string
	Take    int
}

// TrackPage is one page of tracks. NextCursor is nil on the last page.
type TrackPage struct {
	Tracks     []*domain.Track
	NextCursor *storage.TrackCursor
}

// TrackService reconciles tracks from completed jobs and implements the
// owner-facing library operations.
type TrackService struct {
	store  Store
	blobs  BlobStore
	logger *slog.Logger
	newID  func() string
	slug   func() (string, error)
}

func NewTrackService(store Store, blobs BlobStore, logger *slog.Logger) *TrackService {
	return &TrackService{
		store:  store,
		blobs:  blobs,
		logger: logger,
		newID:  uuid.NewString,
		slug:   randomSlug,
	}
}

// Reconcile upserts the one track of (ownerUserID, audioRef). An existing
// track only picks up a newly known duration.
func (s *TrackService) Reconcile(ctx context.Context, ownerUserID, jobID, audioRef string, title *string, durationSec *int) (*domain.Track, error) {
	var job *domain.Job
	if jobID != "" {
		j, err := s.store.GetJob(ctx, jobID)
		switch {
		case err == nil:
			job = j
		case domain.KindOf(err) != domain.KindNotFound:
			return nil, err
		}
	}

	track := &domain.Track{
		ID:              s.newID(),
		OwnerUserID:     ownerUserID,
		Title:           domain.ResolveTrackTitle(title, job),
		AudioRef:        audioRef,
		DurationSeconds: durationSec,
	}
	if jobID != "" {
		track.SourceJobID = &jobID
	}

	out, err := s.store.UpsertTrack(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("reconcile track for job %s: %w", jobID, err)
	}
	return out, nil
}

// Promote explicitly creates (or returns) the track of a completed job.
func (s *TrackService) Promote(ctx context.Context, caller domain.Caller, in PromoteInput) (*domain.Track, error) {
	if strings.TrimSpace(in.JobID) == "" {
		return nil, domain.NewInvalidInput("INVALID_JOB_ID", "jobId is required")
	}

	var title *string
	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		t, err := domain.SanitizeTrackTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		title = &t
	}
	story, err := normalizeStory(domain.StoryAssignment{StoryID: in.StoryID, PartIndex: in.PartIndex, PartTitle: in.PartTitle})
	if err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, in.JobID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(job.OwnerUserID) {
		return nil, domain.NewNotFound("job")
	}
	if job.Status != domain.JobStatusDone || job.ResultRef == nil {
		return nil, errJobNotDone
	}

	track, err := s.Reconcile(ctx, job.OwnerUserID, job.ID, *job.ResultRef, title, job.ActualDurationSec)
	if err != nil {
		return nil, err
	}

	if story.StoryID != nil || story.PartIndex != nil || story.PartTitle != nil {
		return s.store.AssignStory(ctx, track.ID, story)
	}
	return track, nil
}

// List returns a page of the owner's library, newest first, or every part of
// one story in part order.
func (s *TrackService) List(ctx context.Context, ownerUserID string, in ListTracksInput) (*TrackPage, error) {
	take := in.Take
	if take <= 0 {
		take = DefaultTrackPageSize
	}
	take = min(take, MaxTrackPageSize)

	var storyID *string
	if in.StoryID != nil && strings.TrimSpace(*in.StoryID) != "" {
		id := strings.TrimSpace(*in.StoryID)
		storyID = &id
	}

	tracks, err := s.store.ListTracks(ctx, storage.TrackQuery{
		OwnerUserID: ownerUserID,
		Search:      in.Query,
		StoryID:     storyID,
		Cursor:      in.Cursor,
		PageSize:    take,
	})
	if err != nil {
		return nil, err
	}

	page := &TrackPage{Tracks: tracks}
	if storyID == nil && len(tracks) > take {
		page.Tracks = tracks[:take]
		last := page.Tracks[take-1]
		page.NextCursor = &storage.TrackCursor{CreatedAt: last.CreatedAt, TrackID: last.ID}
	}
	return page, nil
}

// Rename sets a sanitized title on an owned track.
func (s *TrackService) Rename(ctx context.Context, caller domain.Caller, trackID, title string) (*domain.Track, error) {
	clean, err := domain.SanitizeTrackTitle(title)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, caller, trackID); err != nil {
		return nil, err
	}
	return s.store.RenameTrack(ctx, trackID, clean)
}

// AssignStory moves an owned track into (or out of) a story.
func (s *TrackService) AssignStory(ctx context.Context, caller domain.Caller, trackID string, a domain.StoryAssignment) (*domain.Track, error) {
	story, err := normalizeStory(a)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, caller, trackID); err != nil {
		return nil, err
	}
	return s.store.AssignStory(ctx, trackID, story)
}

// Delete removes an owned track and cleans up audio nothing else uses.
func (s *TrackService) Delete(ctx context.Context, caller domain.Caller, trackID string) error {
	track, err := s.owned(ctx, caller, trackID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTrack(ctx, trackID); err != nil {
		return err
	}
	s.cleanupTrackAudio(ctx, track)
	return nil
}

// cleanupTrackAudio removes the track's own copy and, when no job or other
// track still points at it, the audio the track referenced.
func (s *TrackService) cleanupTrackAudio(ctx context.Context, track *domain.Track) {
	attrs := []any{slog.String("track_id", track.ID)}
	bestEffort(s.logger, "delete track blob", s.blobs.Delete(ctx, s.blobs.TrackKey(track.ID)), attrs...)

	if track.AudioRef == "" || isExternalURL(track.AudioRef) || track.AudioRef == s.blobs.TrackKey(track.ID) {
		return
	}
	inUse, err := s.store.AudioRefInUse(ctx, track.AudioRef, track.ID)
	if err != nil {
		bestEffort(s.logger, "check audio references", err, attrs...)
		return
	}
	if !inUse {
		bestEffort(s.logger, "delete track audio", s.blobs.Delete(ctx, track.AudioRef), attrs...)
	}
}

// SetPublic publishes or unpublishes an owned track. Publishing issues a
// fresh slug; unpublishing clears it so the old slug never resolves again.
func (s *TrackService) SetPublic(ctx context.Context, caller domain.Caller, trackID string, want bool) (*domain.Track, error) {
	track, err := s.owned(ctx, caller, trackID)
	if err != nil {
		return nil, err
	}

	if !want {
		if !track.IsPublic && track.ShareSlug == nil {
			return track, nil
		}
		return s.store.SetTrackShare(ctx, trackID, false, nil)
	}

	if track.IsPublic && track.ShareSlug != nil {
		return track, nil
	}
	slug, err := s.uniqueSlug(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.store.SetTrackShare(ctx, trackID, true, &slug)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Track published", slog.String("track_id", trackID), slog.String("slug", slug))
	return out, nil
}

func (s *TrackService) uniqueSlug(ctx context.Context) (string, error) {
	for range slugAttempts {
		slug, err := s.slug()
		if err != nil {
			return "", fmt.Errorf("failed to generate slug: %w", err)
		}
		taken, err := s.store.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
	}
	return "", domain.NewUpstreamFailure("SLUG_EXHAUSTED", "could not allocate a share link, try again", nil)
}

func (s *TrackService) owned(ctx context.Context, caller domain.Caller, trackID string) (*domain.Track, error) {
	track, err := s.store.GetTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(track.OwnerUserID) {
		return nil, domain.ErrForbidden
	}
	return track, nil
}

func normalizeStory(a domain.StoryAssignment) (domain.StoryAssignment, error) {
	out := domain.StoryAssignment{PartIndex: a.PartIndex}
	if a.StoryID != nil {
		if id := strings.TrimSpace(*a.StoryID); id != "" {
			out.StoryID = &id
		}
	}
	if a.PartTitle != nil {
		if t := strings.TrimSpace(*a.PartTitle); t != "" {
			clean, err := domain.SanitizeTrackTitle(t)
			if err != nil {
				return out, err
			}
			out.PartTitle = &clean
		}
	}
	if out.PartIndex != nil && *out.PartIndex < 0 {
		return out, domain.NewInvalidInput("INVALID_PART_INDEX", "partIndex must not be negative")
	}
	return out, nil
}

func randomSlug() (string, error) {
	var b strings.Builder
	b.Grow(slugLength)
	size := big.NewInt(int64(len(slugAlphabet)))
	for range slugLength {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(slugAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ShareResolver serves published tracks by slug without a session.
type ShareResolver struct {
	tracks TrackStore
	blobs  BlobStore
}

func NewShareResolver(tracks TrackStore, blobs BlobStore) *ShareResolver {
	return &ShareResolver{tracks: tracks, blobs: blobs}
}

// ResolveBySlug finds the published track behind slug. Unpublished tracks
// are not found even when their row still carries the slug.
func (r *ShareResolver) ResolveBySlug(ctx context.Context, slug string) (*domain.Track, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, domain.NewNotFound("track")
	}
	return r.tracks.TrackBySlug(ctx, slug)
}

// OpenBySlug resolves slug and opens its audio.
func (r *ShareResolver) OpenBySlug(ctx context.Context, slug string) (*domain.Track, *AudioSource, error) {
	track, err := r.ResolveBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	src, err := openAudio(ctx, r.blobs, track.AudioRef)
	if err != nil {
		return nil, nil, err
	}
	return track, src, nil
}
