package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/storage"
	"github.com/cuongbtq/voiceover-be/internal/blob"
)

// UserStore persists users and their credit balance.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	EnsureUser(ctx context.Context, userID, email string, initialCredits int64) (*domain.User, error)
	ChargeCredits(ctx context.Context, userID string, amount int64) (int64, error)
	AddCredits(ctx context.Context, userID string, amount int64) (int64, error)
	SetBillingRefs(ctx context.Context, userID string, customerRef, subscriptionRef *string) error
	ClearSubscription(ctx context.Context, userID string) error
}

// JobStore persists jobs. TransitionJob must apply the outcome only when the
// current status is one of from.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job, cost int64, cooldown time.Duration) (int64, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, ownerUserID string, take, skip int) ([]*domain.Job, error)
	TransitionJob(ctx context.Context, jobID string, from []domain.JobStatus, outcome domain.JobOutcome) (*domain.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// TrackStore persists library tracks.
type TrackStore interface {
	UpsertTrack(ctx context.Context, track *domain.Track) (*domain.Track, error)
	GetTrack(ctx context.Context, trackID string) (*domain.Track, error)
	TrackBySlug(ctx context.Context, slug string) (*domain.Track, error)
	ListTracks(ctx context.Context, q storage.TrackQuery) ([]*domain.Track, error)
	TracksByJob(ctx context.Context, jobID string) ([]*domain.Track, error)
	RenameTrack(ctx context.Context, trackID, title string) (*domain.Track, error)
	AssignStory(ctx context.Context, trackID string, a domain.StoryAssignment) (*domain.Track, error)
	SetTrackShare(ctx context.Context, trackID string, public bool, slug *string) (*domain.Track, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	AudioRefInUse(ctx context.Context, ref, exceptTrackID string) (bool, error)
	DeleteTrack(ctx context.Context, trackID string) error
}

// Store is everything the services persist.
type Store interface {
	UserStore
	JobStore
	TrackStore
}

var (
	_ Store = (*storage.Storage)(nil)
	_ Store = (*storage.MemoryStorage)(nil)
)

// BlobStore is the storage gateway as seen by the services.
type BlobStore interface {
	JobKey(jobID string) string
	TrackKey(trackID string) string
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) (*blob.Object, error)
	Delete(ctx context.Context, key string) error
}

var _ BlobStore = (*blob.Gateway)(nil)

// AudioSource is either an open blob or an external location to redirect to.
type AudioSource struct {
	RedirectURL string
	Object      *blob.Object
}

// bestEffort is the single place where failures of non-critical side effects
// (track bookkeeping, blob cleanup, event publishing) are logged and dropped.
func bestEffort(logger *slog.Logger, op string, err error, attrs ...any) {
	if err == nil {
		return
	}
	logger.Warn("Best-effort operation failed",
		append([]any{slog.String("op", op), slog.Any("error", err)}, attrs...)...,
	)
}

// isExternalURL reports whether a result reference points outside blob storage.
func isExternalURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// openAudio resolves a stored reference into something the transport can serve.
func openAudio(ctx context.Context, blobs BlobStore, ref string) (*AudioSource, error) {
	if isExternalURL(ref) {
		return &AudioSource{RedirectURL: ref}, nil
	}
	obj, err := blobs.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidKey) {
			return nil, domain.NewNotFound("audio")
		}
		return nil, domain.NewUpstreamFailure("STORAGE_READ_FAILED", "failed to read audio", err)
	}
	return &AudioSource{Object: obj}, nil
}
