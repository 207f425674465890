package storage

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

// MemoryStorage keeps users, jobs and tracks in process memory. It has the
// same guarded-update semantics as Storage and backs development runs and
// service tests.
type MemoryStorage struct {
	mu     sync.Mutex
	users  map[string]domain.User
	jobs   map[string]domain.Job
	tracks map[string]domain.Track
	logger *slog.Logger
	now    func() time.Time
}

func NewMemoryStorage(logger *slog.Logger) *MemoryStorage {
	return &MemoryStorage{
		users:  map[string]domain.User{},
		jobs:   map[string]domain.Job{},
		tracks: map[string]domain.Track{},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PutUser inserts or replaces a user row.
func (m *MemoryStorage) PutUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStorage) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (m *MemoryStorage) EnsureUser(_ context.Context, userID, email string, initialCredits int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		now := m.now()
		u = domain.User{ID: userID, Email: email, Credits: initialCredits, CreatedAt: now, UpdatedAt: now}
		m.users[userID] = u
	}
	return &u, nil
}

func (m *MemoryStorage) ChargeCredits(_ context.Context, userID string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chargeLocked(userID, amount)
}

func (m *MemoryStorage) chargeLocked(userID string, amount int64) (int64, error) {
	u, ok := m.users[userID]
	if !ok {
		return 0, notFound("user")
	}
	if u.IsAdmin {
		return u.Credits, nil
	}
	if u.Credits < amount {
		return u.Credits, domain.NewInsufficientCredits(u.Credits)
	}
	u.Credits -= amount
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return u.Credits, nil
}

func (m *MemoryStorage) AddCredits(_ context.Context, userID string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, notFound("user")
	}
	u.Credits += amount
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return u.Credits, nil
}

func (m *MemoryStorage) SetBillingRefs(_ context.Context, userID string, customerRef, subscriptionRef *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return notFound("user")
	}
	if customerRef != nil {
		u.ExternalCustomerRef = customerRef
	}
	if subscriptionRef != nil {
		u.ExternalSubscriptionRef = subscriptionRef
	}
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return nil
}

func (m *MemoryStorage) ClearSubscription(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return notFound("user")
	}
	u.ExternalSubscriptionRef = nil
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return nil
}

func (m *MemoryStorage) CreateJob(_ context.Context, job *domain.Job, cost int64, cooldown time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[job.OwnerUserID]
	if !ok {
		return 0, notFound("user")
	}
	if !u.IsAdmin && u.Credits < cost {
		return u.Credits, domain.NewInsufficientCredits(u.Credits)
	}

	if cooldown > 0 {
		var last time.Time
		for _, j := range m.jobs {
			if j.OwnerUserID == job.OwnerUserID && j.CreatedAt.After(last) {
				last = j.CreatedAt
			}
		}
		if !last.IsZero() {
			if wait := last.Add(cooldown).Sub(job.CreatedAt); wait > 0 {
				return 0, domain.NewRateLimited("a job was created moments ago, please wait", wait)
			}
		}
	}

	balance, err := m.chargeLocked(job.OwnerUserID, cost)
	if err != nil {
		return balance, err
	}
	m.jobs[job.ID] = *job
	return balance, nil
}

func (m *MemoryStorage) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, notFound("job")
	}
	return &j, nil
}

func (m *MemoryStorage) ListJobs(_ context.Context, ownerUserID string, take, skip int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Job
	for _, j := range m.jobs {
		if j.OwnerUserID == ownerUserID {
			out = append(out, &j)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return page(out, take, skip), nil
}

func (m *MemoryStorage) TransitionJob(_ context.Context, jobID string, from []domain.JobStatus, outcome domain.JobOutcome) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, notFound("job")
	}
	if len(from) > 0 && !slices.Contains(from, j.Status) {
		m.logger.Warn("Job transition lost race",
			slog.String("job_id", jobID),
			slog.String("to", string(outcome.Status)),
		)
		return nil, ErrStatusConflict
	}
	outcome.Apply(&j, m.now())
	m.jobs[jobID] = j
	return &j, nil
}

func (m *MemoryStorage) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return notFound("job")
	}
	delete(m.jobs, jobID)
	return nil
}

func (m *MemoryStorage) UpsertTrack(_ context.Context, track *domain.Track) (*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tracks {
		if t.OwnerUserID != track.OwnerUserID || t.AudioRef != track.AudioRef {
			continue
		}
		if track.DurationSeconds != nil && !sameInt(t.DurationSeconds, track.DurationSeconds) {
			d := *track.DurationSeconds
			t.DurationSeconds = &d
			t.UpdatedAt = m.now()
		}
		if t.SourceJobID == nil {
			t.SourceJobID = track.SourceJobID
		}
		m.tracks[id] = t
		return &t, nil
	}

	t := *track
	t.IsPublic = false
	t.ShareSlug = nil
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt
	m.tracks[t.ID] = t
	return &t, nil
}

func (m *MemoryStorage) GetTrack(_ context.Context, trackID string) (*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[trackID]
	if !ok {
		return nil, notFound("track")
	}
	return &t, nil
}

func (m *MemoryStorage) TrackBySlug(_ context.Context, slug string) (*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		if t.IsPublic && t.ShareSlug != nil && *t.ShareSlug == slug {
			return &t, nil
		}
	}
	return nil, notFound("track")
}

func (m *MemoryStorage) ListTracks(_ context.Context, q TrackQuery) ([]*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var out []*domain.Track
	for _, t := range m.tracks {
		if t.OwnerUserID != q.OwnerUserID {
			continue
		}
		if search != "" && !m.matchesLocked(t, search) {
			continue
		}
		if q.StoryID != nil {
			if t.StoryID == nil || *t.StoryID != *q.StoryID {
				continue
			}
		} else if q.Cursor != nil && !before(t, *q.Cursor) {
			continue
		}
		out = append(out, &t)
	}

	if q.StoryID != nil {
		slices.SortFunc(out, compareParts)
		return out, nil
	}

	slices.SortFunc(out, func(a, b *domain.Track) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if len(out) > q.PageSize+1 {
		out = out[:q.PageSize+1]
	}
	return out, nil
}

func (m *MemoryStorage) matchesLocked(t domain.Track, search string) bool {
	if strings.Contains(strings.ToLower(t.Title), search) {
		return true
	}
	if t.SourceJobID == nil {
		return false
	}
	j, ok := m.jobs[*t.SourceJobID]
	return ok && strings.Contains(strings.ToLower(j.Prompt), search)
}

func (m *MemoryStorage) TracksByJob(_ context.Context, jobID string) ([]*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Track
	for _, t := range m.tracks {
		if t.SourceJobID != nil && *t.SourceJobID == jobID {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (m *MemoryStorage) RenameTrack(_ context.Context, trackID, title string) (*domain.Track, error) {
	return m.updateTrack(trackID, func(t *domain.Track) { t.Title = title })
}

func (m *MemoryStorage) AssignStory(_ context.Context, trackID string, a domain.StoryAssignment) (*domain.Track, error) {
	return m.updateTrack(trackID, func(t *domain.Track) {
		t.StoryID = a.StoryID
		t.PartIndex = a.PartIndex
		t.PartTitle = a.PartTitle
	})
}

func (m *MemoryStorage) SetTrackShare(_ context.Context, trackID string, public bool, slug *string) (*domain.Track, error) {
	return m.updateTrack(trackID, func(t *domain.Track) {
		t.IsPublic = public
		t.ShareSlug = slug
	})
}

func (m *MemoryStorage) updateTrack(trackID string, fn func(*domain.Track)) (*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[trackID]
	if !ok {
		return nil, notFound("track")
	}
	fn(&t)
	t.UpdatedAt = m.now()
	m.tracks[trackID] = t
	return &t, nil
}

func (m *MemoryStorage) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		if t.ShareSlug != nil && *t.ShareSlug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) AudioRefInUse(_ context.Context, ref, exceptTrackID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ResultRef != nil && *j.ResultRef == ref {
			return true, nil
		}
	}
	for id, t := range m.tracks {
		if id != exceptTrackID && t.AudioRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) DeleteTrack(_ context.Context, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracks[trackID]; !ok {
		return notFound("track")
	}
	delete(m.tracks, trackID)
	return nil
}

func before(t domain.Track, c TrackCursor) bool {
	if t.CreatedAt.Equal(c.CreatedAt) {
		return t.ID < c.TrackID
	}
	return t.CreatedAt.Before(c.CreatedAt)
}

func compareParts(a, b *domain.Track) int {
	switch {
	case a.PartIndex == nil && b.PartIndex != nil:
		return 1
	case a.PartIndex != nil && b.PartIndex == nil:
		return -1
	case a.PartIndex != nil && b.PartIndex != nil && *a.PartIndex != *b.PartIndex:
		return *a.PartIndex - *b.PartIndex
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func page[T any](items []T, take, skip int) []T {
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if take < len(items) {
		items = items[:take]
	}
	return items
}
