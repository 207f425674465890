package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/storage"
	"github.com/cuongbtq/voiceover-be/internal/blob"
	"github.com/cuongbtq/voiceover-be/internal/synth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// mp3Frames builds n silent MPEG-1 Layer III frames at 128 kbps / 44.1 kHz,
// about 26.12ms each.
func mp3Frames(n int) []byte {
	const frameSize = 417
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		frame := make([]byte, frameSize)
		copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
		buf.Write(frame)
	}
	return buf.Bytes()
}

type fakeSynth struct {
	mu       sync.Mutex
	calls    atomic.Int32
	audio    []byte
	estimate int
	err      error
	entered  chan struct{}
	release  chan struct{}
	last     synth.Request
}

func (f *fakeSynth) Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &synth.Result{Audio: f.audio, ContentType: "audio/mpeg", EstimatedSeconds: f.estimate}, nil
}

type failingScripts struct{}

func (failingScripts) Write(context.Context, string, string) (string, error) {
	return "", errors.New("chat model unavailable")
}

// flakyBlobs fails writes on demand and otherwise delegates to a local gateway.
type flakyBlobs struct {
	*blob.Gateway
	putErr error
}

func (f *flakyBlobs) Put(ctx context.Context, key string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Gateway.Put(ctx, key, data)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return p.err
}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type fixture struct {
	store  *storage.MemoryStorage
	blobs  *flakyBlobs
	synth  *fakeSynth
	pub    *recordingPublisher
	jobs   *JobService
	tracks *TrackService
	share  *ShareResolver
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()

	f := &fixture{
		store: storage.NewMemoryStorage(logger),
		blobs: &flakyBlobs{Gateway: blob.New(nil, blob.NewLocalStore(t.TempDir()), "", logger)},
		synth: &fakeSynth{audio: mp3Frames(40), estimate: 3},
		pub:   &recordingPublisher{},
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.tracks = NewTrackService(f.store, f.blobs, logger)
	f.share = NewShareResolver(f.store, f.blobs)
	f.jobs = NewJobService(JobDeps{
		Store:  f.store,
		Blobs:  f.blobs,
		Synth:  f.synth,
		Tracks: f.tracks,
		Events: NewEvents(f.pub, logger),
	}, JobConfig{CreationCooldown: DefaultCreationCooldown}, logger)
	f.jobs.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) addUser(id string, credits int64, admin bool) domain.Caller {
	f.store.PutUser(domain.User{ID: id, Email: id + "@example.com", Credits: credits, IsAdmin: admin})
	return domain.UserCaller(id)
}

// createJob creates a job and moves the clock past the creation cooldown.
func (f *fixture) createJob(t *testing.T, owner, prompt string) *domain.Job {
	t.Helper()
	job, err := f.jobs.Create(context.Background(), domain.NewJobInput{OwnerUserID: owner, Prompt: prompt})
	require.NoError(t, err)
	f.clock = f.clock.Add(DefaultCreationCooldown + time.Second)
	return job
}

func (f *fixture) credits(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Credits
}
