package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/storage"
	"github.com/cuongbtq/voiceover-be/internal/metrics"
	"github.com/cuongbtq/voiceover-be/internal/synth"
)

const (
	DefaultCreationCost     = 1
	DefaultCreationCooldown = 5 * time.Second
	DefaultJobPageSize      = 20
	MaxJobPageSize          = 50
	DefaultExecutionTimeout = 2 * time.Minute
)

// JobConfig tunes the job lifecycle.
type JobConfig struct {
	CreationCost     int64
	CreationCooldown time.Duration
	DefaultTake      int
	MaxTake          int
	// ExecutionTimeout bounds one completion run, script writing and
	// synthesis included.
	ExecutionTimeout time.Duration
}

func (c JobConfig) withDefaults() JobConfig {
	if c.CreationCost <= 0 {
		c.CreationCost = DefaultCreationCost
	}
	if c.CreationCooldown < 0 {
		c.CreationCooldown = 0
	}
	if c.MaxTake <= 0 {
		c.MaxTake = MaxJobPageSize
	}
	if c.DefaultTake <= 0 || c.DefaultTake > c.MaxTake {
		c.DefaultTake = min(DefaultJobPageSize, c.MaxTake)
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}
	return c
}

// JobDeps are the collaborators of the job state machine. Events and Metrics
// may be nil.
type JobDeps struct {
	Store   Store
	Blobs   BlobStore
	Synth   synth.Synthesizer
	Scripts synth.ScriptWriter
	Tracks  *TrackService
	Events  *Events
	Metrics *metrics.Metrics
}

// CompleteInput is the body of a completion request. A non-empty Error fails
// the job without synthesis; a ResultRef skips synthesis.
type CompleteInput struct {
	ResultRef   *string
	DurationSec *int
	Error       *string
}

// JobService drives jobs through QUEUED -> PROCESSING -> DONE | FAILED.
type JobService struct {
	store   Store
	blobs   BlobStore
	synth   synth.Synthesizer
	scripts synth.ScriptWriter
	tracks  *TrackService
	events  *Events
	metrics *metrics.Metrics
	cfg     JobConfig
	logger  *slog.Logger

	now      func() time.Time
	newID    func() string
	inflight singleflight.Group
}

func NewJobService(deps JobDeps, cfg JobConfig, logger *slog.Logger) *JobService {
	scripts := deps.Scripts
	if scripts == nil {
		scripts = synth.PlainScriptWriter{}
	}
	return &JobService{
		store:   deps.Store,
		blobs:   deps.Blobs,
		synth:   deps.Synth,
		scripts: scripts,
		tracks:  deps.Tracks,
		events:  deps.Events,
		metrics: deps.Metrics,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Create validates the request, charges the owner and stores a QUEUED job.
// Nothing is persisted or charged when any check fails.
func (s *JobService) Create(ctx context.Context, in domain.NewJobInput) (*domain.Job, error) {
	prompt, title, preset, duration, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := &domain.Job{
		ID:                   s.newID(),
		OwnerUserID:          in.OwnerUserID,
		Title:                title,
		Prompt:               prompt,
		Preset:               preset,
		RequestedDurationSec: duration,
		Status:               domain.JobStatusQueued,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if _, err := s.store.CreateJob(ctx, job, s.cfg.CreationCost, s.cfg.CreationCooldown); err != nil {
		return nil, err
	}

	s.metrics.JobCreated()
	s.events.JobChanged(ctx, EventJobCreated, job)
	return job, nil
}

// Get returns a job the caller owns.
func (s *JobService) Get(ctx context.Context, caller domain.Caller, jobID string) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(job.OwnerUserID) {
		return nil, domain.ErrForbidden
	}
	return job, nil
}

// List returns the owner's jobs newest first.
func (s *JobService) List(ctx context.Context, ownerUserID string, take, skip int) ([]*domain.Job, error) {
	if take <= 0 {
		take = s.cfg.DefaultTake
	}
	take = min(take, s.cfg.MaxTake)
	skip = max(skip, 0)
	return s.store.ListJobs(ctx, ownerUserID, take, skip)
}

// Start moves a QUEUED job to PROCESSING. Repeating it while PROCESSING
// returns the job unchanged.
func (s *JobService) Start(ctx context.Context, caller domain.Caller, jobID string) (*domain.Job, error) {
	job, err := s.executable(ctx, caller, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.JobStatusProcessing:
		return job, nil
	case domain.JobStatusDone, domain.JobStatusFailed:
		return nil, domain.NewInvalidState(job.Status, domain.JobStatusProcessing)
	case domain.JobStatusQueued:
	}

	started, err := s.store.TransitionJob(ctx, jobID, domain.SourcesFor(domain.JobStatusProcessing), domain.Processing())
	if errors.Is(err, storage.ErrStatusConflict) {
		current, getErr := s.store.GetJob(ctx, jobID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == domain.JobStatusProcessing {
			return current, nil
		}
		return nil, domain.NewInvalidState(current.Status, domain.JobStatusProcessing)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.JobTransitioned(string(started.Status))
	return started, nil
}

// Complete finishes a job. Concurrent completions of the same job in this
// process share one execution, so synthesis runs at most once per job.
func (s *JobService) Complete(ctx context.Context, caller domain.Caller, jobID string, in CompleteInput) (*domain.Job, error) {
	job, err := s.executable(ctx, caller, jobID)
	if err != nil {
		return nil, err
	}

	if in.Error != nil && strings.TrimSpace(*in.Error) != "" {
		if job.Status.Terminal() {
			return nil, domain.NewInvalidState(job.Status, domain.JobStatusFailed)
		}
		return s.failWith(ctx, job, strings.TrimSpace(*in.Error))
	}

	if err := s.checkResultRef(job.ID, in.ResultRef); err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.JobStatusDone:
		// a retried completion only repairs the library entry
		s.reconcile(ctx, job)
		return job, nil
	case domain.JobStatusFailed:
		return nil, domain.NewInvalidState(job.Status, domain.JobStatusDone)
	case domain.JobStatusQueued, domain.JobStatusProcessing:
	}

	v, err, shared := s.inflight.Do(jobID, func() (any, error) {
		return s.execute(ctx, jobID, in)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Completion shared with a concurrent request", slog.String("job_id", jobID))
	}
	out := *v.(*domain.Job)
	return &out, nil
}

// checkResultRef accepts a client-supplied result only when it is an absolute
// http(s) URL or the job's own storage key.
func (s *JobService) checkResultRef(jobID string, ref *string) error {
	if ref == nil {
		return nil
	}
	v := strings.TrimSpace(*ref)
	if v == "" || isExternalURL(v) || v == s.blobs.JobKey(jobID) {
		return nil
	}
	return domain.NewInvalidInput("INVALID_RESULT_URL", "resultUrl must be an http(s) URL or this job's audio key")
}

// execute runs synthesis and storage for one job and writes the terminal
// state. It is detached from the request so a disconnecting client never
// leaves the job in PROCESSING.
func (s *JobService) execute(ctx context.Context, jobID string, in CompleteInput) (*domain.Job, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ExecutionTimeout)
	defer cancel()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case domain.JobStatusDone:
		return job, nil
	case domain.JobStatusFailed:
		return nil, domain.NewInvalidState(job.Status, domain.JobStatusDone)
	case domain.JobStatusQueued, domain.JobStatusProcessing:
	}

	var (
		ref       string
		generated bool
		detected  *int
		estimated *int
	)
	if in.ResultRef != nil && strings.TrimSpace(*in.ResultRef) != "" {
		ref = strings.TrimSpace(*in.ResultRef)
	} else {
		res, err := s.synthesize(ctx, job)
		if err != nil {
			if _, failErr := s.failWith(ctx, job, err.Error()); failErr != nil {
				s.logger.Error("Failed to record synthesis failure", slog.String("job_id", jobID), slog.Any("error", failErr))
			}
			return nil, domain.NewUpstreamFailure("SYNTHESIS_FAILED", err.Error(), err)
		}

		ref = s.blobs.JobKey(job.ID)
		if err := s.blobs.Put(ctx, ref, res.Audio); err != nil {
			msg := fmt.Sprintf("failed to store audio: %v", err)
			if _, failErr := s.failWith(ctx, job, msg); failErr != nil {
				s.logger.Error("Failed to record storage failure", slog.String("job_id", jobID), slog.Any("error", failErr))
			}
			return nil, domain.NewUpstreamFailure("STORAGE_FAILED", msg, err)
		}
		generated = true
		detected = s.detectSeconds(job.ID, res.Audio)
		if res.EstimatedSeconds > 0 {
			estimated = &res.EstimatedSeconds
		}
	}

	duration := firstPositive(in.DurationSec, detected, estimated, job.RequestedDurationSec)

	done, err := s.store.TransitionJob(ctx, jobID, domain.SourcesFor(domain.JobStatusDone), domain.Done(ref, duration))
	if errors.Is(err, storage.ErrStatusConflict) {
		return s.lostCompletion(ctx, jobID, ref, generated)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.JobTransitioned(string(done.Status))
	s.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.String("result_ref", ref),
		slog.Bool("generated", generated),
	)

	s.reconcile(ctx, done)
	s.events.JobChanged(ctx, EventJobDone, done)
	return done, nil
}

// lostCompletion handles a completion that another process finished or failed
// first. The job key is shared, so the audio is only removed when the stored
// job does not point at it.
func (s *JobService) lostCompletion(ctx context.Context, jobID, ref string, generated bool) (*domain.Job, error) {
	current, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if generated && (current.ResultRef == nil || *current.ResultRef != ref) {
		bestEffort(s.logger, "delete orphaned audio", s.blobs.Delete(ctx, ref), slog.String("job_id", jobID))
	}
	if current.Status == domain.JobStatusDone {
		s.logger.Info("Job already completed elsewhere", slog.String("job_id", jobID))
		return current, nil
	}
	return nil, domain.NewInvalidState(current.Status, domain.JobStatusDone)
}

func (s *JobService) synthesize(ctx context.Context, job *domain.Job) (*synth.Result, error) {
	preset := ""
	if job.Preset != nil {
		preset = *job.Preset
	}

	text, err := s.scripts.Write(ctx, job.Prompt, preset)
	if err != nil || strings.TrimSpace(text) == "" {
		if err == nil {
			err = errors.New("script writer returned no text")
		}
		bestEffort(s.logger, "write script", err, slog.String("job_id", job.ID))
		text = job.Prompt
	}

	start := time.Now()
	res, err := s.synth.Synthesize(ctx, synth.Request{
		Text:          text,
		Preset:        preset,
		TargetSeconds: job.RequestedDurationSec,
	})
	if err != nil {
		s.metrics.ObserveSynthesis("error", time.Since(start))
		return nil, err
	}
	s.metrics.ObserveSynthesis("ok", time.Since(start))
	return res, nil
}

// detectSeconds reads the length from the MP3 frames, nil when unreadable.
func (s *JobService) detectSeconds(jobID string, audio []byte) *int {
	d, err := synth.DetectDuration(audio)
	if err != nil {
		s.logger.Debug("Could not detect audio duration", slog.String("job_id", jobID), slog.Any("error", err))
		return nil
	}
	secs := max(int(math.Round(d.Seconds())), 1)
	return &secs
}

func (s *JobService) reconcile(ctx context.Context, job *domain.Job) {
	if s.tracks == nil || job.ResultRef == nil {
		return
	}
	_, err := s.tracks.Reconcile(ctx, job.OwnerUserID, job.ID, *job.ResultRef, nil, job.ActualDurationSec)
	if err != nil {
		s.metrics.ReconcileFailed()
	}
	bestEffort(s.logger, "reconcile track", err, slog.String("job_id", job.ID))
}

// failWith moves a non-terminal job to FAILED with message.
func (s *JobService) failWith(ctx context.Context, job *domain.Job, message string) (*domain.Job, error) {
	ctx = context.WithoutCancel(ctx)
	failed, err := s.store.TransitionJob(ctx, job.ID, domain.SourcesFor(domain.JobStatusFailed), domain.Failed(message))
	if errors.Is(err, storage.ErrStatusConflict) {
		current, getErr := s.store.GetJob(ctx, job.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, domain.NewInvalidState(current.Status, domain.JobStatusFailed)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.JobTransitioned(string(failed.Status))
	s.logger.Warn("Job failed", slog.String("job_id", job.ID), slog.String("reason", message))
	s.events.JobChanged(ctx, EventJobFailed, failed)
	return failed, nil
}

// ForceFail moves the job to FAILED from any status. Owners and the system
// caller may do this to recover stuck jobs.
func (s *JobService) ForceFail(ctx context.Context, caller domain.Caller, jobID, reason string) (*domain.Job, error) {
	job, err := s.Get(ctx, caller, jobID)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "failed by request"
	}

	failed, err := s.store.TransitionJob(ctx, job.ID, nil, domain.Failed(reason))
	if err != nil {
		return nil, err
	}

	s.metrics.JobTransitioned(string(failed.Status))
	s.logger.Warn("Job force-failed",
		slog.String("job_id", jobID),
		slog.String("previous_status", string(job.Status)),
		slog.Bool("system", caller.System),
	)
	s.events.JobChanged(ctx, EventJobFailed, failed)
	return failed, nil
}

// Delete removes the job, its tracks and their stored audio. Blob cleanup is
// attempted first and never blocks the row deletes.
func (s *JobService) Delete(ctx context.Context, caller domain.Caller, jobID string) error {
	job, err := s.Get(ctx, caller, jobID)
	if err != nil {
		return err
	}

	tracks, err := s.store.TracksByJob(ctx, jobID)
	if err != nil {
		return err
	}
	for _, t := range tracks {
		bestEffort(s.logger, "delete track blob", s.blobs.Delete(ctx, s.blobs.TrackKey(t.ID)),
			slog.String("job_id", jobID), slog.String("track_id", t.ID))
		if err := s.store.DeleteTrack(ctx, t.ID); err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}
	}

	bestEffort(s.logger, "delete job blob", s.blobs.Delete(ctx, s.blobs.JobKey(jobID)), slog.String("job_id", jobID))

	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	s.logger.Info("Job deleted", slog.String("job_id", jobID), slog.Int("tracks", len(tracks)))
	s.events.JobChanged(ctx, EventJobDeleted, job)
	return nil
}

// Audio opens the result of a DONE job owned by the caller.
func (s *JobService) Audio(ctx context.Context, caller domain.Caller, jobID string) (*AudioSource, error) {
	job, err := s.executable(ctx, caller, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusDone || job.ResultRef == nil {
		return nil, domain.NewNotFound("audio")
	}
	return openAudio(ctx, s.blobs, *job.ResultRef)
}

// executable loads a job for start, complete and audio, where a job the caller
// does not own is reported as absent.
func (s *JobService) executable(ctx context.Context, caller domain.Caller, jobID string) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(job.OwnerUserID) {
		return nil, domain.NewNotFound("job")
	}
	return job, nil
}

func firstPositive(candidates ...*int) *int {
	for _, c := range candidates {
		if c != nil && *c > 0 {
			v := *c
			return &v
		}
	}
	return nil
}
