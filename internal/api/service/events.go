package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

const (
	EventJobCreated = "job.created"
	EventJobDone    = "job.done"
	EventJobFailed  = "job.failed"
	EventJobDeleted = "job.deleted"

	publishTimeout = 2 * time.Second
)

// Publisher sends a message under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// JobEvent is the payload of every job lifecycle event.
type JobEvent struct {
	Type         string    `json:"type"`
	JobID        string    `json:"jobId"`
	OwnerUserID  string    `json:"ownerUserId"`
	Status       string    `json:"status"`
	ResultRef    *string   `json:"resultRef,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Events publishes job lifecycle events. A nil *Events publishes nothing.
type Events struct {
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewEvents(pub Publisher, logger *slog.Logger) *Events {
	if pub == nil {
		return nil
	}
	return &Events{pub: pub, logger: logger, now: time.Now}
}

// JobChanged publishes eventType for job. Failures are logged only.
func (e *Events) JobChanged(ctx context.Context, eventType string, job *domain.Job) {
	if e == nil || job == nil {
		return
	}

	body, err := json.Marshal(JobEvent{
		Type:         eventType,
		JobID:        job.ID,
		OwnerUserID:  job.OwnerUserID,
		Status:       string(job.Status),
		ResultRef:    job.ResultRef,
		ErrorMessage: job.ErrorMessage,
		OccurredAt:   e.now().UTC(),
	})
	if err != nil {
		bestEffort(e.logger, "encode event", err, slog.String("job_id", job.ID))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	bestEffort(e.logger, "publish "+eventType, e.pub.Publish(ctx, eventType, body), slog.String("job_id", job.ID))
}
