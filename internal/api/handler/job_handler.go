package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/dto"
	"github.com/cuongbtq/voiceover-be/internal/api/service"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   *service.JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}

// CreateJob handles POST /jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	req, err := bindJobCreateRequest(c)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	in, err := req.ToInput(user.ID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), in)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.JobCreateResponse{
		ID:     job.ID,
		Status: string(job.Status),
		Title:  job.Title,
		Prompt: job.Prompt,
	})
}

// bindJobCreateRequest parses the body once, whatever shape the client sent.
func bindJobCreateRequest(c *gin.Context) (dto.JobCreateRequest, error) {
	var req dto.JobCreateRequest

	var err error
	switch c.ContentType() {
	case binding.MIMEJSON, "":
		err = c.ShouldBindJSON(&req)
	case binding.MIMEMultipartPOSTForm:
		err = c.ShouldBindWith(&req, binding.FormMultipart)
	case binding.MIMEPOSTForm:
		err = c.ShouldBindWith(&req, binding.FormPost)
	default:
		return req, domain.NewInvalidInput("UNSUPPORTED_MEDIA_TYPE",
			"body must be JSON, multipart/form-data or application/x-www-form-urlencoded")
	}
	if err != nil {
		return req, invalidBody(err)
	}
	return req, nil
}

// ListJobs handles GET /jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		RespondError(c, h.logger, domain.NewInvalidInput("INVALID_QUERY", "take and skip must be integers"))
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), user.ID, req.Take, req.Skip)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	out := make([]dto.JobSummaryDTO, len(jobs))
	for i, j := range jobs {
		out[i] = dto.NewJobSummaryDTO(j)
	}
	c.JSON(http.StatusOK, out)
}

// GetJob handles GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	caller, ok := requireCaller(c, h.logger)
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// StartJob handles POST /jobs/:id/start
func (h *JobHandler) StartJob(c *gin.Context) {
	caller, ok := requireCaller(c, h.logger)
	if !ok {
		return
	}

	job, err := h.jobs.Start(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.JobStatusResponse{ID: job.ID, Status: string(job.Status)})
}

// CompleteJob handles POST /jobs/:id/complete. An empty body asks the
// service to synthesize the audio itself.
func (h *JobHandler) CompleteJob(c *gin.Context) {
	caller, ok := requireCaller(c, h.logger)
	if !ok {
		return
	}

	var req dto.CompleteJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	h.logger.Debug("Completing job",
		slog.String("job_id", c.Param("id")),
		slog.Bool("has_result", req.ResultURL != nil),
		slog.Bool("has_error", req.Error != nil),
	)

	job, err := h.jobs.Complete(c.Request.Context(), caller, c.Param("id"), service.CompleteInput{
		ResultRef:   req.ResultURL,
		DurationSec: req.DurationSec,
		Error:       req.Error,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// FailJob handles POST /jobs/:id/fail for owners and the system caller.
func (h *JobHandler) FailJob(c *gin.Context) {
	caller, ok := requireCaller(c, h.logger)
	if !ok {
		return
	}

	var req dto.FailJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	job, err := h.jobs.ForceFail(c.Request.Context(), caller, c.Param("id"), req.Reason)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// DeleteJob handles DELETE /jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	caller, ok := requireCaller(c, h.logger)
	if !ok {
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// JobAudio handles GET /jobs/:id/audio
func (h *JobHandler) JobAudio(c *gin.Context) {
	caller, ok := requireCaller(c, h.logger)
	if !ok {
		return
	}

	src, err := h.jobs.Audio(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	serveAudio(c, src, "private, max-age=0")
}
