package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/dto"
	"github.com/cuongbtq/voiceover-be/internal/api/service"
)

// TrackHandler serves the owner's library and public share links.
type TrackHandler struct {
	logger        *slog.Logger
	tracks        *service.TrackService
	share         *service.ShareResolver
	publicBaseURL string
}

func NewTrackHandler(deps *Dependencies) *TrackHandler {
	return &TrackHandler{
		logger:        deps.Logger,
		tracks:        deps.Tracks,
		share:         deps.Share,
		publicBaseURL: deps.PublicBaseURL,
	}
}

// ListTracks handles GET /tracks
func (h *TrackHandler) ListTracks(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.ListTracksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		RespondError(c, h.logger, domain.NewInvalidInput("INVALID_QUERY", "take must be an integer"))
		return
	}
	cursor, err := DecodeTrackCursor(req.Cursor)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	in := service.ListTracksInput{Cursor: cursor, Query: req.Query, Take: req.Take}
	if req.StoryID != "" {
		in.StoryID = &req.StoryID
	}

	page, err := h.tracks.List(c.Request.Context(), user.ID, in)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	resp := dto.ListTracksResponse{
		Tracks:     make([]dto.TrackDTO, len(page.Tracks)),
		NextCursor: EncodeTrackCursor(page.NextCursor),
	}
	for i, t := range page.Tracks {
		resp.Tracks[i] = dto.NewTrackDTO(t, h.publicBaseURL)
	}
	c.JSON(http.StatusOK, resp)
}

// PromoteTrack handles POST /tracks
func (h *TrackHandler) PromoteTrack(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.PromoteTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	track, err := h.tracks.Promote(c.Request.Context(), domain.UserCaller(user.ID), service.PromoteInput{
		JobID:     req.JobID,
		Title:     req.Title,
		StoryID:   req.StoryID,
		PartIndex: req.PartIndex,
		PartTitle: req.PartTitle,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTrackDTO(track, h.publicBaseURL))
}

// RenameTrack handles PATCH /tracks/:id
func (h *TrackHandler) RenameTrack(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.RenameTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	track, err := h.tracks.Rename(c.Request.Context(), domain.UserCaller(user.ID), c.Param("id"), req.Title)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTrackDTO(track, h.publicBaseURL))
}

// AssignStory handles PATCH /tracks/:id/story
func (h *TrackHandler) AssignStory(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.AssignStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	track, err := h.tracks.AssignStory(c.Request.Context(), domain.UserCaller(user.ID), c.Param("id"), domain.StoryAssignment{
		StoryID:   req.StoryID,
		PartIndex: req.PartIndex,
		PartTitle: req.PartTitle,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTrackDTO(track, h.publicBaseURL))
}

// ShareTrack handles PATCH /tracks/:id/share
func (h *TrackHandler) ShareTrack(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	var req dto.ShareTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	track, err := h.tracks.SetPublic(c.Request.Context(), domain.UserCaller(user.ID), c.Param("id"), *req.IsPublic)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTrackDTO(track, h.publicBaseURL))
}

// DeleteTrack handles DELETE /tracks/:id
func (h *TrackHandler) DeleteTrack(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	if err := h.tracks.Delete(c.Request.Context(), domain.UserCaller(user.ID), c.Param("id")); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PublicAudio handles GET /public/:slug without a session.
func (h *TrackHandler) PublicAudio(c *gin.Context) {
	_, src, err := h.share.OpenBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	serveAudio(c, src, "public, max-age=300")
}
