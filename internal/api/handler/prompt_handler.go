package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/dto"
	"github.com/cuongbtq/voiceover-be/internal/api/service"
)

type PromptHandler struct {
	logger  *slog.Logger
	prompts *service.PromptService
}

func NewPromptHandler(deps *Dependencies) *PromptHandler {
	return &PromptHandler{logger: deps.Logger, prompts: deps.Prompts}
}

// Improve handles POST /prompts/improve
func (h *PromptHandler) Improve(c *gin.Context) {
	if _, ok := requireUser(c, h.logger); !ok {
		return
	}

	var req dto.ImprovePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	out, err := h.prompts.Improve(c.Request.Context(), req.Prompt, req.Preset)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ImprovePromptResponse{Prompt: out})
}
