package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/synth"
)

// PromptService rewrites prompts into speakable scripts on request.
type PromptService struct {
	scripts synth.ScriptWriter
	logger  *slog.Logger
}

func NewPromptService(scripts synth.ScriptWriter, logger *slog.Logger) *PromptService {
	if scripts == nil {
		scripts = synth.PlainScriptWriter{}
	}
	return &PromptService{scripts: scripts, logger: logger}
}

// Improve returns the script the synthesizer would speak for prompt.
func (p *PromptService) Improve(ctx context.Context, prompt string, preset *string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if utf8.RuneCountInString(prompt) < domain.MinPromptLength {
		return "", domain.NewInvalidInput("INVALID_PROMPT",
			fmt.Sprintf("prompt must be at least %d characters", domain.MinPromptLength))
	}

	style := ""
	if preset != nil {
		style = strings.ToLower(strings.TrimSpace(*preset))
	}

	out, err := p.scripts.Write(ctx, prompt, style)
	if err != nil {
		p.logger.Error("Prompt improvement failed", slog.Any("error", err))
		return "", domain.NewUpstreamFailure("SCRIPT_FAILED", "could not improve prompt", err)
	}
	if strings.TrimSpace(out) == "" {
		return prompt, nil
	}
	return strings.TrimSpace(out), nil
}
