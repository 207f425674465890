package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ScriptWriter turns a prompt into the words that will be spoken.
type ScriptWriter interface {
	Write(ctx context.Context, prompt, preset string) (string, error)
}

// PlainScriptWriter speaks the prompt itself, whitespace normalized.
type PlainScriptWriter struct{}

func (PlainScriptWriter) Write(_ context.Context, prompt, _ string) (string, error) {
	return strings.Join(strings.Fields(prompt), " "), nil
}

const scriptSystemPrompt = `You write short scripts meant to be read aloud by a text-to-speech voice.
Return only the words to be spoken: no titles, no stage directions, no markdown.
Delivery style: %s.`

// OpenAIScriptWriter expands a prompt into a spoken-word script with a chat model.
type OpenAIScriptWriter struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIScriptWriter(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIScriptWriter {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIScriptWriter{client: newClient(apiKey, baseURL), model: model, logger: logger}
}

func (w *OpenAIScriptWriter) Write(ctx context.Context, prompt, preset string) (string, error) {
	p := LookupPreset(preset)

	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(scriptSystemPrompt, p.Style)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("script request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("script model returned no choices")
	}

	script := strings.TrimSpace(resp.Choices[0].Message.Content)
	if script == "" {
		return "", errors.New("script model returned empty text")
	}

	w.logger.Debug("Script written",
		slog.String("model", w.model),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return script, nil
}

// NewScriptWriter picks the chat-backed writer when enabled and keyed.
func NewScriptWriter(enabled bool, apiKey, baseURL, model string, logger *slog.Logger) ScriptWriter {
	if enabled && strings.TrimSpace(apiKey) != "" {
		return NewOpenAIScriptWriter(apiKey, baseURL, model, logger)
	}
	return PlainScriptWriter{}
}
