package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrSynthesisUnavailable is returned when no provider credentials are configured.
var ErrSynthesisUnavailable = errors.New("speech synthesis is not configured")

// ErrEmptyAudio is returned when the provider answers without audio bytes.
var ErrEmptyAudio = errors.New("speech provider returned empty audio")

const (
	DefaultModel   = string(openai.TTSModel1)
	DefaultTimeout = 60 * time.Second
	// provider input limit
	maxInputRunes = 4096
)

// Request is one synthesis call.
type Request struct {
	Text          string
	Preset        string
	TargetSeconds *int
}

// Result is synthesized audio plus the adapter's own length estimate.
type Result struct {
	Audio            []byte
	ContentType      string
	EstimatedSeconds int
	Speed            float64
	Voice            string
}

// Synthesizer turns text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// Config configures the OpenAI speech adapter.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Timeout        time.Duration
	WordsPerMinute int
}

// OpenAISynthesizer calls the OpenAI speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// New returns the OpenAI adapter, or an adapter that always fails with
// ErrSynthesisUnavailable when no API key is configured.
func New(cfg Config, logger *slog.Logger) Synthesizer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("Speech synthesis disabled: no API key configured")
		return unavailable{}
	}
	return NewOpenAI(cfg, logger)
}

func NewOpenAI(cfg Config, logger *slog.Logger) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = DefaultWordsPerMinute
	}
	return &OpenAISynthesizer{
		client: newClient(cfg.APIKey, cfg.BaseURL),
		cfg:    cfg,
		logger: logger,
	}
}

func newClient(apiKey, baseURL string) *openai.Client {
	oc := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(oc)
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (*Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("nothing to synthesize")
	}
	if r := []rune(text); len(r) > maxInputRunes {
		text = string(r[:maxInputRunes])
	}

	preset := LookupPreset(req.Preset)
	speed, estimated := Fit(CountWords(text), s.cfg.WordsPerMinute, preset.Speed, req.TargetSeconds)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          preset.Voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	s.logger.Info("Speech synthesized",
		slog.String("preset", preset.Name),
		slog.String("voice", string(preset.Voice)),
		slog.Float64("speed", speed),
		slog.Int("bytes", len(audio)),
		slog.Duration("latency", time.Since(start)),
	)

	return &Result{
		Audio:            audio,
		ContentType:      "audio/mpeg",
		EstimatedSeconds: estimated,
		Speed:            speed,
		Voice:            string(preset.Voice),
	}, nil
}

type unavailable struct{}

func (unavailable) Synthesize(context.Context, Request) (*Result, error) {
	return nil, ErrSynthesisUnavailable
}
