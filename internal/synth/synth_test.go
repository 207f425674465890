package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(i int) *int { return &i }

// mp3Frames builds n silent MPEG-1 Layer III frames at 128 kbps / 44.1 kHz.
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

func TestLookupPreset(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "narrator", want: "narrator"},
		{name: "  CALM ", want: "calm"},
		{name: "", want: "default"},
		{name: "opera", want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupPreset(tt.name).Name)
		})
	}

	for _, name := range PresetNames() {
		assert.Equal(t, name, LookupPreset(name).Name)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name      string
		words     int
		wpm       int
		base      float64
		target    *int
		wantSpeed float64
		wantSecs  int
	}{
		{name: "no target uses preset speed", words: 150, wpm: 150, base: 1.0, wantSpeed: 1.0, wantSecs: 60},
		{name: "faster preset", words: 150, wpm: 150, base: 1.15, wantSpeed: 1.15, wantSecs: 52},
		{name: "stretch to target", words: 150, wpm: 150, base: 1.0, target: intPtr(120), wantSpeed: 0.5, wantSecs: 120},
		{name: "compress to target", words: 300, wpm: 150, base: 1.0, target: intPtr(60), wantSpeed: 2.0, wantSecs: 60},
		{name: "clamped high", words: 150, wpm: 150, base: 1.0, target: intPtr(10), wantSpeed: 4.0, wantSecs: 15},
		{name: "clamped low", words: 15, wpm: 150, base: 1.0, target: intPtr(600), wantSpeed: 0.25, wantSecs: 24},
		{name: "default wpm", words: 150, wpm: 0, base: 0, wantSpeed: 1.0, wantSecs: 60},
		{name: "short text is at least a second", words: 1, wpm: 150, base: 1.0, wantSpeed: 1.0, wantSecs: 1},
		{name: "no words", words: 0, wpm: 150, base: 1.0, target: intPtr(30), wantSpeed: 1.0, wantSecs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speed, secs := Fit(tt.words, tt.wpm, tt.base, tt.target)
			assert.InDelta(t, tt.wantSpeed, speed, 0.001)
			assert.Equal(t, tt.wantSecs, secs)
		})
	}
}

func TestDetectDuration(t *testing.T) {
	d, err := DetectDuration(mp3Frames(100))
	require.NoError(t, err)
	// 1152 samples per frame at 44.1 kHz
	assert.InDelta(t, 2.612, d.Seconds(), 0.01)
}

func TestDetectDuration_NotMP3(t *testing.T) {
	_, err := DetectDuration([]byte("definitely not audio"))
	assert.Error(t, err)

	_, err = DetectDuration(nil)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestNew_WithoutKeyIsUnavailable(t *testing.T) {
	s := New(Config{}, discardLogger())

	_, err := s.Synthesize(context.Background(), Request{Text: "hello"})
	assert.ErrorIs(t, err, ErrSynthesisUnavailable)
}

func TestOpenAISynthesizer_Synthesize(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(mp3Frames(10))
	}))
	defer server.Close()

	s := NewOpenAI(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1", WordsPerMinute: 150}, discardLogger())

	res, err := s.Synthesize(context.Background(), Request{
		Text:          "one two three four five",
		Preset:        "news",
		TargetSeconds: intPtr(4),
	})
	require.NoError(t, err)

	assert.Len(t, res.Audio, 4170)
	assert.Equal(t, "audio/mpeg", res.ContentType)
	assert.Equal(t, "onyx", res.Voice)
	assert.InDelta(t, 0.5, res.Speed, 0.001)
	assert.Equal(t, 4, res.EstimatedSeconds)

	assert.Equal(t, "tts-1", got["model"])
	assert.Equal(t, "onyx", got["voice"])
	assert.Equal(t, "mp3", got["response_format"])
	assert.Equal(t, "one two three four five", got["input"])
	assert.InDelta(t, 0.5, got["speed"], 0.001)
}

func TestOpenAISynthesizer_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"voice backend down","type":"server_error"}}`))
	}))
	defer server.Close()

	s := NewOpenAI(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1"}, discardLogger())

	_, err := s.Synthesize(context.Background(), Request{Text: "hello there"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice backend down")
}

func TestOpenAISynthesizer_EmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewOpenAI(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1"}, discardLogger())

	_, err := s.Synthesize(context.Background(), Request{Text: "hello there"})
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestOpenAISynthesizer_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	s := NewOpenAI(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1", Timeout: 50 * time.Millisecond}, discardLogger())

	_, err := s.Synthesize(context.Background(), Request{Text: "hello there"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlainScriptWriter(t *testing.T) {
	out, err := PlainScriptWriter{}.Write(context.Background(), "  a calm\n\tstory  about   rain ", "calm")
	require.NoError(t, err)
	assert.Equal(t, "a calm story about rain", out)
}

func TestOpenAIScriptWriter(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Rain taps softly on the window.  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 8, "total_tokens": 28}
		}`))
	}))
	defer server.Close()

	w := NewScriptWriter(true, "sk-test", server.URL+"/v1", "", discardLogger())
	require.IsType(t, &OpenAIScriptWriter{}, w)

	out, err := w.Write(context.Background(), "a story about rain", "story")
	require.NoError(t, err)
	assert.Equal(t, "Rain taps softly on the window.", out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	messages := got["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].(map[string]interface{})["content"], "bedtime storytelling")
	assert.Equal(t, "a story about rain", messages[1].(map[string]interface{})["content"])
}

func TestNewScriptWriter_DisabledFallsBackToPlain(t *testing.T) {
	assert.IsType(t, PlainScriptWriter{}, NewScriptWriter(false, "sk-test", "", "", discardLogger()))
	assert.IsType(t, PlainScriptWriter{}, NewScriptWriter(true, "", "", "", discardLogger()))
}
