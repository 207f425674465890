package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		mult    float64
		attempt int
		want    time.Duration
	}{
		{name: "defaults first attempt", attempt: 0, want: 100 * time.Millisecond},
		{name: "defaults third attempt", attempt: 2, want: 400 * time.Millisecond},
		{name: "custom base", base: time.Second, mult: 3, attempt: 1, want: 3 * time.Second},
		{name: "negative multiplier falls back", base: 50 * time.Millisecond, mult: -1, attempt: 1, want: 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BackoffDelay(tt.base, tt.mult, tt.attempt))
		})
	}
}

func TestPublish_NotConnected(t *testing.T) {
	c := &Client{
		config: &Config{ExchangeName: "voiceover.events"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	err := c.Publish(context.Background(), "job.created", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.False(t, c.IsConnected())
}
