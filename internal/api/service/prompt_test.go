package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

func TestPromptService_Improve(t *testing.T) {
	plain := NewPromptService(nil, discardLogger())

	out, err := plain.Improve(context.Background(), "  a   story\nabout   owls ", nil)
	require.NoError(t, err)
	assert.Equal(t, "a story about owls", out)

	_, err = plain.Improve(context.Background(), "ab", nil)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	failing := NewPromptService(failingScripts{}, discardLogger())
	_, err = failing.Improve(context.Background(), "a story about owls", strPtr("story"))
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstreamFailure, domain.KindOf(err))
}
