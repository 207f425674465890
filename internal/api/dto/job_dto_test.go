package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

func TestJobCreateRequest_Duration(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *int
		wantErr bool
	}{
		{name: "empty", raw: ""},
		{name: "integer", raw: "90", want: intPtr(90)},
		{name: "float rounds", raw: "90.6", want: intPtr(91)},
		{name: "huge integer", raw: "9223372036854775807", want: intPtr(domain.MaxRequestedDuration)},
		{name: "beyond int64", raw: "99999999999999999999", want: intPtr(domain.MaxRequestedDuration)},
		{name: "huge float", raw: "1e20", want: intPtr(domain.MaxRequestedDuration)},
		{name: "huge negative float", raw: "-1e20", want: intPtr(0)},
		{name: "negative", raw: "-5", want: intPtr(0)},
		{name: "not a number", raw: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JobCreateRequest{DurationSec: json.Number(tt.raw)}.Duration()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJobCreateRequest_ToInputClampsHugeDuration(t *testing.T) {
	in, err := JobCreateRequest{Prompt: "a very long story", DurationSec: "1e20"}.ToInput("u1")
	require.NoError(t, err)

	_, _, _, dur, err := in.Normalize()
	require.NoError(t, err)
	require.NotNil(t, dur)
	assert.Equal(t, domain.MaxRequestedDuration, *dur)

	in, err = JobCreateRequest{Prompt: "a very long story", DurationSec: "-1e20"}.ToInput("u1")
	require.NoError(t, err)
	_, _, _, dur, err = in.Normalize()
	require.NoError(t, err)
	assert.Nil(t, dur)
}

func intPtr(i int) *int { return &i }
