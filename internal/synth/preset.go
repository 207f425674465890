package synth

import (
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	// MinSpeed and MaxSpeed are the playback rates the provider accepts.
	MinSpeed = 0.25
	MaxSpeed = 4.0

	DefaultWordsPerMinute = 150
	defaultPresetName     = "default"
)

// Preset maps a user-facing style name to provider voice parameters.
type Preset struct {
	Name  string
	Voice openai.SpeechVoice
	Speed float64
	// Style is a short delivery hint handed to the script writer.
	Style string
}

var presets = map[string]Preset{
	"narrator":  {Name: "narrator", Voice: openai.VoiceFable, Speed: 1.0, Style: "warm, measured audiobook narration"},
	"calm":      {Name: "calm", Voice: openai.VoiceShimmer, Speed: 0.9, Style: "slow and soothing"},
	"energetic": {Name: "energetic", Voice: openai.VoiceNova, Speed: 1.15, Style: "upbeat and lively"},
	"news":      {Name: "news", Voice: openai.VoiceOnyx, Speed: 1.05, Style: "crisp broadcast news delivery"},
	"story":     {Name: "story", Voice: openai.VoiceEcho, Speed: 0.95, Style: "expressive bedtime storytelling"},
	"default":   {Name: defaultPresetName, Voice: openai.VoiceAlloy, Speed: 1.0, Style: "natural conversational tone"},
}

// LookupPreset resolves a preset by name, case-insensitively. Unknown or
// empty names resolve to the default preset.
func LookupPreset(name string) Preset {
	if p, ok := presets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return presets[defaultPresetName]
}

// PresetNames lists the known preset names.
func PresetNames() []string {
	return []string{"narrator", "calm", "energetic", "news", "story", defaultPresetName}
}

// Fit picks the playback speed for text and returns it with the estimated
// spoken length in seconds. Without a target the preset speed is used; with
// one, the speed stretches or compresses the natural length toward the
// target within [MinSpeed, MaxSpeed].
func Fit(words, wordsPerMinute int, baseSpeed float64, targetSeconds *int) (speed float64, estimatedSeconds int) {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	if baseSpeed <= 0 {
		baseSpeed = 1.0
	}

	natural := float64(words) / float64(wordsPerMinute) * 60

	speed = baseSpeed
	if targetSeconds != nil && *targetSeconds > 0 && natural > 0 {
		speed = natural / float64(*targetSeconds)
	}
	speed = math.Min(math.Max(speed, MinSpeed), MaxSpeed)
	speed = math.Round(speed*100) / 100

	estimatedSeconds = int(math.Round(natural / speed))
	if estimatedSeconds < 1 && words > 0 {
		estimatedSeconds = 1
	}
	return speed, estimatedSeconds
}

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
