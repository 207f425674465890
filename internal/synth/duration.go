package synth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tcolgate/mp3"
)

// ErrNoFrames is returned when the audio holds no decodable MP3 frame.
var ErrNoFrames = errors.New("no mp3 frames found")

// DetectDuration sums the duration of every MP3 frame in audio.
func DetectDuration(audio []byte) (time.Duration, error) {
	dec := mp3.NewDecoder(bytes.NewReader(audio))

	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
		frames  int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("failed to decode mp3 frame %d: %w", frames, err)
		}
		total += frame.Duration()
		frames++
	}

	if frames == 0 {
		return 0, ErrNoFrames
	}
	return total, nil
}
