package handler

import (
	"strings"
	"time"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/storage"
)

const cursorSeparator = "::"

var errInvalidCursor = domain.NewInvalidInput("INVALID_CURSOR", "cursor must be <timestamp>::<id>")

// DecodeTrackCursor parses "<RFC3339Nano>::<trackId>". Empty means first page.
func DecodeTrackCursor(raw string) (*storage.TrackCursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	ts, id, ok := strings.Cut(raw, cursorSeparator)
	if !ok || id == "" {
		return nil, errInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, errInvalidCursor
	}
	return &storage.TrackCursor{CreatedAt: createdAt, TrackID: id}, nil
}

func EncodeTrackCursor(cursor *storage.TrackCursor) string {
	if cursor == nil {
		return ""
	}
	return cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + cursor.TrackID
}
