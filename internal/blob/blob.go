package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when no backend holds the key.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidKey is returned for empty, absolute or traversing keys.
	ErrInvalidKey = errors.New("invalid blob key")
)

const (
	DefaultKeyPrefix = "generated"
	trackKeyPrefix   = "tracks"
	audioContentType = "audio/mpeg"
)

// Object is an open blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Info is blob metadata.
type Info struct {
	ContentType string
	Size        int64
}

// Backend is one concrete blob store. Delete of an absent key is not an error
// and Get/Head of an absent key return ErrNotFound.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Head(ctx context.Context, key string) (*Info, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that could escape the storage root.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	case strings.ContainsAny(key, "\\\x00"):
		return fmt.Errorf("%w: %q has forbidden characters", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func contentTypeFor(key string) string {
	ext := path.Ext(key)
	if ext == ".mp3" {
		return audioContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
