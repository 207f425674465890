package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Config selects and configures the gateway backends.
type Config struct {
	Remote    RemoteConfig
	LocalDir  string
	KeyPrefix string
}

// Gateway hides which backend serves a blob. Writes go to the remote store
// when it is configured and to the local directory otherwise; reads try the
// remote store first and fall back to the local directory.
type Gateway struct {
	remote Backend
	local  Backend
	prefix string
	logger *slog.Logger
}

// NewGateway builds a gateway from configuration. The remote store is used
// only when its credentials are complete.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	var remote Backend
	if cfg.Remote.Complete() {
		rs, err := NewRemoteStore(cfg.Remote)
		if err != nil {
			return nil, err
		}
		remote = rs
		logger.Info("Blob storage uses object store",
			slog.String("endpoint", cfg.Remote.Endpoint),
			slog.String("bucket", cfg.Remote.Bucket),
		)
	} else {
		logger.Info("Blob storage uses local directory", slog.String("dir", cfg.LocalDir))
	}
	return New(remote, NewLocalStore(cfg.LocalDir), cfg.KeyPrefix, logger), nil
}

// New assembles a gateway from explicit backends. remote may be nil.
func New(remote, local Backend, keyPrefix string, logger *slog.Logger) *Gateway {
	prefix := strings.Trim(keyPrefix, "/")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Gateway{remote: remote, local: local, prefix: prefix, logger: logger}
}

// JobKey is the storage key of a job's synthesized audio.
func (g *Gateway) JobKey(jobID string) string {
	return g.prefix + "/" + jobID + ".mp3"
}

// TrackKey is the storage key of a track's own audio copy.
func (g *Gateway) TrackKey(trackID string) string {
	return trackKeyPrefix + "/" + trackID + ".mp3"
}

// Put writes data under key. A remote failure is returned as is; there is no
// local-only write when the remote store is configured.
func (g *Gateway) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	ct := contentTypeFor(key)
	if g.remote != nil {
		return g.remote.Put(ctx, key, data, ct)
	}
	return g.local.Put(ctx, key, data, ct)
}

// Get opens the blob under key.
func (g *Gateway) Get(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if g.remote != nil {
		obj, err := g.remote.Get(ctx, key)
		if err == nil {
			return obj, nil
		}
		g.logFallback(key, err)
	}
	return g.local.Get(ctx, key)
}

// Head returns metadata of the blob under key.
func (g *Gateway) Head(ctx context.Context, key string) (*Info, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if g.remote != nil {
		info, err := g.remote.Head(ctx, key)
		if err == nil {
			return info, nil
		}
		g.logFallback(key, err)
	}
	return g.local.Head(ctx, key)
}

// Delete removes key from every backend. Absent objects are not errors.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	var errs []error
	if g.remote != nil {
		if err := g.remote.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remote: %w", err))
		}
	}
	if err := g.local.Delete(ctx, key); err != nil {
		errs = append(errs, fmt.Errorf("local: %w", err))
	}
	return errors.Join(errs...)
}

func (g *Gateway) logFallback(key string, err error) {
	if errors.Is(err, ErrNotFound) {
		g.logger.Debug("Blob not in object store, trying local", slog.String("key", key))
		return
	}
	g.logger.Warn("Object store read failed, trying local",
		slog.String("key", key),
		slog.Any("error", err),
	)
}
