package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/service"
	"github.com/cuongbtq/voiceover-be/internal/auth"
	"github.com/cuongbtq/voiceover-be/internal/metrics"
	"github.com/cuongbtq/voiceover-be/internal/ratelimit"
)

// RateLimits holds the admission budget of each rate-limited action. A rule
// with a non-positive limit disables limiting for that action.
type RateLimits struct {
	Create        ratelimit.Rule
	Start         ratelimit.Rule
	Complete      ratelimit.Rule
	PromptImprove ratelimit.Rule
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Jobs     *service.JobService
	Tracks   *service.TrackService
	Share    *service.ShareResolver
	Ledger   *service.Ledger
	Prompts  *service.PromptService
	Sessions *auth.SessionResolver
	Limiter  *ratelimit.Limiter
	Limits   RateLimits
	Metrics  *metrics.Metrics
	// PublicBaseURL prefixes share links, e.g. https://voiceover.example.com
	PublicBaseURL string
	// HealthCheck reports backing store health on /health. Optional.
	HealthCheck func(ctx context.Context) error
}

const (
	callerKey = "voiceover.caller"
	userKey   = "voiceover.user"
)

// SetCaller stores the authenticated caller on the request context. user is
// nil for the system caller.
func SetCaller(c *gin.Context, caller domain.Caller, user *domain.User) {
	c.Set(callerKey, caller)
	if user != nil {
		c.Set(userKey, user)
	}
}

// CallerFrom returns the caller set by the auth middleware.
func CallerFrom(c *gin.Context) (domain.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return domain.Caller{}, false
	}
	caller, ok := v.(domain.Caller)
	return caller, ok
}

// UserFrom returns the session user, nil for the system caller.
func UserFrom(c *gin.Context) *domain.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*domain.User)
	return u
}

// requireUser returns the session user or answers 401.
func requireUser(c *gin.Context, logger *slog.Logger) (*domain.User, bool) {
	u := UserFrom(c)
	if u == nil {
		RespondError(c, logger, domain.ErrUnauthenticated)
		return nil, false
	}
	return u, true
}

// requireCaller returns the caller or answers 401.
func requireCaller(c *gin.Context, logger *slog.Logger) (domain.Caller, bool) {
	caller, ok := CallerFrom(c)
	if !ok {
		RespondError(c, logger, domain.ErrUnauthenticated)
		return domain.Caller{}, false
	}
	return caller, true
}
