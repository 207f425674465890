package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/handler"
)

// Rate-limited action classes.
const (
	ActionCreate        = "create"
	ActionStart         = "start"
	ActionComplete      = "complete"
	ActionPromptImprove = "prompt-improve"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware(deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed", slog.Any("error", err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "voiceover-api",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "voiceover-api",
		})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	jobHandler := handler.NewJobHandler(deps)
	trackHandler := handler.NewTrackHandler(deps)
	accountHandler := handler.NewAccountHandler(deps)
	promptHandler := handler.NewPromptHandler(deps)

	user := AuthMiddleware(deps.Sessions, false, deps.Logger)
	userOrSystem := AuthMiddleware(deps.Sessions, true, deps.Logger)
	limit := func(action string) gin.HandlerFunc {
		rule := deps.Limits.Create
		switch action {
		case ActionStart:
			rule = deps.Limits.Start
		case ActionComplete:
			rule = deps.Limits.Complete
		case ActionPromptImprove:
			rule = deps.Limits.PromptImprove
		}
		return RateLimit(deps.Limiter, action, rule, deps.Metrics, deps.Logger)
	}

	r.GET("/me", user, accountHandler.Me)

	jobs := r.Group("/jobs")
	{
		jobs.POST("", user, limit(ActionCreate), jobHandler.CreateJob)
		jobs.GET("", user, jobHandler.ListJobs)
		jobs.GET("/:id", user, jobHandler.GetJob)
		jobs.POST("/:id/start", user, limit(ActionStart), jobHandler.StartJob)
		jobs.POST("/:id/complete", user, limit(ActionComplete), jobHandler.CompleteJob)
		jobs.POST("/:id/fail", userOrSystem, jobHandler.FailJob)
		jobs.DELETE("/:id", userOrSystem, jobHandler.DeleteJob)
		jobs.GET("/:id/audio", user, jobHandler.JobAudio)
	}

	tracks := r.Group("/tracks", user)
	{
		tracks.GET("", trackHandler.ListTracks)
		tracks.POST("", trackHandler.PromoteTrack)
		tracks.PATCH("/:id", trackHandler.RenameTrack)
		tracks.PATCH("/:id/story", trackHandler.AssignStory)
		tracks.PATCH("/:id/share", trackHandler.ShareTrack)
		tracks.DELETE("/:id", trackHandler.DeleteTrack)
	}

	r.GET("/public/:slug", trackHandler.PublicAudio)

	r.POST("/prompts/improve", user, limit(ActionPromptImprove), promptHandler.Improve)

	internal := r.Group("/internal/users/:id", RequireSystem(deps.Sessions, deps.Logger))
	{
		internal.POST("/credits", accountHandler.GrantCredits)
		internal.PUT("/billing", accountHandler.LinkBilling)
		internal.DELETE("/subscription", accountHandler.CancelSubscription)
	}

	return r
}
