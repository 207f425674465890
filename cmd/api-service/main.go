package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/voiceover-be/internal/api/handler"
	"github.com/cuongbtq/voiceover-be/internal/api/router"
	"github.com/cuongbtq/voiceover-be/internal/api/service"
	"github.com/cuongbtq/voiceover-be/internal/api/storage"
	"github.com/cuongbtq/voiceover-be/internal/auth"
	"github.com/cuongbtq/voiceover-be/internal/blob"
	"github.com/cuongbtq/voiceover-be/internal/config"
	"github.com/cuongbtq/voiceover-be/internal/metrics"
	"github.com/cuongbtq/voiceover-be/internal/ratelimit"
	"github.com/cuongbtq/voiceover-be/internal/synth"
	"github.com/cuongbtq/voiceover-be/shared/logger"
	"github.com/cuongbtq/voiceover-be/shared/postgresql"
	"github.com/cuongbtq/voiceover-be/shared/rabbitmq"
)

// appStore is what the services and the session resolver need from storage.
type appStore interface {
	service.Store
	auth.UserProvisioner
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("database_driver", cfg.Database.Driver),
	)

	m := metrics.New("voiceover")

	store, dbClient, err := initStorage(&cfg.Database, m, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if dbClient != nil {
		defer func() {
			appLogger.Info("Database pool", slog.String("stats", dbClient.Stats()))
			dbClient.Close()
		}()
	}

	var publisher service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		publisher = rabbitClient
		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Info("Job events disabled")
	}

	blobs, err := blob.NewGateway(blob.Config{
		Remote: blob.RemoteConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		},
		LocalDir:  cfg.Storage.LocalDir,
		KeyPrefix: cfg.Storage.KeyPrefix,
	}, appLogger.Component("blob"))
	if err != nil {
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	limiter, err := ratelimit.New(cfg.RateLimits.MaxKeys)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	deps := initDependencies(cfg, appLogger, store, blobs, publisher, limiter, m)
	if dbClient != nil {
		deps.HealthCheck = dbClient.HealthCheck
	}

	r := initRouter(cfg.App.Environment, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initStorage opens the configured store. The returned client is nil for the
// memory driver.
func initStorage(cfg *config.DatabaseConfig, m *metrics.Metrics, appLogger *logger.Logger) (appStore, *postgresql.Client, error) {
	if cfg.Driver == config.DriverMemory {
		appLogger.Warn("Using in-memory storage; data is lost on restart")
		return storage.NewMemoryStorage(appLogger.Component("storage")), nil, nil
	}

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, appLogger.Component("postgresql"))
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := dbClient.Migrate(); err != nil {
			dbClient.Close()
			return nil, nil, err
		}
	}

	if err := m.RegisterDB(dbClient.GetDB().DB, cfg.Database); err != nil {
		appLogger.Warn("Failed to export database pool metrics", slog.Any("error", err))
	}

	return storage.NewStorage(dbClient, appLogger.Component("storage")), dbClient, nil
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		BindingKey:         cfg.Queue.BindingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

func initDependencies(
	cfg *config.Config,
	appLogger *logger.Logger,
	store appStore,
	blobs *blob.Gateway,
	publisher service.Publisher,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
) *handler.Dependencies {
	svcLogger := appLogger.Component("service")

	synthesizer := synth.New(synth.Config{
		APIKey:         cfg.Synthesis.APIKey,
		BaseURL:        cfg.Synthesis.BaseURL,
		Model:          cfg.Synthesis.Model,
		Timeout:        cfg.Synthesis.Timeout,
		WordsPerMinute: cfg.Synthesis.WordsPerMinute,
	}, appLogger.Component("synth"))
	scripts := synth.NewScriptWriter(cfg.Script.Enabled, cfg.Synthesis.APIKey, cfg.Synthesis.BaseURL,
		cfg.Script.Model, appLogger.Component("script"))

	tracks := service.NewTrackService(store, blobs, svcLogger)
	jobs := service.NewJobService(service.JobDeps{
		Store:   store,
		Blobs:   blobs,
		Synth:   synthesizer,
		Scripts: scripts,
		Tracks:  tracks,
		Events:  service.NewEvents(publisher, svcLogger),
		Metrics: m,
	}, service.JobConfig{
		CreationCost:     cfg.Jobs.CreationCost,
		CreationCooldown: cfg.Jobs.CreationCooldown,
		DefaultTake:      cfg.Jobs.DefaultTake,
		MaxTake:          cfg.Jobs.MaxTake,
		ExecutionTimeout: cfg.Jobs.ExecutionTimeout,
	}, svcLogger)

	return &handler.Dependencies{
		Logger:  appLogger.Component("http"),
		Jobs:    jobs,
		Tracks:  tracks,
		Share:   service.NewShareResolver(store, blobs),
		Ledger:  service.NewLedger(store, svcLogger),
		Prompts: service.NewPromptService(scripts, svcLogger),
		Sessions: auth.NewSessionResolver(auth.Config{
			JWTSecret:     cfg.Auth.JWTSecret,
			CookieName:    cfg.Auth.CookieName,
			SystemSecret:  cfg.Auth.SystemSecret,
			SignupCredits: cfg.Jobs.SignupCredits,
		}, store, appLogger.Component("auth")),
		Limiter: limiter,
		Limits: handler.RateLimits{
			Create:        rule(cfg.RateLimits.Create),
			Start:         rule(cfg.RateLimits.Start),
			Complete:      rule(cfg.RateLimits.Complete),
			PromptImprove: rule(cfg.RateLimits.PromptImprove),
		},
		Metrics:       m,
		PublicBaseURL: cfg.App.PublicBaseURL,
	}
}

func rule(r config.RateRule) ratelimit.Rule {
	return ratelimit.Rule{Limit: r.Limit, Window: r.Window}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
