package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Script     ScriptConfig     `yaml:"script"`
	Jobs       JobsConfig       `yaml:"jobs"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration. Driver "memory"
// keeps everything in process and ignores the connection settings.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig declares an optional queue retaining lifecycle events.
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	BindingKey string `yaml:"binding_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Environment   string `yaml:"environment"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// AuthConfig holds session and system-caller secrets
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	CookieName   string `yaml:"cookie_name"`
	SystemSecret string `yaml:"system_secret"`
}

// StorageConfig selects the object store. Without complete credentials audio
// is kept under LocalDir.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	LocalDir  string `yaml:"local_dir"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SynthesisConfig configures the speech provider
type SynthesisConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	WordsPerMinute int           `yaml:"words_per_minute"`
}

// ScriptConfig configures the optional prompt-to-script chat model
type ScriptConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// JobsConfig holds job admission and listing settings
type JobsConfig struct {
	CreationCost     int64         `yaml:"creation_cost"`
	CreationCooldown time.Duration `yaml:"creation_cooldown"`
	DefaultTake      int           `yaml:"default_take"`
	MaxTake          int           `yaml:"max_take"`
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	SignupCredits    int64         `yaml:"signup_credits"`
}

// RateRule is a limit per trailing window. A zero limit disables the rule.
type RateRule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RateLimitsConfig holds per action class budgets
type RateLimitsConfig struct {
	MaxKeys       int      `yaml:"max_keys"`
	Create        RateRule `yaml:"create"`
	Start         RateRule `yaml:"start"`
	Complete      RateRule `yaml:"complete"`
	PromptImprove RateRule `yaml:"prompt_improve"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// A bare $VAR is left alone.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		m := envRef.FindSubmatch(ref)
		if v, ok := os.LookupEnv(string(m[1])); ok && v != "" {
			return []byte(v)
		}
		return m[3]
	})
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(ExpandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "data/audio"
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.RateLimits.MaxKeys <= 0 {
		c.RateLimits.MaxKeys = 10000
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, "":
		if c.Database.Host == "" {
			return errors.New("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return errors.New("database name is required")
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return errors.New("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return errors.New("rabbitmq exchange name is required")
		}
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth jwt_secret is required")
	}

	if c.Synthesis.Timeout < 0 || c.Jobs.ExecutionTimeout < 0 || c.Jobs.CreationCooldown < 0 {
		return errors.New("timeouts and cooldowns must not be negative")
	}
	if c.Jobs.CreationCost < 0 || c.Jobs.SignupCredits < 0 {
		return errors.New("credit amounts must not be negative")
	}

	rules := map[string]RateRule{
		"create":         c.RateLimits.Create,
		"start":          c.RateLimits.Start,
		"complete":       c.RateLimits.Complete,
		"prompt_improve": c.RateLimits.PromptImprove,
	}
	for name, r := range rules {
		if r.Limit < 0 {
			return fmt.Errorf("rate limit %s: limit must not be negative", name)
		}
		if r.Limit > 0 && r.Window <= 0 {
			return fmt.Errorf("rate limit %s: window must be positive", name)
		}
	}

	return nil
}
