package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("VOICEOVER_TEST_JWT_SECRET", "jwt-from-env")

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, DriverPostgres, cfg.Database.Driver)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "devpass", cfg.Database.Password)
			assert.Equal(t, "voiceover.events", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "job.#", cfg.RabbitMQ.Queue.BindingKey)
			assert.Equal(t, "jwt-from-env", cfg.Auth.JWTSecret)
			assert.Equal(t, 5*time.Second, cfg.Jobs.CreationCooldown)
			assert.Equal(t, RateRule{Limit: 10, Window: time.Minute}, cfg.RateLimits.Create)
			assert.Equal(t, 5000, cfg.RateLimits.MaxKeys)
			assert.Equal(t, "https://voice.example.com", cfg.App.PublicBaseURL)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("VOICEOVER_SET", "value")
	t.Setenv("VOICEOVER_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "set variable", in: "a: ${VOICEOVER_SET}", want: "a: value"},
		{name: "unset variable", in: "a: ${VOICEOVER_UNSET_XYZ}", want: "a: "},
		{name: "default used when unset", in: "a: ${VOICEOVER_UNSET_XYZ:-fallback}", want: "a: fallback"},
		{name: "default used when empty", in: "a: ${VOICEOVER_EMPTY:-fallback}", want: "a: fallback"},
		{name: "bare dollar untouched", in: "password: pa$VOICEOVER_SET", want: "password: pa$VOICEOVER_SET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(ExpandEnv([]byte(tt.in))))
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Database: "voiceover",
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "voiceover.events"},
		},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			errString: "database name is required",
		},
		{
			name: "memory driver needs no database settings",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverMemory}
			},
		},
		{
			name:      "unknown driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			errString: "unknown database driver",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name: "disabled rabbitmq is not checked",
			mutate: func(c *Config) {
				c.RabbitMQ = RabbitMQConfig{}
			},
		},
		{
			name:      "missing jwt secret",
			mutate:    func(c *Config) { c.Auth.JWTSecret = " " },
			errString: "jwt_secret is required",
		},
		{
			name:      "negative cooldown",
			mutate:    func(c *Config) { c.Jobs.CreationCooldown = -time.Second },
			errString: "must not be negative",
		},
		{
			name:      "negative signup credits",
			mutate:    func(c *Config) { c.Jobs.SignupCredits = -1 },
			errString: "credit amounts must not be negative",
		},
		{
			name:      "rate rule without window",
			mutate:    func(c *Config) { c.RateLimits.Start = RateRule{Limit: 5} },
			errString: "rate limit start: window must be positive",
		},
		{
			name:      "negative rate limit",
			mutate:    func(c *Config) { c.RateLimits.Complete = RateRule{Limit: -1, Window: time.Second} },
			errString: "rate limit complete: limit must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		t.Setenv("VOICEOVER_TEST_JWT_SECRET", "jwt-from-env")

		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.Validate())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})

	t.Run("defaults are applied", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)

		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, "topic", cfg.RabbitMQ.Exchange.Type)
		assert.Equal(t, 10000, cfg.RateLimits.MaxKeys)
	})
}
