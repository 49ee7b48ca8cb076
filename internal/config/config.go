package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Remote     RemoteConfig     `yaml:"remote"`
	Sync       SyncConfig       `yaml:"sync"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig describes the backend sync interface. CredentialsURL points at
// the endpoint handing out {endpoint, token} pairs; Token is a static
// fallback for backends without credential rotation.
type RemoteConfig struct {
	CredentialsURL string  `yaml:"credentials_url"`
	Endpoint       string  `yaml:"endpoint"`
	Token          string  `yaml:"token"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	PollRPS        float64 `yaml:"poll_rps"`
}

type SyncConfig struct {
	UploadLimit         int     `yaml:"upload_limit"`
	DownloadLimit       int     `yaml:"download_limit"`
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
	BackoffMinSeconds   int     `yaml:"backoff_min_seconds"`
	BackoffMaxSeconds   int     `yaml:"backoff_max_seconds"`
	BackoffFactor       float64 `yaml:"backoff_factor"`
}

func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c SyncConfig) BackoffMin() time.Duration {
	return time.Duration(c.BackoffMinSeconds) * time.Second
}

func (c SyncConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSeconds) * time.Second
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Enabled      bool               `yaml:"enabled"`
	Port         int                `yaml:"port"`
	HeaderAPIKey string             `yaml:"header_api_key"`
	APIKeys      []APIClientKey     `yaml:"api_keys"`
	RateLimit    APIRateLimitConfig `yaml:"rate_limit"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment values referenced from the YAML win.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Remote.CredentialsURL == "" && c.Remote.Endpoint == "" {
		return errors.New("remote endpoint or credentials_url is required")
	}
	if c.API.Enabled && len(c.API.APIKeys) == 0 {
		return errors.New("api is enabled but no api keys are configured")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "job-booking-sync"
	}
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = models.DefaultRemoteTimeoutSeconds
	}
	if c.Remote.PollRPS == 0 {
		c.Remote.PollRPS = 1
	}
	if c.Sync.UploadLimit == 0 {
		c.Sync.UploadLimit = models.DefaultUploadLimit
	}
	if c.Sync.DownloadLimit == 0 {
		c.Sync.DownloadLimit = models.DefaultDownloadLimit
	}
	if c.Sync.PollIntervalSeconds == 0 {
		c.Sync.PollIntervalSeconds = models.DefaultPollIntervalSeconds
	}
	if c.Sync.BackoffMinSeconds == 0 {
		c.Sync.BackoffMinSeconds = 1
	}
	if c.Sync.BackoffMaxSeconds == 0 {
		c.Sync.BackoffMaxSeconds = 60
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.HeaderAPIKey == "" {
		c.API.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
