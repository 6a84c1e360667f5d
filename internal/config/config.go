package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Exports    ExportConfig     `yaml:"exports"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIGRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// APIAuthConfig configures verification of the primary-service bearer token.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
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

// CalendarConfig controls the Google Calendar mirror. Endpoints are empty in
// production and point at a fake server in tests.
type CalendarConfig struct {
	CalendarID       string        `yaml:"calendar_id"`
	CalendarEndpoint string        `yaml:"calendar_endpoint"`
	IdentityEndpoint string        `yaml:"identity_endpoint"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	LivenessCacheTTL time.Duration `yaml:"liveness_cache_ttl"`
	TimeZone         string        `yaml:"time_zone"`
}

type ExportConfig struct {
	SheetName string `yaml:"sheet_name"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

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
	if c.API.Auth.JWTSecret == "" || c.API.Auth.JWTSecret == "CHANGE_ME" {
		return errors.New("api.auth.jwt_secret is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Calendar.TimeZone != "" {
		if _, err := time.LoadLocation(c.Calendar.TimeZone); err != nil {
			return fmt.Errorf("calendar.time_zone: %w", err)
		}
	}

	if c.Calendar.LivenessCacheTTL < 0 {
		return errors.New("calendar.liveness_cache_ttl must not be negative")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "taskcal"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 5 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}

	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = "primary"
	}
	if c.Calendar.ProbeTimeout == 0 {
		c.Calendar.ProbeTimeout = 3 * time.Second
	}
	if c.Calendar.RequestTimeout == 0 {
		c.Calendar.RequestTimeout = 5 * time.Second
	}
	if c.Exports.SheetName == "" {
		c.Exports.SheetName = "Tasks"
	}
}
