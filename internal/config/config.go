// Package config provides configuration management for vidmorph using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultReadTimeout     = 10 * time.Minute
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxUploadSize   = 500 * 1024 * 1024 // 500MB
	defaultRetentionWindow = 15 * time.Minute
	defaultSweepInterval   = 5 * time.Minute
	defaultMaxArtifactAge  = time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retention RetentionConfig `mapstructure:"retention"`
	Convert   ConvertConfig   `mapstructure:"convert"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// ReadTimeout bounds the entire request read, including uploads, so it
	// must cover the largest accepted file on a slow link.
	ReadTimeout Duration `mapstructure:"read_timeout"`
	// WriteTimeout is left zero by default: SSE subscribers hold their
	// response open indefinitely.
	WriteTimeout    Duration `mapstructure:"write_timeout"`
	IdleTimeout     Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
}

// StorageConfig holds file storage configuration.
// Uploads and converted outputs live in two flat directories under BaseDir.
type StorageConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	InputsDir  string `mapstructure:"inputs_dir"`
	OutputsDir string `mapstructure:"outputs_dir"`
	// MaxUploadSize is the ceiling for a single uploaded file.
	// Supports human-readable values like "500MB", "1GB", or raw byte counts.
	MaxUploadSize ByteSize `mapstructure:"max_upload_size"`
}

// RetentionConfig holds artifact retention policy.
type RetentionConfig struct {
	// Window is how long artifacts remain downloadable after a job reaches a
	// terminal phase before scheduled deletion fires.
	Window Duration `mapstructure:"window"`
	// SweepInterval is how often the backstop sweep scans the storage
	// directories for aged files.
	SweepInterval Duration `mapstructure:"sweep_interval"`
	// MaxAge is the ceiling age for the sweep: any artifact older than this
	// is deleted regardless of in-memory job state.
	MaxAge Duration `mapstructure:"max_age"`
}

// ConvertConfig holds job orchestration configuration.
type ConvertConfig struct {
	// JobTimeout fails a job that produces no terminal event within the
	// given duration. Zero disables the timeout.
	JobTimeout Duration `mapstructure:"job_timeout"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = $PATH lookup)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = $PATH lookup)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VIDMORPH_ and use underscores for
// nesting. Example: VIDMORPH_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vidmorph")
		v.AddConfigPath("$HOME/.vidmorph")
	}

	v.SetEnvPrefix("VIDMORPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.inputs_dir", "uploads")
	v.SetDefault("storage.outputs_dir", "converted")
	v.SetDefault("storage.max_upload_size", defaultMaxUploadSize)

	v.SetDefault("retention.window", defaultRetentionWindow)
	v.SetDefault("retention.sweep_interval", defaultSweepInterval)
	v.SetDefault("retention.max_age", defaultMaxArtifactAge)

	v.SetDefault("convert.job_timeout", time.Duration(0))

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	if c.Retention.Window.Duration() <= 0 {
		return fmt.Errorf("retention.window must be positive")
	}
	if c.Retention.SweepInterval.Duration() <= 0 {
		return fmt.Errorf("retention.sweep_interval must be positive")
	}
	if c.Retention.MaxAge.Duration() < c.Retention.Window.Duration() {
		return fmt.Errorf("retention.max_age must be at least retention.window")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// InputsPath returns the full path to the uploads directory.
func (c *StorageConfig) InputsPath() string {
	return filepath.Join(c.BaseDir, c.InputsDir)
}

// OutputsPath returns the full path to the converted-outputs directory.
func (c *StorageConfig) OutputsPath() string {
	return filepath.Join(c.BaseDir, c.OutputsDir)
}
