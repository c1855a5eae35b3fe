package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is the OverDrive Media Console user agent expected by the
// acquisition and early-return endpoints.
const DefaultUserAgent = "OverDrive Media Console/3.7.0.28 iOS/10.3.3"

// Config holds all configuration for the application
type Config struct {
	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Network settings shared by all HTTP clients
	Network struct {
		UserAgent string        `yaml:"user_agent"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit time.Duration `yaml:"rate_limit"`
	} `yaml:"network"`

	// Audible catalog lookup settings
	Audible struct {
		Region   string        `yaml:"region"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"audible"`

	// File paths
	Paths struct {
		OutputRoot   string `yaml:"output_root"`
		DirFormat    string `yaml:"dir_format"`
		DatabaseFile string `yaml:"database_file"`
	} `yaml:"paths"`

	// Audio processing settings
	Process struct {
		FFmpegPath  string `yaml:"ffmpeg_path"`
		FFprobePath string `yaml:"ffprobe_path"`
		Bitrate     string `yaml:"bitrate"`
		Jobs        int    `yaml:"jobs"`
		StreamCopy  bool   `yaml:"stream_copy"`
	} `yaml:"process"`

	// Application settings
	App struct {
		DryRun bool `yaml:"dry_run"`
	} `yaml:"app"`
}

// Load loads configuration from a file (if specified) and environment variables.
// Configuration priority: 1) Environment variables, 2) Config file, 3) Defaults
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	// Set default values first
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Network.UserAgent = DefaultUserAgent
	cfg.Network.Timeout = 30 * time.Second
	cfg.Network.RateLimit = 250 * time.Millisecond
	cfg.Audible.Region = "us"
	cfg.Audible.CacheTTL = 1 * time.Hour
	cfg.Paths.OutputRoot = "."
	cfg.Paths.DirFormat = "@AUTHOR - @TITLE"
	cfg.Paths.DatabaseFile = "overdrive-tools.db"
	cfg.Process.FFmpegPath = "ffmpeg"
	cfg.Process.FFprobePath = "ffprobe"
	cfg.Process.Bitrate = "64k"
	cfg.Process.Jobs = 2

	// Load configuration from file (if present)
	if configFile != "" {
		absConfigFile, err := filepath.Abs(configFile)
		if err == nil {
			configFile = absConfigFile
		}

		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Then load from environment variables (highest priority)
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv applies OVERDRIVE_* environment overrides
func loadFromEnv(cfg *Config) {
	if v := getEnv("OVERDRIVE_LOG_LEVEL", ""); v != "" {
		cfg.Logging.Level = v
	}
	if v := getEnv("OVERDRIVE_LOG_FORMAT", ""); v != "" {
		cfg.Logging.Format = v
	}
	if v := getEnv("OVERDRIVE_USER_AGENT", ""); v != "" {
		cfg.Network.UserAgent = v
	}
	if d := getDurationFromEnv("OVERDRIVE_TIMEOUT", 0); d > 0 {
		cfg.Network.Timeout = d
	}
	if d := getDurationFromEnv("OVERDRIVE_RATE_LIMIT", 0); d > 0 {
		cfg.Network.RateLimit = d
	}
	if v := getEnv("OVERDRIVE_REGION", ""); v != "" {
		cfg.Audible.Region = strings.ToLower(v)
	}
	if v := getEnv("OVERDRIVE_OUTPUT_ROOT", ""); v != "" {
		cfg.Paths.OutputRoot = v
	}
	if v := getEnv("OVERDRIVE_DIR_FORMAT", ""); v != "" {
		cfg.Paths.DirFormat = v
	}
	if v := getEnv("OVERDRIVE_DATABASE_FILE", ""); v != "" {
		cfg.Paths.DatabaseFile = v
	}
	if v := getEnv("OVERDRIVE_FFMPEG", ""); v != "" {
		cfg.Process.FFmpegPath = v
	}
	if v := getEnv("OVERDRIVE_FFPROBE", ""); v != "" {
		cfg.Process.FFprobePath = v
	}
	if v := getEnv("OVERDRIVE_BITRATE", ""); v != "" {
		cfg.Process.Bitrate = v
	}
	if n := getIntFromEnv("OVERDRIVE_JOBS", 0); n > 0 {
		cfg.Process.Jobs = n
	}
	if v, set := os.LookupEnv("OVERDRIVE_DRY_RUN"); set {
		cfg.App.DryRun = strings.ToLower(v) == "true"
	}
}

// Validate checks the configuration for obviously broken values
func (c *Config) Validate() error {
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network timeout must be positive, got %s", c.Network.Timeout)
	}
	if c.Process.Jobs <= 0 {
		return fmt.Errorf("process jobs must be positive, got %d", c.Process.Jobs)
	}
	if !strings.Contains(c.Paths.DirFormat, "@TITLE") {
		return fmt.Errorf("dir_format must contain @TITLE, got %q", c.Paths.DirFormat)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDurationFromEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntFromEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
