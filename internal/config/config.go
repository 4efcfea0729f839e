package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// API Defaults
	DefaultAPIBaseURL     = "https://alpinn.alwaysdata.net"
	DefaultAPITimeoutSecs = 20

	// Cooldown Defaults
	DefaultCooldownSecs = 60

	// Scheduler Defaults
	DefaultSchedulerIdleSleepSecs = 10

	// Store Defaults
	DefaultStoreSQLiteDBPath = "data/mirrorbot.db"

	// Log Defaults
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogFile       = ""
	DefaultMaxLogSizeMB  = 100
	DefaultMaxLogBackups = 3
)

type GlobalConfig struct {
	APIConfig       APIConfig       `json:"api_config,omitempty" yaml:"api_config,omitempty"`
	BotConfig       BotConfig       `json:"bot_config,omitempty" yaml:"bot_config,omitempty"`
	CooldownConfig  CooldownConfig  `json:"cooldown_config,omitempty" yaml:"cooldown_config,omitempty"`
	LogConfig       LogConfig       `json:"log_config,omitempty" yaml:"log_config,omitempty"`
	SchedulerConfig SchedulerConfig `json:"scheduler_config,omitempty" yaml:"scheduler_config,omitempty"`
	StoreConfig     StoreConfig     `json:"store_config,omitempty" yaml:"store_config,omitempty"`
}

func NewDefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		APIConfig:       NewDefaultAPIConfig(),
		BotConfig:       NewDefaultBotConfig(),
		CooldownConfig:  NewDefaultCooldownConfig(),
		LogConfig:       NewDefaultLogConfig(),
		SchedulerConfig: NewDefaultSchedulerConfig(),
		StoreConfig:     NewDefaultStoreConfig(),
	}
}

// APIConfig defines how the upstream endpoint API is reached.
type APIConfig struct {
	BaseURL     string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TimeoutSecs int    `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty" validate:"omitempty,min=1"`
}

func NewDefaultAPIConfig() APIConfig {
	return APIConfig{
		BaseURL:     DefaultAPIBaseURL,
		APIKey:      "",
		TimeoutSecs: DefaultAPITimeoutSecs,
	}
}

// BotConfig defines the Discord connection.
type BotConfig struct {
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	GuildID string `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`
}

func NewDefaultBotConfig() BotConfig {
	return BotConfig{
		Token:   "",
		GuildID: "",
	}
}

// CooldownConfig defines the shared request cadence gate.
type CooldownConfig struct {
	IntervalSecs int `json:"interval_secs,omitempty" yaml:"interval_secs,omitempty" validate:"omitempty,min=1"`
}

func NewDefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		IntervalSecs: DefaultCooldownSecs,
	}
}

type SchedulerConfig struct {
	IdleSleepSecs int `json:"idle_sleep_secs,omitempty" yaml:"idle_sleep_secs,omitempty" validate:"omitempty,min=1"`
}

func NewDefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		IdleSleepSecs: DefaultSchedulerIdleSleepSecs,
	}
}

type StoreConfig struct {
	SQLiteDBPath string `json:"sqlite_db_path,omitempty" yaml:"sqlite_db_path,omitempty" validate:"required"`
}

func NewDefaultStoreConfig() StoreConfig {
	return StoreConfig{
		SQLiteDBPath: DefaultStoreSQLiteDBPath,
	}
}

type LogConfig struct {
	LogFile       string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	LogFormat     string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=console json"`
	LogLevel      string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn error fatal"`
	MaxLogBackups int    `json:"max_log_backups,omitempty" yaml:"max_log_backups,omitempty"`
	MaxLogSizeMB  int    `json:"max_log_size_mb,omitempty" yaml:"max_log_size_mb,omitempty"`
}

func NewDefaultLogConfig() LogConfig {
	return LogConfig{
		LogFile:       DefaultLogFile,
		LogFormat:     DefaultLogFormat,
		LogLevel:      DefaultLogLevel,
		MaxLogBackups: DefaultMaxLogBackups,
		MaxLogSizeMB:  DefaultMaxLogSizeMB,
	}
}

// LoadGlobalConfig loads the configuration from a file, supporting both JSON
// and YAML formats. A missing path returns the defaults. Environment
// variables DISCORD_TOKEN and ALPINN_API_KEY override the file values so
// secrets can stay out of the config file.
func LoadGlobalConfig(providedPath string) (*GlobalConfig, error) {
	cfg := NewDefaultGlobalConfig()

	if providedPath != "" {
		data, err := os.ReadFile(providedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", providedPath, err)
		}
		if err := parseConfigContent(data, providedPath, cfg); err != nil {
			return nil, err
		}
	}

	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.BotConfig.Token = token
	}
	if apiKey := os.Getenv("ALPINN_API_KEY"); apiKey != "" {
		cfg.APIConfig.APIKey = apiKey
	}
	if baseURL := os.Getenv("ALPINN_API_BASE_URL"); baseURL != "" {
		cfg.APIConfig.BaseURL = baseURL
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseConfigContent parses the config content based on file extension
func parseConfigContent(data []byte, filePath string, cfg *GlobalConfig) error {
	ext := filepath.Ext(filePath)
	if isYAMLFile(ext) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to unmarshal YAML from '%s': %w", filePath, err)
		}
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", filePath, err)
	}
	return nil
}

// isYAMLFile checks if the file extension indicates a YAML file
func isYAMLFile(ext string) bool {
	return ext == ".yaml" || ext == ".yml"
}

// ValidateConfig validates the assembled configuration.
func ValidateConfig(cfg *GlobalConfig) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
