package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/artpar/lambdaship/internal/core/deployment"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Deploy    DeployConfig    `mapstructure:"deploy"`
	Install   InstallConfig   `mapstructure:"install"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DeployConfig holds what to deploy and where.
type DeployConfig struct {
	Functions           []string `mapstructure:"functions"`
	Environments        []string `mapstructure:"environments"`
	Prefix              string   `mapstructure:"prefix"`
	Region              string   `mapstructure:"region"`
	Handler             string   `mapstructure:"handler"`
	Role                string   `mapstructure:"role"`
	Runtime             string   `mapstructure:"runtime"`
	Concurrency         int      `mapstructure:"concurrency"`
	FunctionsRoot       string   `mapstructure:"functions_root"`
	FunctionDirTemplate string   `mapstructure:"function_dir_template"`
	MetaPathTemplate    string   `mapstructure:"meta_path_template"`
	DescriptionTemplate string   `mapstructure:"description_template"`
	TempDir             string   `mapstructure:"temp_dir"` // Parent of the run's archive directory; empty uses the system default
	DryRun              bool     `mapstructure:"dry_run"`
}

// InstallConfig holds the dependency installer run in each function directory.
type InstallConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Env     []string `mapstructure:"env"` // KEY=VALUE entries added to the inherited environment
}

// AWSConfig holds credentials and client settings for the Lambda API.
// Empty credentials fall back to the SDK default chain.
type AWSConfig struct {
	Profile         string        `mapstructure:"profile"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	SessionToken    string        `mapstructure:"session_token"`
	Endpoint        string        `mapstructure:"endpoint"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout"`
}

// ArtifactsConfig holds S3 staging of archives. Staging is enabled when
// Bucket is set.
type ArtifactsConfig struct {
	Bucket    string `mapstructure:"bucket"`
	KeyPrefix string `mapstructure:"key_prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// JournalConfig holds the run history database.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// MetricsConfig holds the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// =============================================================================
// Config Loading
// =============================================================================

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"env":            "deploy.environments",
	"prefix":         "deploy.prefix",
	"region":         "deploy.region",
	"role":           "deploy.role",
	"concurrency":    "deploy.concurrency",
	"functions-root": "deploy.functions_root",
	"dry-run":        "deploy.dry_run",
}

// LoadConfig loads configuration from file, environment and flags, in
// increasing order of precedence. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("deploy.functions", []string{})
	v.SetDefault("deploy.environments", []string{})
	v.SetDefault("deploy.prefix", "")
	v.SetDefault("deploy.region", deployment.DefaultRegion)
	v.SetDefault("deploy.handler", deployment.DefaultHandler)
	v.SetDefault("deploy.role", "")
	v.SetDefault("deploy.runtime", deployment.DefaultRuntime)
	v.SetDefault("deploy.concurrency", deployment.DefaultConcurrency)
	v.SetDefault("deploy.functions_root", deployment.DefaultFunctionsRoot)
	v.SetDefault("deploy.function_dir_template", deployment.DefaultFunctionDirTemplate)
	v.SetDefault("deploy.meta_path_template", deployment.DefaultMetaPathTemplate)
	v.SetDefault("deploy.description_template", deployment.DefaultDescriptionTemplate)
	v.SetDefault("deploy.temp_dir", "")
	v.SetDefault("deploy.dry_run", false)
	v.SetDefault("install.command", "npm")
	v.SetDefault("install.args", []string{"install", "--production"})
	v.SetDefault("install.env", []string{})
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.session_token", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.wait_timeout", "2m")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.key_prefix", "lambdaship/")
	v.SetDefault("artifacts.endpoint", "")
	v.SetDefault("artifacts.access_key", "")
	v.SetDefault("artifacts.secret_key", "")
	v.SetDefault("artifacts.region", "")
	v.SetDefault("artifacts.use_ssl", true)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.dsn", ".lambdaship/journal.db")
	v.SetDefault("metrics.textfile", "")

	// A file named on the command line must exist and parse
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("LAMBDASHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values that the defaults cannot stand in for. Unset keys
// already carry their defaults, so a zero concurrency here was set
// explicitly.
func (c *Config) Validate() error {
	if c.Deploy.Concurrency < 1 {
		return fmt.Errorf("deploy.concurrency must be a positive integer, got %d", c.Deploy.Concurrency)
	}
	return nil
}

// DeploymentOptions converts the deploy section to pipeline options.
func (c *Config) DeploymentOptions() deployment.Options {
	return deployment.Options{
		Environments:        c.Deploy.Environments,
		Region:              c.Deploy.Region,
		Handler:             c.Deploy.Handler,
		Role:                c.Deploy.Role,
		Prefix:              c.Deploy.Prefix,
		Runtime:             c.Deploy.Runtime,
		Concurrency:         c.Deploy.Concurrency,
		FunctionsRoot:       c.Deploy.FunctionsRoot,
		FunctionDirTemplate: c.Deploy.FunctionDirTemplate,
		MetaPathTemplate:    c.Deploy.MetaPathTemplate,
		DescriptionTemplate: c.Deploy.DescriptionTemplate,
	}
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format that
// writes to w.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
