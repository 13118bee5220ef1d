package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/everstacklabs/depmerge/internal/errkind"
)

// Config holds all configuration for depmerge.
type Config struct {
	Threshold      float64       `mapstructure:"threshold"`
	OnlyAutomation bool          `mapstructure:"only_automation"`
	DryRun         bool          `mapstructure:"dry_run"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ListLimit      int           `mapstructure:"list_limit"`
	Output         string        `mapstructure:"output"`
	LogLevel       string        `mapstructure:"log_level"`
	Weights        WeightsConfig `mapstructure:"weights"`
	GitHub         GitHubConfig  `mapstructure:"github"`
	Gerrit         GerritConfig  `mapstructure:"gerrit"`
}

// WeightsConfig tunes the similarity signals.
type WeightsConfig struct {
	Title  float64 `mapstructure:"title"`
	Files  float64 `mapstructure:"files"`
	Body   float64 `mapstructure:"body"`
	Author float64 `mapstructure:"author"`
}

// GitHubConfig holds GitHub-related settings.
type GitHubConfig struct {
	Token       string  `mapstructure:"token"`
	BaseURL     string  `mapstructure:"base_url"`
	MergeMethod string  `mapstructure:"merge_method"`
	RateLimit   float64 `mapstructure:"rate_limit"`
}

// GerritConfig holds Gerrit-related settings.
type GerritConfig struct {
	Username  string  `mapstructure:"username"`
	Password  string  `mapstructure:"password"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// Load reads configuration from file, environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("threshold", 0.8)
	v.SetDefault("only_automation", true)
	v.SetDefault("dry_run", false)
	v.SetDefault("max_concurrency", 5)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("list_limit", 200)
	v.SetDefault("output", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("weights.title", 0.4)
	v.SetDefault("weights.files", 0.3)
	v.SetDefault("weights.body", 0.2)
	v.SetDefault("weights.author", 0.1)
	v.SetDefault("github.merge_method", "merge")
	v.SetDefault("github.rate_limit", 5.0)
	v.SetDefault("gerrit.rate_limit", 5.0)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/depmerge")
	}

	// Environment variables
	v.SetEnvPrefix("DEPMERGE")
	v.AutomaticEnv()

	// Bind specific env vars
	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("gerrit.username", "GERRIT_HTTP_USER")
	_ = v.BindEnv("gerrit.password", "GERRIT_HTTP_PASSWORD")
	_ = v.BindEnv("threshold", "DEPMERGE_THRESHOLD")
	_ = v.BindEnv("max_concurrency", "DEPMERGE_MAX_CONCURRENCY")
	_ = v.BindEnv("log_level", "DEPMERGE_LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errkind.Wrap(errkind.Config, "reading config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errkind.Wrap(errkind.Config, "unmarshaling config", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return errkind.New(errkind.Config, fmt.Sprintf("threshold must be in [0, 1], got %v", c.Threshold))
	}
	if c.MaxConcurrency < 1 {
		return errkind.New(errkind.Config, "max_concurrency must be positive")
	}
	if c.MaxAttempts < 1 {
		return errkind.New(errkind.Config, "max_attempts must be positive")
	}
	switch c.Output {
	case "text", "json", "yaml":
	default:
		return errkind.New(errkind.Config, fmt.Sprintf("output must be text, json, or yaml, got %q", c.Output))
	}
	switch c.GitHub.MergeMethod {
	case "merge", "squash", "rebase":
	default:
		return errkind.New(errkind.Config, fmt.Sprintf("github.merge_method must be merge, squash, or rebase, got %q", c.GitHub.MergeMethod))
	}
	return nil
}
