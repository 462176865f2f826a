// Package config loads the tally configuration file and resolves
// credentials.
//
// The file is TOML. Every job section is optional: an absent section
// means the job is not configured and is skipped entirely.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// DefaultFile is the config file used when --config is not given.
const DefaultFile = "tally.toml"

// Config is the full tally configuration.
type Config struct {
	BeeminderUsername string `mapstructure:"beeminder_username"`
	BeeminderKey      Key    `mapstructure:"beeminder_key"`

	Marvin     *MarvinConfig     `mapstructure:"marvin"`
	Watched    *WatchedConfig    `mapstructure:"watched"`
	Screentime *ScreentimeConfig `mapstructure:"screentime"`
	Fatebook   *FatebookConfig   `mapstructure:"fatebook"`
	Focusmate  *FocusmateConfig  `mapstructure:"focusmate"`
	GitHub     *GitHubConfig     `mapstructure:"github"`
}

// MarvinConfig configures the Amazing Marvin task-completion job.
type MarvinConfig struct {
	URI          Key    `mapstructure:"uri"`
	Username     Key    `mapstructure:"username"`
	Password     Key    `mapstructure:"password"`
	DatabaseName Key    `mapstructure:"database_name"`
	Category     string `mapstructure:"category"`
	Goal         string `mapstructure:"goal"`
}

// WatchedConfig configures the aggregated watched-titles job.
type WatchedConfig struct {
	BaseURL         string  `mapstructure:"activity_watch_base_url"`
	WindowBucket    string  `mapstructure:"window_bucket"`
	Goal            string  `mapstructure:"goal"`
	LookbackDays    int     `mapstructure:"lookback_days"`
	MinVideoSeconds float64 `mapstructure:"min_video_duration_seconds"`
	MaxDatapoints   int     `mapstructure:"max_datapoints"`
}

// ScreentimeConfig configures the LLM-judged screen-cleanliness job.
type ScreentimeConfig struct {
	BaseURL          string  `mapstructure:"activity_watch_base_url"`
	WindowBucket     string  `mapstructure:"window_bucket"`
	Goal             string  `mapstructure:"goal"`
	LookbackDays     int     `mapstructure:"lookback_days"`
	AnthropicKey     Key     `mapstructure:"anthropic_key"`
	Model            string  `mapstructure:"model"`
	MinWindowSeconds float64 `mapstructure:"min_window_duration_seconds"`
	PromptTemplate   string  `mapstructure:"prompt_template"`
}

// FatebookConfig configures the forecast-question job.
type FatebookConfig struct {
	Key  Key    `mapstructure:"key"`
	Goal string `mapstructure:"goal"`
}

// FocusmateConfig configures the session-completion job.
type FocusmateConfig struct {
	Key      Key      `mapstructure:"key"`
	Goal     string   `mapstructure:"goal"`
	AutoTags []string `mapstructure:"auto_tags"`
}

// GitHubConfig configures the commit-history job. Token is optional;
// without it, only public activity is visible.
type GitHubConfig struct {
	Token    *Key   `mapstructure:"token"`
	Goal     string `mapstructure:"goal"`
	Username string `mapstructure:"username"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BeeminderUsername == "" {
		return errors.New("beeminder_username is required")
	}
	if c.BeeminderKey.IsZero() {
		return errors.New("beeminder_key is required")
	}
	if c.Fatebook != nil && c.Fatebook.Goal == "" {
		c.Fatebook.Goal = "fatebook"
	}
	if c.Screentime != nil && c.Screentime.PromptTemplate == "" {
		return errors.New("screentime.prompt_template is required")
	}
	if c.Marvin != nil && c.Marvin.Goal == "" {
		return errors.New("marvin.goal is required")
	}
	if c.Watched != nil && c.Watched.Goal == "" {
		return errors.New("watched.goal is required")
	}
	if c.Screentime != nil && c.Screentime.Goal == "" {
		return errors.New("screentime.goal is required")
	}
	if c.Focusmate != nil && c.Focusmate.Goal == "" {
		return errors.New("focusmate.goal is required")
	}
	if c.GitHub != nil && c.GitHub.Goal == "" {
		return errors.New("github.goal is required")
	}
	return nil
}
