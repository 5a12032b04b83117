package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Settings holds the user-facing behavior switches read by the sync
// controller and the processing pipeline.
type Settings struct {
	// AutoSync controls whether scheduled cycles run at all.
	AutoSync bool `mapstructure:"auto_sync" yaml:"auto_sync"`

	// AutoApplyLabels gates the label-apply side effects; classification
	// and matching still run for statistics when this is off.
	AutoApplyLabels bool `mapstructure:"auto_apply_labels" yaml:"auto_apply_labels"`

	// AutoDraft gates reply-draft generation for Respond messages.
	AutoDraft bool `mapstructure:"auto_draft" yaml:"auto_draft"`

	// EnableTranslation allows the draft sub-pipeline to translate a
	// reply into the detected language of the original message.
	EnableTranslation bool `mapstructure:"enable_translation" yaml:"enable_translation"`

	// DefaultTone is passed to the draft generator.
	DefaultTone string `mapstructure:"default_tone" yaml:"default_tone"`

	// SyncIntervalSec is the period (and initial delay) of the scheduled
	// sync timer, in seconds.
	SyncIntervalSec int `mapstructure:"sync_interval_sec" yaml:"sync_interval_sec"`

	// MaxMessagesPerSync caps how many unread messages one cycle lists.
	MaxMessagesPerSync int `mapstructure:"max_messages_per_sync" yaml:"max_messages_per_sync"`

	// DedupCapacity bounds the processed-message-id set.
	DedupCapacity int `mapstructure:"dedup_capacity" yaml:"dedup_capacity"`
}

// ProviderConfig selects the mailbox provider and how to reach the
// auth service that holds its OAuth tokens.
type ProviderConfig struct {
	Name        string `mapstructure:"name" yaml:"name"` // "google" or "microsoft"
	AuthBaseURL string `mapstructure:"auth_base_url" yaml:"auth_base_url"`
	UserJWT     string `mapstructure:"user_jwt" yaml:"user_jwt"`
	UserID      string `mapstructure:"user_id" yaml:"user_id"`
}

// AIConfig holds settings for the AI capability clients.
type AIConfig struct {
	// RemoteBaseURL and APIKey configure the hosted messages API client.
	RemoteBaseURL string `mapstructure:"remote_base_url" yaml:"remote_base_url"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	Model         string `mapstructure:"model" yaml:"model"`
	MaxTokens     int    `mapstructure:"max_tokens" yaml:"max_tokens"`

	// LocalBaseURL points at an on-device model server. When it answers
	// the startup probe it is preferred over the remote client.
	LocalBaseURL string `mapstructure:"local_base_url" yaml:"local_base_url"`
	LocalModel   string `mapstructure:"local_model" yaml:"local_model"`
}

// Config is the top-level service configuration.
type Config struct {
	ListenAddr string         `mapstructure:"listen_addr" yaml:"listen_addr"`
	DataDir    string         `mapstructure:"data_dir" yaml:"data_dir"`
	NATSURL    string         `mapstructure:"nats_url" yaml:"nats_url"`
	JWKSURL    string         `mapstructure:"jwks_url" yaml:"jwks_url"`
	Provider   ProviderConfig `mapstructure:"provider" yaml:"provider"`
	AI         AIConfig       `mapstructure:"ai" yaml:"ai"`
	Settings   Settings       `mapstructure:"settings" yaml:"settings"`
}

// DefaultConfigPath returns the default location of the service config,
// ~/.config/email-ai/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "email-ai", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_dir", "data")
	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("provider.name", "google")
	v.SetDefault("ai.remote_base_url", "https://api.anthropic.com")
	v.SetDefault("ai.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.local_base_url", "http://127.0.0.1:11434")
	v.SetDefault("ai.local_model", "llama3.1")
	v.SetDefault("settings.auto_sync", true)
	v.SetDefault("settings.auto_apply_labels", true)
	v.SetDefault("settings.auto_draft", true)
	v.SetDefault("settings.enable_translation", false)
	v.SetDefault("settings.default_tone", "professional")
	v.SetDefault("settings.sync_interval_sec", 60)
	v.SetDefault("settings.max_messages_per_sync", 10)
	v.SetDefault("settings.dedup_capacity", 1000)
}

// Load reads configuration from the given YAML file using Viper. A
// missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
