// Package config loads the bot configuration from the environment and an
// optional config file via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config captures every setting of the bot and the admin CLI. Keys match the
// environment variable names in lower case.
type Config struct {
	BotToken         string        `mapstructure:"bot_token"`
	AdminID          int64         `mapstructure:"admin_id"`
	Store            string        `mapstructure:"store"`
	DBPath           string        `mapstructure:"db_path"`
	KVURL            string        `mapstructure:"kv_url"`
	DeepSeekAPIKey   string        `mapstructure:"deepseek_api_key"`
	DeepSeekBaseURL  string        `mapstructure:"deepseek_base_url"`
	DeepSeekModel    string        `mapstructure:"deepseek_model"`
	LLMTimeout       time.Duration `mapstructure:"llm_timeout"`
	LLMMaxRetries    int           `mapstructure:"llm_max_retries"`
	HTTPAddr         string        `mapstructure:"http_addr"`
	WebhookURL       string        `mapstructure:"webhook_url"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
	LogDevelopment   bool          `mapstructure:"log_development"`
}

// Load builds a Config from defaults, the optional file at path and the
// environment, in increasing priority.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	return cfg, nil
}

// Every key needs a default so AutomaticEnv picks it up during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot_token", "")
	v.SetDefault("admin_id", 0)
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("db_path", "coach.db")
	v.SetDefault("kv_url", "")
	v.SetDefault("deepseek_api_key", "")
	v.SetDefault("deepseek_base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek_model", "deepseek-chat")
	v.SetDefault("llm_timeout", "60s")
	v.SetDefault("llm_max_retries", 3)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("webhook_url", "")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("reminder_interval", "24h")
	v.SetDefault("log_development", false)
}

// Validate checks the settings the bot needs to start.
func (c Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("bot_token is required")
	}
	if c.AdminID < 0 {
		return fmt.Errorf("admin_id must be >= 0")
	}
	return c.ValidateStore()
}

// ValidateStore checks only the storage settings, which is all the admin CLI
// needs.
func (c Config) ValidateStore() error {
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db_path must be set when store is %s", StoreSQLite)
		}
	case StoreRedis:
		if c.KVURL == "" {
			return fmt.Errorf("kv_url must be set when store is %s", StoreRedis)
		}
	default:
		return fmt.Errorf("store must be %q or %q, got %q", StoreSQLite, StoreRedis, c.Store)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("llm_timeout must be > 0")
	}
	if c.LLMMaxRetries <= 0 {
		return fmt.Errorf("llm_max_retries must be > 0")
	}
	if c.ReminderInterval < 0 {
		return fmt.Errorf("reminder_interval must be >= 0")
	}
	return nil
}

// UseWebhook reports whether updates arrive over the HTTP webhook instead
// of long polling.
func (c Config) UseWebhook() bool {
	return c.WebhookURL != ""
}
