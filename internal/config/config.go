// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type EndpointConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ProvidersConfig struct {
	Primary        string         `mapstructure:"primary"`
	Together       EndpointConfig `mapstructure:"together"`
	OpenRouter     EndpointConfig `mapstructure:"openrouter"`
	ErrorCooldown  time.Duration  `mapstructure:"error_cooldown"`
	ModelTablePath string         `mapstructure:"model_table_path"`
	// RequestsPerSecond paces all LLM calls through one limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type SearchConfig struct {
	TavilyAPIKey string `mapstructure:"tavily_api_key"`
	BraveAPIKey  string `mapstructure:"brave_api_key"`
	JinaAPIKey   string `mapstructure:"jina_api_key"`
	// BraveRequestsPerSecond spaces Brave calls; the free tier allows 1/s.
	BraveRequestsPerSecond float64 `mapstructure:"brave_requests_per_second"`
}

type ResearchConfig struct {
	Budget      int           `mapstructure:"budget"`
	MaxQueries  int           `mapstructure:"max_queries"`
	MaxSources  int           `mapstructure:"max_sources"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	RunDeadline time.Duration `mapstructure:"run_deadline"`
	// DailyQuota is the per-user run limit per rolling 24h; 0 disables it.
	DailyQuota int `mapstructure:"daily_quota"`
}

type AssetsConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type Config struct {
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Search    SearchConfig    `mapstructure:"search"`
	Research  ResearchConfig  `mapstructure:"research"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Load reads the file at CONFIG_PATH (if set), applies DEEPRESEARCH_*
// environment overrides, and clamps research bounds.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.clamp()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.dsn", "postgres://localhost:5432/deepresearch?sslmode=disable")

	v.SetDefault("providers.primary", "together")
	v.SetDefault("providers.together.base_url", "https://api.together.xyz/v1")
	v.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("providers.error_cooldown", 30*time.Second)
	v.SetDefault("providers.requests_per_second", 1.0)

	v.SetDefault("search.brave_requests_per_second", 1.0)

	v.SetDefault("research.budget", 2)
	v.SetDefault("research.max_queries", 5)
	v.SetDefault("research.max_sources", 25)
	v.SetDefault("research.max_tokens", 8192)
	v.SetDefault("research.run_deadline", 15*time.Minute)
	v.SetDefault("research.daily_quota", 0)

	v.SetDefault("assets.dir", "public/research-covers")
	v.SetDefault("assets.base_url", "/research-covers")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
}

// clamp forces the research knobs into their supported ranges.
func (c *Config) clamp() {
	if c.Research.Budget < 0 {
		c.Research.Budget = 0
	}
	if c.Research.Budget > 5 {
		c.Research.Budget = 5
	}
	if c.Research.MaxQueries < 1 {
		c.Research.MaxQueries = 1
	}
	if c.Research.MaxQueries > 5 {
		c.Research.MaxQueries = 5
	}
	if c.Research.MaxTokens <= 0 {
		c.Research.MaxTokens = 8192
	}
	if c.Research.RunDeadline <= 0 {
		c.Research.RunDeadline = 15 * time.Minute
	}
}
