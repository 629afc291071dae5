// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Apify     ApifyConfig     `mapstructure:"apify"`
	Local     LocalCrawlConfig `mapstructure:"local_crawl"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlConfig governs the crawl coordinator.
type CrawlConfig struct {
	// Provider selects the crawl backend: "apify" or "local".
	Provider            string `mapstructure:"provider"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	MaxContentChars     int    `mapstructure:"max_content_chars"`
}

// ApifyConfig holds credentials for the remote crawl actor.
type ApifyConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
	ActorID string `mapstructure:"actor_id"`
}

// LocalCrawlConfig tunes the in-process crawl backend.
type LocalCrawlConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// CacheConfig controls the page-context cache.
type CacheConfig struct {
	Path                  string `mapstructure:"path"`
	TTLSeconds            int    `mapstructure:"ttl_seconds"`
	CrawlStalenessSeconds int    `mapstructure:"crawl_staleness_seconds"`
}

// CatalogConfig controls product persistence.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// EmbeddingConfig configures the embedding provider and the text builder.
type EmbeddingConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimension      int    `mapstructure:"dimension"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	MaxKeywords    int    `mapstructure:"max_keywords"`
	MaxContentChars int   `mapstructure:"max_content_chars"`
	MaxHeadings    int    `mapstructure:"max_headings"`
}

// MatcherConfig carries the empirically chosen matcher constants. They are
// configuration, not code, so they can be tuned without touching the
// algorithm.
type MatcherConfig struct {
	DominanceThreshold float64 `mapstructure:"dominance_threshold"`
	CategoryBoost      float64 `mapstructure:"category_boost"`
	CategoryPenalty    float64 `mapstructure:"category_penalty"`
	DefaultTopK        int     `mapstructure:"default_top_k"`
	MinScore           float64 `mapstructure:"min_score"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADCONTEXT")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawl.provider", "apify")
	v.SetDefault("crawl.poll_interval_seconds", 5)
	v.SetDefault("crawl.timeout_seconds", 300)
	v.SetDefault("crawl.max_content_chars", 2000)
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.actor_id", "tropical_lease~web-context-extractor")
	v.SetDefault("local_crawl.user_agent", "adcontext-bot/0.1")
	v.SetDefault("local_crawl.rps", 1.0)
	v.SetDefault("local_crawl.burst", 1)
	v.SetDefault("local_crawl.timeout_seconds", 15)
	v.SetDefault("cache.path", "data/page_context.json")
	v.SetDefault("cache.ttl_seconds", 86400)
	v.SetDefault("cache.crawl_staleness_seconds", 300)
	v.SetDefault("catalog.path", "data/products.json")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.max_keywords", 20)
	v.SetDefault("embedding.max_content_chars", 1000)
	v.SetDefault("embedding.max_headings", 10)
	v.SetDefault("matcher.dominance_threshold", 0.66)
	v.SetDefault("matcher.category_boost", 1.15)
	v.SetDefault("matcher.category_penalty", 0.70)
	v.SetDefault("matcher.default_top_k", 5)
	v.SetDefault("matcher.min_score", 0.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Crawl.Provider {
	case "apify", "local":
	default:
		return fmt.Errorf("crawl.provider must be \"apify\" or \"local\", got %q", c.Crawl.Provider)
	}
	if c.Crawl.PollIntervalSeconds <= 0 {
		return fmt.Errorf("crawl.poll_interval_seconds must be > 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Crawl.MaxContentChars <= 0 {
		return fmt.Errorf("crawl.max_content_chars must be > 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be > 0")
	}
	if c.Matcher.DominanceThreshold <= 0 || c.Matcher.DominanceThreshold > 1 {
		return fmt.Errorf("matcher.dominance_threshold must be in (0, 1]")
	}
	if c.Matcher.CategoryBoost < 1 {
		return fmt.Errorf("matcher.category_boost must be >= 1")
	}
	if c.Matcher.CategoryPenalty <= 0 || c.Matcher.CategoryPenalty > 1 {
		return fmt.Errorf("matcher.category_penalty must be in (0, 1]")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// PollInterval converts the crawl poll interval config into a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Crawl.PollIntervalSeconds) * time.Second
}

// CrawlTimeout is the overall budget for one crawl-and-wait.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawl.TimeoutSeconds) * time.Second
}

// CacheTTL is the page-context freshness window.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// CrawlStaleness bounds how long an entry may claim "crawling" before the
// flag is ignored.
func (c Config) CrawlStaleness() time.Duration {
	return time.Duration(c.Cache.CrawlStalenessSeconds) * time.Second
}
