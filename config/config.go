package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds crawler configuration.
type Config struct {
	BaseURL           string
	Token             string
	UserAgent         string
	Timeout           time.Duration
	PageSize          int
	MaxPages          int // 0 fetches every page
	ReferenceCurrency string

	RateThreshold        int
	RateCooldown         time.Duration
	RateSpacing          time.Duration
	RateInitialRemaining int
	CatalogCacheSize     int

	StoreBackend string // memory, pebble, or sqlite
	StorePath    string
	Resume       bool
	Sellers      []string

	OutputFile         string
	OutputFormat       string // csv, json, or dual
	Workers            int
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int

	KafkaBrokers []string
	KafkaTopic   string
	KafkaTimeout time.Duration

	StatusAddr string
	FeedSize   int

	RecommendGenres     []string
	RecommendMaxForSale int
	RecommendMaxPremium float64

	Verbose bool
}

// DefaultConfig returns defaults matching the public API's published limits.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://api.discogs.com",
		UserAgent:         "go-scrape-discogs/1.0 +https://github.com/aluiziolira/go-scrape-discogs",
		Timeout:           15 * time.Second,
		PageSize:          100,
		MaxPages:          0,
		ReferenceCurrency: "USD",

		RateThreshold:        5,
		RateCooldown:         60 * time.Second,
		RateSpacing:          100 * time.Millisecond,
		RateInitialRemaining: 60,
		CatalogCacheSize:     8192,

		StoreBackend: "pebble",
		StorePath:    "data/crawler",

		OutputFile:         "output/recommendations.csv",
		OutputFormat:       "csv",
		Workers:            2,
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,

		KafkaTopic:   "recommendations",
		KafkaTimeout: 10 * time.Second,

		StatusAddr: "",
		FeedSize:   20,

		RecommendGenres:     []string{"Electronic", "Hip Hop"},
		RecommendMaxForSale: 10,
		RecommendMaxPremium: 0.2,
	}
}

// Load reads configuration from an optional file and DIGGER_* environment
// variables on top of DefaultConfig. An empty path skips the file.
func Load(path string) (*Config, error) {
	def := DefaultConfig()
	v := viper.New()

	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("page_size", def.PageSize)
	v.SetDefault("max_pages", def.MaxPages)
	v.SetDefault("reference_currency", def.ReferenceCurrency)
	v.SetDefault("rate.threshold", def.RateThreshold)
	v.SetDefault("rate.cooldown", def.RateCooldown)
	v.SetDefault("rate.spacing", def.RateSpacing)
	v.SetDefault("rate.initial_remaining", def.RateInitialRemaining)
	v.SetDefault("catalog_cache_size", def.CatalogCacheSize)
	v.SetDefault("store.backend", def.StoreBackend)
	v.SetDefault("store.path", def.StorePath)
	v.SetDefault("store.resume", def.Resume)
	v.SetDefault("sellers", def.Sellers)
	v.SetDefault("output.file", def.OutputFile)
	v.SetDefault("output.format", def.OutputFormat)
	v.SetDefault("pipeline.workers", def.Workers)
	v.SetDefault("pipeline.buffer_size", def.PipelineBufferSize)
	v.SetDefault("pipeline.batch_size", def.BatchSize)
	v.SetDefault("pipeline.dedupe_max_size", def.DedupeMaxSize)
	v.SetDefault("kafka.brokers", def.KafkaBrokers)
	v.SetDefault("kafka.topic", def.KafkaTopic)
	v.SetDefault("kafka.timeout", def.KafkaTimeout)
	v.SetDefault("status.addr", def.StatusAddr)
	v.SetDefault("status.feed_size", def.FeedSize)
	v.SetDefault("recommend.genres", def.RecommendGenres)
	v.SetDefault("recommend.max_for_sale", def.RecommendMaxForSale)
	v.SetDefault("recommend.max_premium", def.RecommendMaxPremium)
	v.SetDefault("verbose", def.Verbose)

	v.SetEnvPrefix("DIGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("token", "DIGGER_TOKEN", "TOKEN"); err != nil {
		return nil, fmt.Errorf("bind token env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	return &Config{
		BaseURL:           v.GetString("base_url"),
		Token:             v.GetString("token"),
		UserAgent:         v.GetString("user_agent"),
		Timeout:           v.GetDuration("timeout"),
		PageSize:          v.GetInt("page_size"),
		MaxPages:          v.GetInt("max_pages"),
		ReferenceCurrency: strings.ToUpper(v.GetString("reference_currency")),

		RateThreshold:        v.GetInt("rate.threshold"),
		RateCooldown:         v.GetDuration("rate.cooldown"),
		RateSpacing:          v.GetDuration("rate.spacing"),
		RateInitialRemaining: v.GetInt("rate.initial_remaining"),
		CatalogCacheSize:     v.GetInt("catalog_cache_size"),

		StoreBackend: strings.ToLower(v.GetString("store.backend")),
		StorePath:    v.GetString("store.path"),
		Resume:       v.GetBool("store.resume"),
		Sellers:      v.GetStringSlice("sellers"),

		OutputFile:         v.GetString("output.file"),
		OutputFormat:       strings.ToLower(v.GetString("output.format")),
		Workers:            v.GetInt("pipeline.workers"),
		PipelineBufferSize: v.GetInt("pipeline.buffer_size"),
		BatchSize:          v.GetInt("pipeline.batch_size"),
		DedupeMaxSize:      v.GetInt("pipeline.dedupe_max_size"),

		KafkaBrokers: v.GetStringSlice("kafka.brokers"),
		KafkaTopic:   v.GetString("kafka.topic"),
		KafkaTimeout: v.GetDuration("kafka.timeout"),

		StatusAddr: v.GetString("status.addr"),
		FeedSize:   v.GetInt("status.feed_size"),

		RecommendGenres:     v.GetStringSlice("recommend.genres"),
		RecommendMaxForSale: v.GetInt("recommend.max_for_sale"),
		RecommendMaxPremium: v.GetFloat64("recommend.max_premium"),

		Verbose: v.GetBool("verbose"),
	}, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		return fmt.Errorf("page size must be between 1 and 100")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if len(c.ReferenceCurrency) != 3 {
		return fmt.Errorf("reference currency must be a 3-letter code")
	}
	if c.RateThreshold < 0 {
		return fmt.Errorf("rate threshold cannot be negative")
	}
	if c.RateCooldown < 0 || c.RateSpacing < 0 {
		return fmt.Errorf("rate delays cannot be negative")
	}
	if c.RateCooldown < c.RateSpacing {
		return fmt.Errorf("rate cooldown (%s) cannot be shorter than spacing (%s)", c.RateCooldown, c.RateSpacing)
	}
	if c.CatalogCacheSize <= 0 {
		return fmt.Errorf("catalog cache size must be positive")
	}
	switch c.StoreBackend {
	case "memory":
	case "pebble", "sqlite":
		if c.StorePath == "" {
			return fmt.Errorf("store path cannot be empty for %s backend", c.StoreBackend)
		}
	default:
		return fmt.Errorf("store backend must be memory, pebble, or sqlite")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.PipelineBufferSize <= 0 || c.BatchSize <= 0 || c.DedupeMaxSize <= 0 {
		return fmt.Errorf("pipeline buffer, batch, and dedupe sizes must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic cannot be empty when brokers are set")
	}
	if c.FeedSize <= 0 {
		return fmt.Errorf("feed size must be positive")
	}
	if c.RecommendMaxForSale <= 0 {
		return fmt.Errorf("recommend max for sale must be positive")
	}
	if c.RecommendMaxPremium < 0 {
		return fmt.Errorf("recommend max premium cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
