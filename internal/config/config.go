// Package config loads the radar configuration from a YAML file, an
// optional .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/ingestion"
)

// Config is the full process configuration.
type Config struct {
	Discovery discovery.Config `yaml:"discovery"`
	Solana    SolanaConfig     `yaml:"solana"`
	Sources   SourcesConfig    `yaml:"sources"`
	Storage   StorageConfig    `yaml:"storage"`
	Redis     RedisConfig      `yaml:"redis"`
	Kafka     KafkaConfig      `yaml:"kafka"`
	Publish   PublishConfig    `yaml:"publish"`
	HTTP      HTTPConfig       `yaml:"http"`
	Log       LogConfig        `yaml:"log"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// SolanaConfig configures RPC access and the chain-state guard.
type SolanaConfig struct {
	RPCURL       string `yaml:"rpc_url"`
	WSURL        string `yaml:"ws_url"`
	HeliusAPIKey string `yaml:"helius_api_key"`

	SOLPriceUSD float64       `yaml:"sol_price_usd"`
	RPCTimeout  time.Duration `yaml:"rpc_timeout"`
	MaxRetries  int           `yaml:"max_retries"`

	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerOpenFor    time.Duration `yaml:"breaker_open_for"`

	FlowSignatureLimit int `yaml:"flow_signature_limit"`
	FlowConcurrency    int `yaml:"flow_concurrency"`
	PoolRegistryLimit  int `yaml:"pool_registry_limit"`
}

// SourcesConfig enables and tunes each discovery source.
type SourcesConfig struct {
	PumpPortal PumpPortalSourceConfig `yaml:"pumpportal"`
	Logs       LogsSourceConfig       `yaml:"logs"`
	Poller     PollerSourceConfig     `yaml:"poller"`
	Firehose   FirehoseSourceConfig   `yaml:"firehose"`
}

type PumpPortalSourceConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	MaxTrackedMints int    `yaml:"max_tracked_mints"`
}

type LogsSourceConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Programs []string `yaml:"programs"`
}

type PollerSourceConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	Limit    int           `yaml:"limit"`
	Interval time.Duration `yaml:"interval"`
}

type FirehoseSourceConfig struct {
	Enabled       bool  `yaml:"enabled"`
	RatePerSecond int   `yaml:"rate_per_second"`
	Burst         int   `yaml:"burst"`
	Seed          int64 `yaml:"seed"`
	Limit         int   `yaml:"limit"`
}

// StorageConfig selects persistence backends. Empty DSNs use memory stores.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	PostgresConns int32  `yaml:"postgres_max_conns"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PublishConfig controls shortlist publication and snapshot recording.
type PublishConfig struct {
	ShortlistInterval time.Duration `yaml:"shortlist_interval"`
	ShortlistSize     int           `yaml:"shortlist_size"`
	AnnounceTTL       time.Duration `yaml:"announce_ttl"`

	RecorderBuffer        int           `yaml:"recorder_buffer"`
	RecorderBatch         int           `yaml:"recorder_batch"`
	RecorderFlushInterval time.Duration `yaml:"recorder_flush_interval"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration that runs with PumpPortal and in-memory
// stores and no external services.
func Default() Config {
	return Config{
		Discovery: discovery.DefaultConfig(),
		Solana: SolanaConfig{
			RPCURL:             "https://api.mainnet-beta.solana.com",
			SOLPriceUSD:        150,
			RPCTimeout:         10 * time.Second,
			MaxRetries:         3,
			RequestsPerSecond:  20,
			Burst:              40,
			BreakerFailures:    3,
			BreakerOpenFor:     30 * time.Second,
			FlowSignatureLimit: 200,
			FlowConcurrency:    8,
			PoolRegistryLimit:  10000,
		},
		Sources: SourcesConfig{
			PumpPortal: PumpPortalSourceConfig{
				Enabled:         true,
				URL:             ingestion.DefaultPumpPortalURL,
				MaxTrackedMints: 500,
			},
			Poller: PollerSourceConfig{
				Limit:    200,
				Interval: time.Second,
			},
			Firehose: FirehoseSourceConfig{
				RatePerSecond: 500,
				Burst:         10,
				Seed:          1,
			},
		},
		Storage: StorageConfig{PostgresConns: 8},
		Redis:   RedisConfig{Prefix: "radar"},
		Kafka:   KafkaConfig{Topic: "radar.shortlist"},
		Publish: PublishConfig{
			ShortlistInterval:     5 * time.Second,
			ShortlistSize:         10,
			AnnounceTTL:           24 * time.Hour,
			RecorderBuffer:        4096,
			RecorderBatch:         200,
			RecorderFlushInterval: time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Namespace: "solana_token_radar"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
// A .env file in the working directory, if present, is loaded first without
// overriding variables already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	var errs []error
	if err := c.Discovery.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("discovery: %w", err))
	}
	if c.Solana.RPCURL == "" {
		errs = append(errs, errors.New("solana.rpc_url is required"))
	} else if _, err := url.ParseRequestURI(c.Solana.RPCURL); err != nil {
		errs = append(errs, fmt.Errorf("solana.rpc_url: %w", err))
	}
	if c.Solana.SOLPriceUSD < 0 {
		errs = append(errs, errors.New("solana.sol_price_usd must be >= 0"))
	}
	if c.Solana.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("solana.requests_per_second must be > 0"))
	}
	if c.Sources.Logs.Enabled && c.Solana.WSURL == "" {
		errs = append(errs, errors.New("sources.logs requires solana.ws_url"))
	}
	if c.Sources.Poller.Enabled && c.Sources.Poller.BaseURL == "" {
		errs = append(errs, errors.New("sources.poller requires base_url"))
	}
	if !c.anySourceEnabled() {
		errs = append(errs, errors.New("at least one source must be enabled"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Publish.ShortlistInterval <= 0 {
		errs = append(errs, errors.New("publish.shortlist_interval must be > 0"))
	}
	if c.Publish.ShortlistSize <= 0 {
		errs = append(errs, errors.New("publish.shortlist_size must be > 0"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	return errors.Join(errs...)
}

func (c Config) anySourceEnabled() bool {
	s := c.Sources
	return s.PumpPortal.Enabled || s.Logs.Enabled || s.Poller.Enabled || s.Firehose.Enabled
}

// HeliusURLs returns RPC and WebSocket endpoints for a Helius API key.
func HeliusURLs(apiKey string) (rpcURL, wsURL string) {
	return "https://mainnet.helius-rpc.com/?api-key=" + apiKey,
		"wss://mainnet.helius-rpc.com/?api-key=" + apiKey
}

// Redacted returns a copy with credentials masked.
func (c Config) Redacted() Config {
	if c.Solana.HeliusAPIKey != "" {
		c.Solana.HeliusAPIKey = "***"
		c.Solana.RPCURL = redactURL(c.Solana.RPCURL)
		c.Solana.WSURL = redactURL(c.Solana.WSURL)
	}
	c.Storage.PostgresDSN = redactURL(c.Storage.PostgresDSN)
	c.Storage.ClickHouseDSN = redactURL(c.Storage.ClickHouseDSN)
	c.Redis.URL = redactURL(c.Redis.URL)
	return c
}

// redactURL masks the password and api-key query parameter of raw.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxx")
	}
	if q := u.Query(); q.Has("api-key") {
		q.Set("api-key", "xxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// YAML renders the configuration with credentials masked, for
// "radar config print".
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
