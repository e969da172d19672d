package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(key string) (string, bool)

// env reads overrides through lookup and collects parse errors.
type env struct {
	lookup lookupFunc
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *env) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *env) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = n
	}
}

// seconds accepts either an integer number of seconds or a Go duration.
func (e *env) seconds(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = d
}

func (e *env) csv(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = splitCSV(v)
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyEnv overlays environment variables on cfg. DISCOVERY_* names tune the
// engine; RADAR_* names cover everything else.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := &env{lookup: lookup}

	d := &cfg.Discovery
	e.float("DISCOVERY_SCORE_THRESHOLD", &d.ScoreThreshold)
	e.float("DISCOVERY_MIN_LIQ_USD", &d.MinLiquidityUSD)
	e.float("DISCOVERY_MIN_LIQ_FRESH_USD", &d.MinLiquidityFreshUSD)
	e.float("DISCOVERY_MIN_SCORE_CAP_DELTA", &d.MinScoreCapDelta)
	e.float("DISCOVERY_MAX_TOP10_SHARE", &d.MaxTop10Share)
	e.float("DISCOVERY_MAX_TOP10_SHARE_FRESH", &d.MaxTop10ShareFresh)
	e.seconds("DISCOVERY_CANDIDATE_TTL_SEC", &d.CandidateTTL)
	e.integer("DISCOVERY_MAX_QUEUE", &d.MaxQueue)
	e.integer("DISCOVERY_MAX_CANDIDATES", &d.MaxCandidates)

	s := &cfg.Solana
	if key, ok := e.get("HELIUS_API_KEY"); ok {
		s.HeliusAPIKey = key
	}
	if s.HeliusAPIKey != "" {
		s.RPCURL, s.WSURL = HeliusURLs(s.HeliusAPIKey)
	}
	e.str("HELIUS_WS_URL", &s.WSURL)
	e.str("RADAR_SOLANA_RPC_URL", &s.RPCURL)
	e.str("RADAR_SOLANA_WS_URL", &s.WSURL)
	e.float("RADAR_SOL_PRICE_USD", &s.SOLPriceUSD)
	e.float("RADAR_RPC_REQUESTS_PER_SECOND", &s.RequestsPerSecond)

	if v, ok := e.get("RADAR_SOURCES"); ok {
		if err := enableSources(&cfg.Sources, splitCSV(v)); err != nil {
			e.errs = append(e.errs, err)
		}
	}
	e.str("RADAR_PUMPPORTAL_URL", &cfg.Sources.PumpPortal.URL)
	e.str("RADAR_POLLER_BASE_URL", &cfg.Sources.Poller.BaseURL)

	e.str("RADAR_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	e.str("RADAR_CLICKHOUSE_DSN", &cfg.Storage.ClickHouseDSN)
	e.str("RADAR_REDIS_URL", &cfg.Redis.URL)
	e.csv("RADAR_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	e.str("RADAR_KAFKA_TOPIC", &cfg.Kafka.Topic)

	e.str("RADAR_HTTP_ADDR", &cfg.HTTP.Addr)
	e.str("RADAR_LOG_LEVEL", &cfg.Log.Level)
	e.str("RADAR_LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(e.errs...)
}

// enableSources turns on exactly the named sources.
func enableSources(s *SourcesConfig, names []string) error {
	s.PumpPortal.Enabled = false
	s.Logs.Enabled = false
	s.Poller.Enabled = false
	s.Firehose.Enabled = false
	for _, name := range names {
		switch strings.ToLower(name) {
		case "pumpportal":
			s.PumpPortal.Enabled = true
		case "logs", "helius":
			s.Logs.Enabled = true
		case "poller":
			s.Poller.Enabled = true
		case "firehose":
			s.Firehose.Enabled = true
		default:
			return fmt.Errorf("invalid RADAR_SOURCES: unknown source %q", name)
		}
	}
	return nil
}
