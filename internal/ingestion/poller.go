package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/queue"
)

// Poller returns the tokens a provider currently lists as new.
type Poller interface {
	NewTokens(ctx context.Context) ([]*domain.Candidate, error)
}

// PollerFunc adapts a function to Poller.
type PollerFunc func(ctx context.Context) ([]*domain.Candidate, error)

func (f PollerFunc) NewTokens(ctx context.Context) ([]*domain.Candidate, error) { return f(ctx) }

// PollingConfig configures PollingSource.
type PollingConfig struct {
	Name       string
	Interval   time.Duration // between successful polls, default 1s
	ErrorDelay time.Duration // after a failed poll, default 5s
	SeenLimit  int
	Logger     zerolog.Logger
}

// PollingSource turns a request/response provider into a Source. Mints
// already reported are not pushed again.
type PollingSource struct {
	cfg    PollingConfig
	poller Poller
	logger zerolog.Logger

	mu   sync.Mutex
	seen *seenSet
}

var _ discovery.Source = (*PollingSource)(nil)

// NewPollingSource wraps poller.
func NewPollingSource(poller Poller, cfg PollingConfig) *PollingSource {
	if cfg.Name == "" {
		cfg.Name = "poller"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = 5 * time.Second
	}
	if cfg.SeenLimit <= 0 {
		cfg.SeenLimit = 50000
	}
	return &PollingSource{
		cfg:    cfg,
		poller: poller,
		logger: cfg.Logger.With().Str("source", cfg.Name).Logger(),
		seen:   newSeenSet(cfg.SeenLimit),
	}
}

func (s *PollingSource) Name() string { return s.cfg.Name }

func (s *PollingSource) Start(context.Context) error { return nil }

func (s *PollingSource) Stop(context.Context) error { return nil }

// Run polls until ctx is done.
func (s *PollingSource) Run(ctx context.Context, sink queue.Sink) error {
	for {
		delay := s.cfg.Interval
		if err := s.pollOnce(ctx, sink); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Dur("retry_in", s.cfg.ErrorDelay).Msg("poll failed")
			delay = s.cfg.ErrorDelay
		}
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (s *PollingSource) pollOnce(ctx context.Context, sink queue.Sink) error {
	tokens, err := s.poller.NewTokens(ctx)
	if err != nil {
		return err
	}
	pushed := 0
	for _, c := range tokens {
		if c == nil || c.Mint == "" {
			continue
		}
		s.mu.Lock()
		added, _ := s.seen.Add(c.Mint)
		s.mu.Unlock()
		if !added {
			continue
		}
		if c.Source == "" {
			c.Source = s.cfg.Name
		}
		if c.Telemetry.Source == "" {
			c.Telemetry.Source = c.Source
		}
		sink.PushCandidate(c)
		pushed++
	}
	if pushed > 0 {
		s.logger.Debug().Int("pushed", pushed).Int("listed", len(tokens)).Msg("poll")
	}
	return nil
}

// HTTPRecentPoller reads a JSON array of recently created tokens, such as the
// PumpPortal /recent endpoint.
type HTTPRecentPoller struct {
	URL    string
	Client *http.Client
	Source string
	Now    func() time.Time
}

// NewHTTPRecentPoller polls baseURL + "/recent?limit=limit".
func NewHTTPRecentPoller(baseURL string, limit int, source string) *HTTPRecentPoller {
	if limit <= 0 {
		limit = 200
	}
	return &HTTPRecentPoller{
		URL:    fmt.Sprintf("%s/recent?limit=%d", strings.TrimRight(baseURL, "/"), limit),
		Client: &http.Client{Timeout: 5 * time.Second},
		Source: source,
		Now:    time.Now,
	}
}

func (p *HTTPRecentPoller) NewTokens(ctx context.Context) ([]*domain.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch recent: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("fetch recent: invalid json")
	}

	list := gjson.ParseBytes(body)
	if data := list.Get("data"); data.IsArray() {
		list = data
	}
	now := p.Now()
	var out []*domain.Candidate
	list.ForEach(func(_, it gjson.Result) bool {
		mint := firstString(it, "mint", "tokenAddress", "mintAddress")
		if mint == "" {
			return true
		}
		first := parseEventTime(it, time.Time{}, "firstTradeAt", "createdAt", "first_trade_unix")
		c := &domain.Candidate{
			Mint:        mint,
			Symbol:      firstString(it, "symbol", "ticker"),
			Name:        firstString(it, "name"),
			Source:      p.Source,
			FirstSeen:   now,
			LastUpdated: now,
			Telemetry: domain.Telemetry{
				Source:      p.Source,
				PoolAddress: firstString(it, "poolAddress", "pool"),
			},
		}
		if !first.IsZero() {
			c.Telemetry.FirstTradeAt = &first
		}
		out = append(out, c)
		return true
	})
	return out, nil
}
