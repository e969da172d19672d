package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/onchain"
	"solana-token-radar/internal/queue"
)

// DefaultPumpPortalURL is the public PumpPortal data stream.
const DefaultPumpPortalURL = "wss://pumpportal.fun/api/data"

// PumpPortalConfig configures PumpPortalSource.
type PumpPortalConfig struct {
	URL string
	// SOLPriceUSD converts SOL denominated hints to USD. Zero disables hints.
	SOLPriceUSD float64
	// MaxTrackedMints caps per-mint trade subscriptions; the oldest is
	// unsubscribed beyond it.
	MaxTrackedMints int
	ReconnectMin    time.Duration
	ReconnectMax    time.Duration
	HandshakeHeader http.Header

	// Pools receives the bonding curve of every new token when set.
	Pools *onchain.PoolRegistry

	Dialer *websocket.Dialer
	Now    func() time.Time
	Logger zerolog.Logger
}

// PumpPortalSource streams new pump.fun tokens and their trades from the
// PumpPortal WebSocket API.
type PumpPortalSource struct {
	cfg    PumpPortalConfig
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	tracked *seenSet // mints with an active trade subscription
}

var _ discovery.Source = (*PumpPortalSource)(nil)

// NewPumpPortalSource creates a PumpPortal source. Zero config fields take
// defaults.
func NewPumpPortalSource(cfg PumpPortalConfig) *PumpPortalSource {
	if cfg.URL == "" {
		cfg.URL = DefaultPumpPortalURL
	}
	if cfg.MaxTrackedMints <= 0 {
		cfg.MaxTrackedMints = 500
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PumpPortalSource{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("source", domain.SourcePumpPortalWS).Logger(),
		tracked: newSeenSet(cfg.MaxTrackedMints),
	}
}

func (s *PumpPortalSource) Name() string { return domain.SourcePumpPortalWS }

// Start resets trade subscriptions left from a previous run.
func (s *PumpPortalSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = newSeenSet(s.cfg.MaxTrackedMints)
	return nil
}

// Stop closes the current connection, unblocking Run's reader.
func (s *PumpPortalSource) Stop(context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

// Run connects, subscribes and reconnects with backoff until ctx is done.
func (s *PumpPortalSource) Run(ctx context.Context, sink queue.Sink) error {
	b := newBackoff(s.cfg.ReconnectMin, s.cfg.ReconnectMax)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, s.cfg.HandshakeHeader)
		if err != nil {
			delay := b.Next()
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("pumpportal dial failed")
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		b.Reset()

		err = s.session(ctx, conn, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := b.Next()
		s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("pumpportal connection lost")
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

// session serves one connection until it fails or ctx is cancelled.
func (s *PumpPortalSource) session(ctx context.Context, conn *websocket.Conn, sink queue.Sink) error {
	s.mu.Lock()
	s.conn = conn
	resubscribe := s.tracked.Items()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(map[string]string{"method": "subscribeNewToken"}); err != nil {
		return fmt.Errorf("subscribe new tokens: %w", err)
	}
	if len(resubscribe) > 0 {
		if err := conn.WriteJSON(tradeRequest("subscribeTokenTrade", resubscribe...)); err != nil {
			return fmt.Errorf("resubscribe trades: %w", err)
		}
	}
	s.logger.Info().Int("tracked_mints", len(resubscribe)).Msg("pumpportal subscribed")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(conn, msg, sink); err != nil {
			if errors.Is(err, errWrite) {
				return err
			}
			s.logger.Debug().Err(err).Msg("pumpportal event skipped")
		}
	}
}

var errWrite = errors.New("pumpportal write failed")

func tradeRequest(method string, mints ...string) map[string]interface{} {
	return map[string]interface{}{"method": method, "keys": mints}
}

// handle routes one frame. Create events become candidates, buy/sell events
// trade updates; acknowledgements are ignored.
func (s *PumpPortalSource) handle(conn *websocket.Conn, msg []byte, sink queue.Sink) error {
	if !gjson.ValidBytes(msg) {
		return fmt.Errorf("invalid json frame")
	}
	ev := gjson.ParseBytes(msg)
	if data := ev.Get("data"); data.IsObject() {
		ev = data
	}

	mint := firstString(ev, "mint", "tokenAddress", "mintAddress")
	if mint == "" {
		return nil
	}

	kind := firstString(ev, "txType", "side", "type")
	switch side := domain.ParseSide(kind); {
	case side != "":
		return s.handleTrade(ev, mint, side, sink)
	case kind == "" || kind == "create":
		return s.handleNewToken(conn, ev, mint, sink)
	default:
		return fmt.Errorf("unknown event type %q", kind)
	}
}

func (s *PumpPortalSource) handleNewToken(conn *websocket.Conn, ev gjson.Result, mint string, sink queue.Sink) error {
	now := s.cfg.Now()
	created := parseEventTime(ev, now, "createdAt", "firstTradeAt", "timestamp")

	c := &domain.Candidate{
		Mint:        mint,
		Symbol:      firstString(ev, "symbol", "ticker"),
		Name:        firstString(ev, "name"),
		Source:      domain.SourcePumpPortalWS,
		FirstSeen:   now,
		LastUpdated: now,
		Telemetry: domain.Telemetry{
			Source:       domain.SourcePumpPortalWS,
			FirstTradeAt: &created,
			PoolAddress:  firstString(ev, "bondingCurveKey", "poolAddress", "pool"),
			DevWallet:    firstString(ev, "traderPublicKey", "creator"),
		},
	}
	if c.Name == "" {
		c.Name = c.Symbol
	}
	if usd, ok := s.solToUSD(ev.Get("vSolInBondingCurve")); ok {
		c.Telemetry.LiquidityHintUSD = &usd
	}
	if usd, ok := s.solToUSD(ev.Get("marketCapSol")); ok {
		c.MarketCapUSD = &usd
	}

	if s.cfg.Pools != nil {
		if pool, err := onchain.BondingCurvePool(mint, c.Telemetry.PoolAddress); err == nil {
			pool.RegisteredAt = now
			s.cfg.Pools.Register(mint, pool)
			c.Telemetry.PoolAddress = pool.Address
		}
	}

	sink.PushCandidate(c)
	s.logger.Debug().Str("mint", mint).Str("symbol", c.Symbol).Msg("new token")

	return s.trackTrades(conn, mint)
}

// trackTrades subscribes to trades of mint, evicting the oldest tracked mint
// when the cap is reached.
func (s *PumpPortalSource) trackTrades(conn *websocket.Conn, mint string) error {
	s.mu.Lock()
	added, evicted := s.tracked.Add(mint)
	s.mu.Unlock()
	if !added {
		return nil
	}
	if evicted != "" {
		if err := conn.WriteJSON(tradeRequest("unsubscribeTokenTrade", evicted)); err != nil {
			return fmt.Errorf("%w: %v", errWrite, err)
		}
	}
	if err := conn.WriteJSON(tradeRequest("subscribeTokenTrade", mint)); err != nil {
		return fmt.Errorf("%w: %v", errWrite, err)
	}
	return nil
}

func (s *PumpPortalSource) handleTrade(ev gjson.Result, mint string, side domain.Side, sink queue.Sink) error {
	now := s.cfg.Now()
	sink.PushTrade(domain.TradeUpdate{
		Mint:      mint,
		Trader:    firstString(ev, "traderPublicKey", "trader", "buyer", "seller"),
		Side:      side,
		Timestamp: parseEventTime(ev, now, "timestamp"),
	})
	return nil
}

func (s *PumpPortalSource) solToUSD(v gjson.Result) (float64, bool) {
	if !v.Exists() || s.cfg.SOLPriceUSD <= 0 {
		return 0, false
	}
	sol, err := decimal.NewFromString(v.String())
	if err != nil || !sol.IsPositive() {
		return 0, false
	}
	return sol.Mul(decimal.NewFromFloat(s.cfg.SOLPriceUSD)).Round(2).InexactFloat64(), true
}
