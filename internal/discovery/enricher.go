package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/observability"
)

// ChainStateClient is the read-only chain-state lookup surface used for
// enrichment. Implementations bound their own latency; the enricher never
// retries.
type ChainStateClient interface {
	MintInfo(ctx context.Context, mint string) (domain.MintInfo, error)
	LPInfo(ctx context.Context, mint string) (domain.LPInfo, error)
	HolderDistribution(ctx context.Context, mint string, topN int) (domain.Distribution, error)
	FlowStats(ctx context.Context, mint string, window time.Duration) (domain.FlowStats, error)
}

// MetadataClient resolves display metadata for a mint.
type MetadataClient interface {
	TokenMetadata(ctx context.Context, mint string) (symbol, name string, err error)
}

// Enrichment operation names used in telemetry and metrics.
const (
	OpMintInfo     = "mint_info"
	OpLPInfo       = "lp_info"
	OpDistribution = "holder_distribution"
	OpFlowStats    = "flow_stats"
	OpClient       = "client"
)

var errClientUnavailable = errors.New("chain-state client unavailable")

// Enricher fills market and activity fields of a candidate from the
// chain-state client and degrades to hints and defaults on failure.
type Enricher struct {
	client   ChainStateClient
	metadata MetadataClient
	cfg      Config
	metrics  observability.Metrics
	logger   zerolog.Logger
}

// NewEnricher creates an enricher. client and metadata may be nil.
func NewEnricher(client ChainStateClient, metadata MetadataClient, cfg Config, metrics observability.Metrics, logger zerolog.Logger) *Enricher {
	if metrics == nil {
		metrics = observability.Nop{}
	}
	return &Enricher{client: client, metadata: metadata, cfg: cfg, metrics: metrics, logger: logger}
}

type lookupResult struct {
	mint    domain.MintInfo
	lp      domain.LPInfo
	dist    domain.Distribution
	flow    domain.FlowStats
	mintErr error
	lpErr   error
	distErr error
	flowErr error
}

// Enrich updates c in place. trades are the trade-book counters for c.Mint,
// haveTrades is false when the book has none. Enrich never fails.
func (e *Enricher) Enrich(ctx context.Context, c *domain.Candidate, trades TradeCounts, haveTrades bool) {
	c.Telemetry.EnrichmentErrors = nil

	var res lookupResult
	if e.client == nil {
		res.mintErr, res.lpErr, res.distErr, res.flowErr = errClientUnavailable, errClientUnavailable, errClientUnavailable, errClientUnavailable
		c.Telemetry.EnrichmentErrors = append(c.Telemetry.EnrichmentErrors, OpClient+": "+errClientUnavailable.Error())
		e.metrics.EnrichmentFailure(OpClient)
	} else {
		res = e.lookup(ctx, c.Mint)
		e.noteFailure(c, OpMintInfo, res.mintErr)
		e.noteFailure(c, OpLPInfo, res.lpErr)
		e.noteFailure(c, OpDistribution, res.distErr)
		e.noteFailure(c, OpFlowStats, res.flowErr)
	}

	if res.mintErr == nil {
		c.MintAuthorityRenounced = res.mint.RenouncedMint
		c.FreezeAuthorityRenounced = res.mint.RenouncedFreeze
		c.Decimals = res.mint.Decimals
	}
	if res.lpErr == nil {
		c.LPLocked = res.lp.LockedOrBurned
		c.LiquidityUSD = res.lp.LiquidityUSD
		if res.lp.PoolAddress != "" {
			c.Telemetry.PoolAddress = res.lp.PoolAddress
		}
	}
	if res.distErr == nil {
		c.Top10HolderShare = domain.Ptr(res.dist.TopShare)
	}
	if res.flowErr == nil {
		c.UniqueBuyers = res.flow.UniqueBuyers
		c.Buys = res.flow.Buys
		c.Sells = res.flow.Sells
		c.BuySellRatio = res.flow.BuySellRatio()
		if math.IsInf(c.BuySellRatio, 1) {
			c.BuySellRatio = float64(res.flow.Buys)
		}
	}

	complete := res.mintErr == nil && res.lpErr == nil && res.distErr == nil && res.flowErr == nil
	c.Telemetry.Enriched = complete
	if !complete {
		e.fallback(c, res, trades, haveTrades)
		e.logger.Debug().
			Str("mint", c.Mint).
			Strs("errors", c.Telemetry.EnrichmentErrors).
			Msg("enrichment degraded to fallback")
	}

	e.resolveMetadata(ctx, c)
}

// lookup runs the four chain-state calls concurrently, each bounded by
// EnrichTimeout. A failed call leaves its siblings running; each error is
// kept in its own field.
func (e *Enricher) lookup(ctx context.Context, mint string) lookupResult {
	var (
		res lookupResult
		g   errgroup.Group
	)
	run := func(fn func(ctx context.Context)) {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.EnrichTimeout)
			defer cancel()
			fn(callCtx)
			return nil
		})
	}

	run(func(ctx context.Context) { res.mint, res.mintErr = e.client.MintInfo(ctx, mint) })
	run(func(ctx context.Context) { res.lp, res.lpErr = e.client.LPInfo(ctx, mint) })
	run(func(ctx context.Context) {
		res.dist, res.distErr = e.client.HolderDistribution(ctx, mint, e.cfg.HolderTopN)
	})
	run(func(ctx context.Context) {
		res.flow, res.flowErr = e.client.FlowStats(ctx, mint, e.cfg.FlowWindow)
	})
	_ = g.Wait()
	return res
}

func (e *Enricher) noteFailure(c *domain.Candidate, op string, err error) {
	if err == nil {
		return
	}
	c.Telemetry.EnrichmentErrors = append(c.Telemetry.EnrichmentErrors, fmt.Sprintf("%s: %v", op, err))
	e.metrics.EnrichmentFailure(op)
}

// fallback applies, in order: provider hints, trade-book counters, and
// permissive defaults. Only fields whose lookup failed are touched.
func (e *Enricher) fallback(c *domain.Candidate, res lookupResult, trades TradeCounts, haveTrades bool) {
	fb := e.cfg.Fallback

	if res.lpErr != nil && c.LiquidityUSD <= 0 && c.Telemetry.LiquidityHintUSD != nil {
		c.LiquidityUSD = *c.Telemetry.LiquidityHintUSD
	}
	if res.distErr != nil && c.Top10HolderShare == nil && c.Telemetry.Top10Hint != nil {
		c.Top10HolderShare = domain.Ptr(*c.Telemetry.Top10Hint)
	}

	if haveTrades {
		c.Telemetry.TradeBuys = trades.Buys
		c.Telemetry.TradeSells = trades.Sells
		c.Telemetry.TradeUniqueBuyers = trades.UniqueBuyers
		if res.flowErr != nil {
			c.UniqueBuyers = trades.UniqueBuyers
			c.Buys = trades.Buys
			c.Sells = trades.Sells
			c.BuySellRatio = float64(trades.Buys) / float64(max(trades.Sells, 1))
		}
	}

	if res.mintErr != nil {
		c.MintAuthorityRenounced = true
		c.FreezeAuthorityRenounced = true
	}
	if res.lpErr != nil {
		c.LPLocked = true
		if c.LiquidityUSD <= 0 {
			c.LiquidityUSD = fb.LiquidityUSD
		}
	}
	if c.Top10HolderShare == nil {
		c.Top10HolderShare = domain.Ptr(fb.Top10Share)
	}
	if res.flowErr != nil && !haveTrades {
		c.UniqueBuyers = fb.UniqueBuyers
		c.BuySellRatio = fb.BuySellRatio
	}
}

func (e *Enricher) resolveMetadata(ctx context.Context, c *domain.Candidate) {
	if e.metadata == nil || (c.Symbol != "" && c.Name != "") {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.EnrichTimeout)
	defer cancel()

	symbol, name, err := e.metadata.TokenMetadata(callCtx, c.Mint)
	if err != nil {
		e.logger.Debug().Err(err).Str("mint", c.Mint).Msg("metadata lookup failed")
		return
	}
	if c.Symbol == "" {
		c.Symbol = symbol
	}
	if c.Name == "" {
		c.Name = name
	}
}
