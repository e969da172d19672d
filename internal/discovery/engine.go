// Package discovery implements the candidate discovery-and-scoring engine:
// a bounded producer/consumer pipeline feeding a single scorer goroutine that
// filters, enriches, scores and ranks newly created tokens.
package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/queue"
)

var (
	// ErrAlreadyStarted is returned by Start when the engine is not stopped.
	ErrAlreadyStarted = errors.New("discovery: engine already started")
	// ErrWaitTimeout is returned by WaitClosed when the timeout elapsed first.
	ErrWaitTimeout = errors.New("discovery: wait for close timed out")
)

const (
	idlePollInterval  = 50 * time.Millisecond
	sourceStopTimeout = 5 * time.Second
	sweepInterval     = 30 * time.Second
)

// State is the engine lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Source is a producer wrapping one data feed. Run pushes into sink until ctx
// is cancelled; it owns its reconnect policy and closes its transport before
// returning.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Run(ctx context.Context, sink queue.Sink) error
}

// Observer receives a clone of every scored candidate together with the
// threshold in effect. It runs on the scorer goroutine and must not block.
type Observer interface {
	Observe(c *domain.Candidate, th Threshold)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(c *domain.Candidate, th Threshold)

// Observe implements Observer.
func (f ObserverFunc) Observe(c *domain.Candidate, th Threshold) { f(c, th) }

// Stats is the diagnostics view returned by GetStats.
type Stats struct {
	State               State          `json:"state"`
	Running             bool           `json:"running"`
	QueueSize           int            `json:"queue_size"`
	QueueCapacity       int            `json:"queue_capacity"`
	QueueDropped        uint64         `json:"queue_dropped"`
	ProcessedCandidates int            `json:"processed_candidates"`
	ActiveSources       int            `json:"active_sources"`
	ScoreThreshold      float64        `json:"score_threshold"`
	EffectiveThreshold  float64        `json:"effective_threshold"`
	MinLiquidityUSD     float64        `json:"min_liquidity_usd"`
	RecentRejections    map[string]int `json:"recent_rejections"`
}

// Options for creating Engine.
type Options struct {
	Config   Config
	Sources  []Source
	Client   ChainStateClient // nil: every candidate takes the fallback path
	Metadata MetadataClient   // optional
	Metrics  observability.Metrics
	Logger   zerolog.Logger // zero value discards
	Observer Observer
	Now      func() time.Time
}

// run holds the per-Start lifecycle handles.
type run struct {
	stop       chan struct{}
	closed     chan struct{}
	stopOnce   sync.Once
	closeOnce  sync.Once
	cancelSrc  context.CancelFunc
	cancelRecv context.CancelFunc
	cancelScr  context.CancelFunc
	sources    sync.WaitGroup
	releaseCtx func() bool
}

// Engine owns the source goroutines, the scorer goroutine and all candidate
// state. Only the scorer mutates candidate state; mu makes that state
// readable from query callers.
type Engine struct {
	cfg      Config
	sources  []Source
	metrics  observability.Metrics
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time

	queue    *queue.Queue
	enricher *Enricher
	scorer   *Scorer

	mu        sync.Mutex
	store     *Store
	trades    *TradeBook
	burst     *BurstGuard
	trackers  *Trackers
	threshold *ThresholdEstimator
	filter    *FastFilter
	lastSweep time.Time

	lifecycle sync.Mutex
	state     atomic.Value // State
	current   *run

	handled       atomic.Uint64
	activeSources atomic.Int32
}

// NewEngine creates a stopped engine.
func NewEngine(opts Options) *Engine {
	cfg := opts.Config
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger.With().Str("component", "discovery").Logger()

	trades := NewTradeBook()
	burst := NewBurstGuard(cfg.Burst)
	e := &Engine{
		cfg:       cfg,
		sources:   opts.Sources,
		metrics:   metrics,
		logger:    logger,
		observer:  opts.Observer,
		now:       now,
		queue:     queue.New(cfg.MaxQueue, queue.WithDropHook(metrics.QueueDropped)),
		enricher:  NewEnricher(opts.Client, opts.Metadata, cfg, metrics, logger),
		scorer:    NewScorer(cfg.Scoring),
		store:     NewStore(),
		trades:    trades,
		burst:     burst,
		trackers:  NewTrackers(cfg.Trackers, trades),
		threshold: NewThresholdEstimator(cfg.ScoreThreshold, cfg.MinScoreCapDelta, cfg.Threshold),
		filter:    NewFastFilter(cfg, burst, trades),
	}
	e.state.Store(StateStopped)
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.state.Load().(State)
}

// Start launches one goroutine per source and the scorer goroutine. It does
// not block. Cancelling ctx stops the engine.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.State() != StateStopped {
		return ErrAlreadyStarted
	}
	e.state.Store(StateStarting)

	r := &run{
		stop:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	srcCtx, cancelSrc := context.WithCancel(ctx)
	scrCtx, cancelScr := context.WithCancel(context.WithoutCancel(ctx))
	recvCtx, cancelRecv := context.WithCancel(scrCtx)
	r.cancelSrc, r.cancelScr, r.cancelRecv = cancelSrc, cancelScr, cancelRecv
	e.current = r

	for _, src := range e.sources {
		r.sources.Add(1)
		go e.runSource(srcCtx, r, src)
	}
	go e.scoreLoop(scrCtx, recvCtx, r)

	r.releaseCtx = context.AfterFunc(ctx, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), sourceStopTimeout)
		defer cancel()
		if err := e.Stop(stopCtx); err != nil {
			e.logger.Warn().Err(err).Msg("stop after context cancellation")
		}
	})

	e.state.Store(StateRunning)
	e.metrics.EngineRunning(true)
	e.logger.Info().Int("sources", len(e.sources)).Msg("engine started")
	return nil
}

// Stop signals the scorer, cancels every source and waits for them, then
// waits for the scorer to exit. If ctx expires first the scorer is cancelled
// and ctx.Err() is returned once it has exited. Calling Stop more than once,
// or concurrently, is safe; a caller that finds a stop in progress waits for
// it under its own ctx.
func (e *Engine) Stop(ctx context.Context) error {
	e.lifecycle.Lock()
	r := e.current
	if r == nil || e.State() == StateStopped {
		e.lifecycle.Unlock()
		return nil
	}
	if e.State() == StateStopping {
		e.lifecycle.Unlock()
		return e.awaitScorer(ctx, r)
	}
	e.state.Store(StateStopping)
	e.lifecycle.Unlock()

	if r.releaseCtx != nil {
		r.releaseCtx()
	}
	r.stopOnce.Do(func() { close(r.stop) })
	r.cancelRecv()
	r.cancelSrc()

	sourcesDone := make(chan struct{})
	go func() {
		r.sources.Wait()
		close(sourcesDone)
	}()
	select {
	case <-sourcesDone:
	case <-ctx.Done():
		e.logger.Warn().Msg("sources did not stop in time")
	}

	err := e.awaitScorer(ctx, r)
	r.cancelScr()

	e.lifecycle.Lock()
	e.state.Store(StateStopped)
	e.lifecycle.Unlock()
	e.metrics.EngineRunning(false)
	e.logger.Info().Err(err).Msg("engine stopped")
	return err
}

// awaitScorer waits for the scorer of r to exit. When ctx expires first the
// scorer is cancelled, awaited, and ctx.Err() returned.
func (e *Engine) awaitScorer(ctx context.Context, r *run) error {
	select {
	case <-r.closed:
		return nil
	case <-ctx.Done():
		e.logger.Warn().Msg("scorer did not stop in time, cancelling")
		r.cancelScr()
		<-r.closed
		return ctx.Err()
	}
}

// WaitClosed blocks until the scorer has exited or timeout elapses. On
// timeout the scorer is cancelled, the engine is stopped (sources included)
// and ErrWaitTimeout is returned.
func (e *Engine) WaitClosed(timeout time.Duration) error {
	e.lifecycle.Lock()
	r := e.current
	e.lifecycle.Unlock()
	if r == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.closed:
		return nil
	case <-timer.C:
	}

	r.cancelScr()
	e.lifecycle.Lock()
	same := e.current == r
	e.lifecycle.Unlock()
	if same {
		stopCtx, cancel := context.WithTimeout(context.Background(), sourceStopTimeout)
		defer cancel()
		if err := e.Stop(stopCtx); err != nil {
			e.logger.Warn().Err(err).Msg("stop after wait timeout")
		}
	}
	return ErrWaitTimeout
}

// RunUntilIdle polls until the queue has been empty with no message in
// flight for idle, or maxWait elapses.
func (e *Engine) RunUntilIdle(ctx context.Context, idle, maxWait time.Duration) error {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}

		if e.isIdle() {
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			if time.Since(idleSince) >= idle {
				return nil
			}
			continue
		}
		idleSince = time.Time{}
	}
}

func (e *Engine) isIdle() bool {
	if e.queue.Len() > 0 {
		return false
	}
	dropped := e.queue.Dropped()
	pushed := e.queue.Pushed()
	return e.handled.Load()+dropped >= pushed
}

// Submit enqueues a candidate directly. It returns false when an older
// message was dropped to make room.
func (e *Engine) Submit(c *domain.Candidate) bool {
	return e.queue.PushCandidate(c)
}

// SubmitTrade enqueues a trade update directly.
func (e *Engine) SubmitTrade(t domain.TradeUpdate) bool {
	return e.queue.PushTrade(t)
}

// BestCandidates purges stale entries and returns up to k candidates scoring
// at least minScore, or the dynamic threshold when minScore is nil.
func (e *Engine) BestCandidates(k int, minScore *float64) []*domain.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.purgeLocked(now)

	th := e.threshold.Compute()
	e.metrics.EffectiveThreshold(th.Effective)
	if th.Escalated {
		e.logger.Warn().
			Float64("base", th.Base).
			Float64("rug_missing_ratio", th.RugMissingRatio).
			Msg("baseline threshold escalated")
	}

	floor := th.Effective
	if minScore != nil {
		floor = *minScore
	}
	best := e.store.Best(k, floor)

	ultraFresh := 0
	for _, c := range best {
		if e.filter.IsFresh(c, now) {
			ultraFresh++
		}
	}
	e.logger.Debug().
		Int("returned", len(best)).
		Int("ultra_fresh", ultraFresh).
		Float64("min_score", floor).
		Float64("q80", th.Q80).
		Msg("best candidates")
	return best
}

// GetStats returns a diagnostics snapshot.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	stored := e.store.Len()
	last := e.threshold.Last()
	rejections := e.threshold.ReasonCounts()
	e.mu.Unlock()

	state := e.State()
	return Stats{
		State:               state,
		Running:             state == StateRunning,
		QueueSize:           e.queue.Len(),
		QueueCapacity:       e.queue.Cap(),
		QueueDropped:        e.queue.Dropped(),
		ProcessedCandidates: stored,
		ActiveSources:       int(e.activeSources.Load()),
		ScoreThreshold:      e.cfg.ScoreThreshold,
		EffectiveThreshold:  last.Effective,
		MinLiquidityUSD:     e.cfg.MinLiquidityUSD,
		RecentRejections:    rejections,
	}
}

func (e *Engine) runSource(ctx context.Context, r *run, src Source) {
	defer r.sources.Done()
	e.activeSources.Add(1)
	defer e.activeSources.Add(-1)

	log := e.logger.With().Str("source", src.Name()).Logger()
	if err := src.Start(ctx); err != nil {
		log.Error().Err(err).Msg("source start failed")
		return
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), sourceStopTimeout)
		defer cancel()
		if err := src.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("source stop failed")
		}
	}()

	log.Info().Msg("source running")
	err := src.Run(ctx, &countingSink{q: e.queue, metrics: e.metrics, source: src.Name()})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("source exited")
	}
}

func (e *Engine) scoreLoop(ctx, recvCtx context.Context, r *run) {
	defer r.closeOnce.Do(func() { close(r.closed) })
	e.logger.Info().Msg("scorer loop started")
	defer e.logger.Info().Msg("scorer loop finished")

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		msg, err := e.queue.Receive(recvCtx)
		if err != nil {
			return
		}

		switch msg.Kind {
		case queue.KindTrade:
			e.mu.Lock()
			e.trades.Record(*msg.Trade)
			e.mu.Unlock()
		case queue.KindCandidate:
			e.processCandidate(ctx, msg.Candidate)
		}
		e.handled.Add(1)
		e.metrics.QueueDepth(e.queue.Len())

		if ctx.Err() != nil {
			return
		}
	}
}

func (e *Engine) processCandidate(ctx context.Context, c *domain.Candidate) {
	if c == nil || c.Mint == "" {
		return
	}
	now := e.now()

	e.mu.Lock()
	if now.Sub(e.lastSweep) >= sweepInterval {
		e.purgeLocked(now)
		e.lastSweep = now
	}

	normalize(c, now)
	existing, seen := e.store.Get(c.Mint)
	if seen && c.LastUpdated.Before(existing.LastUpdated) {
		e.mu.Unlock()
		e.metrics.Filtered(string(domain.ReasonDuplicateStale))
		e.logger.Debug().Str("mint", c.Mint).Msg("stale re-observation discarded")
		return
	}
	if seen {
		mergeObservation(c, existing)
	}

	counts, haveTrades := e.trades.Counts(c.Mint)
	if haveTrades {
		c.Telemetry.TradeBuys = counts.Buys
		c.Telemetry.TradeSells = counts.Sells
		c.Telemetry.TradeUniqueBuyers = counts.UniqueBuyers
	}

	d := e.filter.Evaluate(c, now)
	if !d.Admitted {
		if d.Recordable() {
			e.threshold.ObserveReason(d.Reason)
		}
		e.mu.Unlock()
		e.metrics.Filtered(string(d.Reason))
		e.logger.Debug().
			Str("mint", c.Mint).
			Str("source", c.SourceName()).
			Str("reason", string(d.Reason)).
			Bool("fresh", d.Fresh).
			Msg("candidate rejected")
		return
	}
	e.mu.Unlock()

	if d.Path == PathFreshPass || d.Path == PathFreshWindow {
		e.metrics.FreshPass()
		e.metrics.Filtered(string(domain.ReasonFreshPass))
		e.logger.Info().
			Str("mint", c.Mint).
			Str("path", string(d.Path)).
			Dur("age", d.Age).
			Int("buyers", counts.UniqueBuyers).
			Int("trades", counts.Trades()).
			Msg("fresh pass")
	}

	e.enricher.Enrich(ctx, c, counts, haveTrades)

	e.mu.Lock()
	// Enrichment ran unlocked; re-check against a newer observation that may
	// have been stored meanwhile.
	if cur, ok := e.store.Get(c.Mint); ok && c.LastUpdated.Before(cur.LastUpdated) {
		e.mu.Unlock()
		e.metrics.Filtered(string(domain.ReasonDuplicateStale))
		return
	}

	e.scorer.Score(c, now)
	e.store.Upsert(c)
	events := e.trackers.Apply(c, now)
	e.threshold.ObserveScore(c.LastScore)

	for _, mint := range e.store.Trim(e.cfg.MaxCandidates) {
		e.forgetLocked(mint)
	}
	th := e.threshold.Compute()
	out := c.Clone()
	e.mu.Unlock()

	for _, ev := range events {
		if ev.Reason != "" {
			e.metrics.Filtered(string(ev.Reason))
		}
		e.logger.Debug().Str("mint", c.Mint).Str("tracker", ev.Note).Float64("delta", ev.Delta).Msg("tracker adjustment")
	}
	e.metrics.Scored(out.OverallScore)
	e.metrics.EffectiveThreshold(th.Effective)

	logEv := e.logger.Info().
		Str("mint", out.Mint).
		Str("symbol", out.Symbol).
		Str("source", out.SourceName()).
		Float64("score", out.OverallScore).
		Float64("rug_risk", out.RugRiskScore).
		Float64("threshold", th.Effective).
		Strs("seen_from", out.Telemetry.SeenFrom)
	if seen && existing.PriceUSD != nil && out.PriceUSD != nil && *existing.PriceUSD > 0 {
		logEv = logEv.Float64("price_change", (*out.PriceUSD-*existing.PriceUSD) / *existing.PriceUSD)
	}
	logEv.Msg("candidate scored")

	if e.observer != nil {
		e.observer.Observe(out, th)
	}
}

// purgeLocked drops candidates past the TTL and idle per-mint state.
func (e *Engine) purgeLocked(now time.Time) {
	ttl := e.cfg.CandidateTTL
	if ttl <= 0 {
		return
	}
	removed := e.store.Purge(now, ttl, e.trackers.FirstSeen)
	for _, mint := range removed {
		e.forgetLocked(mint)
	}

	cutoff := now.Add(-ttl)
	keep := func(mint string) bool {
		_, ok := e.store.Get(mint)
		return ok
	}
	e.trades.Prune(cutoff, keep)
	e.burst.Prune(cutoff, keep)
	e.trackers.Prune(cutoff, keep)

	if len(removed) > 0 {
		e.logger.Info().Int("removed", len(removed)).Dur("ttl", ttl).Msg("purged stale candidates")
	}
}

func (e *Engine) forgetLocked(mint string) {
	e.trades.Forget(mint)
	e.burst.Forget(mint)
	e.trackers.Forget(mint)
}

// normalize fills bookkeeping defaults.
func normalize(c *domain.Candidate, now time.Time) {
	if c.FirstSeen.IsZero() {
		c.FirstSeen = now
	}
	if c.LastUpdated.IsZero() {
		c.LastUpdated = c.FirstSeen
	}
	if c.Telemetry.Source == "" {
		c.Telemetry.Source = c.Source
	}
	if c.Source == "" {
		c.Source = c.Telemetry.Source
	}
}

// mergeObservation carries durable facts from the stored entry into a new
// observation of the same mint.
func mergeObservation(c, prev *domain.Candidate) {
	if c.Symbol == "" {
		c.Symbol = prev.Symbol
	}
	if c.Name == "" {
		c.Name = prev.Name
	}
	if prev.FirstSeen.Before(c.FirstSeen) {
		c.FirstSeen = prev.FirstSeen
	}
	t, pt := &c.Telemetry, prev.Telemetry
	if t.FirstPoolAt == nil && pt.FirstPoolAt != nil {
		t.FirstPoolAt = domain.Ptr(*pt.FirstPoolAt)
	}
	if t.FirstTradeAt == nil && pt.FirstTradeAt != nil {
		t.FirstTradeAt = domain.Ptr(*pt.FirstTradeAt)
	}
	if t.DevWallet == "" {
		t.DevWallet = pt.DevWallet
	}
	if t.PoolAddress == "" {
		t.PoolAddress = pt.PoolAddress
	}
	if t.LiquidityHintUSD == nil && pt.LiquidityHintUSD != nil {
		t.LiquidityHintUSD = domain.Ptr(*pt.LiquidityHintUSD)
	}
	if t.Top10Hint == nil && pt.Top10Hint != nil {
		t.Top10Hint = domain.Ptr(*pt.Top10Hint)
	}
}

// countingSink forwards to the queue and counts candidates per source.
type countingSink struct {
	q       *queue.Queue
	metrics observability.Metrics
	source  string
}

func (s *countingSink) PushCandidate(c *domain.Candidate) bool {
	if c == nil {
		return true
	}
	if c.Source == "" {
		c.Source = s.source
	}
	if c.Telemetry.Source == "" {
		c.Telemetry.Source = c.Source
	}
	s.metrics.CandidateIn(c.Source)
	return s.q.PushCandidate(c)
}

func (s *countingSink) PushTrade(t domain.TradeUpdate) bool {
	return s.q.PushTrade(t)
}

var _ queue.Sink = (*countingSink)(nil)
