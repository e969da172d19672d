package ingestion

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/queue"
)

// FirehoseConfig configures the synthetic load generator.
type FirehoseConfig struct {
	RatePerSecond int
	Burst         int // candidates per tick
	Jitter        time.Duration
	Seed          int64
	// Limit stops generation after this many candidates; 0 is unlimited.
	Limit int
	Now   func() time.Time
}

// Firehose pushes synthetic candidates at a fixed rate. The same seed always
// produces the same sequence.
type Firehose struct {
	cfg FirehoseConfig
}

var _ discovery.Source = (*Firehose)(nil)

// NewFirehose creates a generator; zero fields default to 500/s in bursts of
// 10 with 5ms jitter.
func NewFirehose(cfg FirehoseConfig) *Firehose {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 500
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Firehose{cfg: cfg}
}

func (f *Firehose) Name() string { return domain.SourceFirehose }

func (f *Firehose) Start(context.Context) error { return nil }

func (f *Firehose) Stop(context.Context) error { return nil }

// Run generates until ctx is done or Limit is reached, then idles until ctx
// is done.
func (f *Firehose) Run(ctx context.Context, sink queue.Sink) error {
	rng := rand.New(rand.NewSource(f.cfg.Seed))
	burstsPerSec := max(1, f.cfg.RatePerSecond/f.cfg.Burst)
	tick := time.Second / time.Duration(burstsPerSec)

	n := 0
	for {
		for i := 0; i < f.cfg.Burst; i++ {
			if f.cfg.Limit > 0 && n >= f.cfg.Limit {
				<-ctx.Done()
				return ctx.Err()
			}
			n++
			sink.PushCandidate(syntheticCandidate(rng, n, f.cfg.Now()))
		}

		wait := tick
		if f.cfg.Jitter > 0 {
			wait += time.Duration(rng.Int63n(int64(f.cfg.Jitter)))
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

func syntheticCandidate(rng *rand.Rand, n int, now time.Time) *domain.Candidate {
	created := now.Add(-time.Duration(rng.Float64() * float64(time.Hour)))
	top10 := 0.05 + rng.Float64()*0.6
	return &domain.Candidate{
		Mint:                     fmt.Sprintf("MockMint%08d", n),
		Symbol:                   fmt.Sprintf("MOCK%d", n%999),
		Name:                     fmt.Sprintf("Mock Token %d", n),
		LiquidityUSD:             1000 + rng.Float64()*99000,
		Top10HolderShare:         &top10,
		LPLocked:                 rng.Float64() > 0.3,
		MintAuthorityRenounced:   rng.Float64() > 0.2,
		FreezeAuthorityRenounced: rng.Float64() > 0.2,
		Source:                   domain.SourceFirehose,
		FirstSeen:                now,
		LastUpdated:              now,
		Telemetry: domain.Telemetry{
			Source:      domain.SourceFirehose,
			FirstPoolAt: &created,
		},
	}
}
