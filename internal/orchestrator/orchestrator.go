// Package orchestrator runs the radar: the discovery engine, the snapshot
// recorder and periodic shortlist publication, with one shared lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/storage"
)

// Sink names reported to Metrics.SinkError.
const (
	SinkShortlistCache = "shortlist_cache"
	SinkAnnouncer      = "announcer"
)

// Engine is the part of *discovery.Engine the service drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	BestCandidates(k int, minScore *float64) []*domain.Candidate
}

// Recorder writes scored snapshots until its context is cancelled.
type Recorder interface {
	Run(ctx context.Context) error
}

// Announcer publishes newly shortlisted mints downstream.
type Announcer interface {
	PublishShortlisted(ctx context.Context, entries []domain.ShortlistEntry) error
}

// Options for creating Service.
type Options struct {
	Engine    Engine                 // required
	Cache     storage.ShortlistCache // required
	Recorder  Recorder               // optional
	Announcer Announcer              // optional

	RunID         string        // default: random UUID
	Interval      time.Duration // default 5s
	ShortlistSize int           // default 10
	AnnounceTTL   time.Duration // 0: a mint is announced once per cache lifetime
	StopTimeout   time.Duration // default 30s

	Metrics observability.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Service coordinates the running components.
type Service struct {
	opts    Options
	metrics observability.Metrics
	logger  zerolog.Logger
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, errors.New("orchestrator: engine is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("orchestrator: shortlist cache is required")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.ShortlistSize <= 0 {
		opts.ShortlistSize = 10
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.Nop{}
	}
	return &Service{
		opts:    opts,
		metrics: metrics,
		logger:  opts.Logger.With().Str("component", "orchestrator").Str("run_id", opts.RunID).Logger(),
	}, nil
}

// RunID identifies this process run in snapshots and announcements.
func (s *Service) RunID() string { return s.opts.RunID }

// Run starts the engine and blocks until ctx is cancelled. Shutdown stops
// the engine within StopTimeout, then lets the recorder flush.
func (s *Service) Run(ctx context.Context) error {
	if err := s.opts.Engine.Start(ctx); err != nil {
		return err
	}
	s.logger.Info().
		Dur("interval", s.opts.Interval).
		Int("shortlist_size", s.opts.ShortlistSize).
		Msg("radar running")

	// The recorder outlives ctx so snapshots scored during shutdown are kept.
	recCtx, cancelRec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRec()

	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Recorder != nil {
		g.Go(func() error {
			return s.opts.Recorder.Run(recCtx)
		})
	}
	g.Go(func() error {
		s.publishLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer cancelRec()

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StopTimeout)
		defer cancel()
		return s.opts.Engine.Stop(stopCtx)
	})

	err := g.Wait()
	s.logger.Info().Err(err).Msg("radar stopped")
	return err
}

func (s *Service) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PublishShortlist(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("shortlist publication failed")
			}
		}
	}
}

// PublishShortlist takes the current best candidates, replaces the cached
// shortlist with them and announces the mints not announced before. It
// returns the number of announced mints.
func (s *Service) PublishShortlist(ctx context.Context) (int, error) {
	best := s.opts.Engine.BestCandidates(s.opts.ShortlistSize, nil)
	entries := domain.ShortlistFromCandidates(best, s.opts.RunID, s.opts.Now().UnixMilli())

	if err := s.opts.Cache.Publish(ctx, entries); err != nil {
		s.metrics.SinkError(SinkShortlistCache)
		return 0, err
	}
	s.metrics.ShortlistPublished(len(entries))

	if s.opts.Announcer == nil || len(entries) == 0 {
		return 0, nil
	}

	fresh := make([]domain.ShortlistEntry, 0, len(entries))
	for _, e := range entries {
		first, err := s.opts.Cache.MarkSeen(ctx, e.Mint, s.opts.AnnounceTTL)
		if err != nil {
			// Skipped rather than risk announcing twice.
			s.metrics.SinkError(SinkShortlistCache)
			s.logger.Warn().Err(err).Str("mint", e.Mint).Msg("mark seen failed")
			continue
		}
		if first {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := s.opts.Announcer.PublishShortlisted(ctx, fresh); err != nil {
		s.metrics.SinkError(SinkAnnouncer)
		return 0, err
	}
	s.logger.Info().
		Int("announced", len(fresh)).
		Str("top_mint", entries[0].Mint).
		Float64("top_score", entries[0].Score).
		Msg("shortlist announced")
	return len(fresh), nil
}
