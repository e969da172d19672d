package publish

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/idhash"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/storage"
)

// Sink names reported to Metrics.SinkError.
const (
	SinkSnapshots   = "snapshots"
	SinkScoreEvents = "score_events"
	SinkBuffer      = "recorder_buffer"
)

// RecorderOptions configures NewRecorder.
type RecorderOptions struct {
	RunID     string
	Snapshots storage.SnapshotStore   // optional
	Events    storage.ScoreEventStore // optional

	BufferSize    int           // default 4096
	BatchSize     int           // default 200
	FlushInterval time.Duration // default 1s
	WriteTimeout  time.Duration // default 5s

	Metrics observability.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Recorder persists every scored candidate. Observe runs on the scorer
// goroutine and never blocks: snapshots go to a bounded buffer and are
// dropped, and counted, when it is full. Run drains the buffer in batches.
type Recorder struct {
	opts   RecorderOptions
	buf    chan *domain.CandidateSnapshot
	logger zerolog.Logger

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

var _ discovery.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder; call Run to start writing.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 4096
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		opts:   opts,
		buf:    make(chan *domain.CandidateSnapshot, opts.BufferSize),
		logger: opts.Logger.With().Str("component", "recorder").Logger(),
	}
}

// Observe implements discovery.Observer.
func (r *Recorder) Observe(c *domain.Candidate, th discovery.Threshold) {
	scoredAt := r.opts.Now().UnixMilli()
	snap := domain.SnapshotFromCandidate(c, r.opts.RunID, th.Effective, scoredAt)
	snap.SnapshotID = idhash.ComputeSnapshotID(r.opts.RunID, snap.Mint, snap.Source, scoredAt)

	select {
	case r.buf <- snap:
	default:
		r.dropped.Add(1)
		r.opts.Metrics.SinkError(SinkBuffer)
	}
}

// Run writes batches until ctx is done, then flushes what is buffered
// using a fresh WriteTimeout context. It always returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*domain.CandidateSnapshot, 0, r.opts.BatchSize)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case snap := <-r.buf:
					batch = append(batch, snap)
					if len(batch) >= r.opts.BatchSize {
						r.flush(batch)
						batch = batch[:0]
					}
				default:
					r.flush(batch)
					return nil
				}
			}
		case snap := <-r.buf:
			batch = append(batch, snap)
			if len(batch) >= r.opts.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

// flush writes batch to every configured store. Failures are counted and
// logged; the batch is not retried.
func (r *Recorder) flush(batch []*domain.CandidateSnapshot) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
	defer cancel()

	ok := true
	if r.opts.Snapshots != nil {
		if err := r.opts.Snapshots.InsertBulk(ctx, batch); err != nil {
			ok = false
			r.opts.Metrics.SinkError(SinkSnapshots)
			r.logger.Warn().Err(err).Int("batch", len(batch)).Msg("snapshot write failed")
		}
	}
	if r.opts.Events != nil {
		if err := r.opts.Events.InsertBulk(ctx, batch); err != nil {
			ok = false
			r.opts.Metrics.SinkError(SinkScoreEvents)
			r.logger.Warn().Err(err).Int("batch", len(batch)).Msg("score event write failed")
		}
	}
	if ok {
		r.recorded.Add(uint64(len(batch)))
	} else {
		r.failed.Add(uint64(len(batch)))
	}
}

// RecorderStats are cumulative counters.
type RecorderStats struct {
	Recorded uint64 `json:"recorded"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
	Buffered int    `json:"buffered"`
}

// Stats returns the current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
		Buffered: len(r.buf),
	}
}
