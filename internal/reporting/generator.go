package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-token-radar/internal/domain"
)

// ErrInvalidRange is returned when start is after end.
var ErrInvalidRange = errors.New("reporting: start after end")

// SnapshotReader is satisfied by storage.SnapshotStore and
// storage.ScoreEventStore.
type SnapshotReader interface {
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.CandidateSnapshot, error)
}

// Generator produces reports from recorded snapshots.
type Generator struct {
	reader SnapshotReader
	topN   int
	now    func() time.Time
}

// NewGenerator creates a generator listing the topN best mints.
func NewGenerator(reader SnapshotReader, topN int) *Generator {
	if topN <= 0 {
		topN = 20
	}
	return &Generator{
		reader: reader,
		topN:   topN,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets the clock used for GeneratedAt.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for snapshots scored within [start, end]
// (Unix ms). An empty range yields an empty report, not an error.
func (g *Generator) Generate(ctx context.Context, start, end int64) (*Report, error) {
	if start > end {
		return nil, ErrInvalidRange
	}
	snaps, err := g.reader.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	return &Report{
		GeneratedAt: g.now(),
		RangeStart:  start,
		RangeEnd:    end,
		Summary:     summarize(snaps),
		Sources:     computeSourceRows(snaps),
		TopMints:    computeTopMints(snaps, g.topN),
	}, nil
}
