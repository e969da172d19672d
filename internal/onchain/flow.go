package onchain

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/solana"
)

// FlowStats counts buys and sells of mint over the trailing window from the
// token balance changes of recent transactions touching the mint.
func (c *Client) FlowStats(ctx context.Context, mint string, window time.Duration) (domain.FlowStats, error) {
	var sigs []solana.SignatureInfo
	err := c.guard.Do(ctx, discovery.OpFlowStats, func(ctx context.Context) error {
		var err error
		sigs, err = c.rpc.GetSignaturesForAddress(ctx, mint, &solana.SignaturesOpts{Limit: c.sigLimit})
		return err
	})
	if err != nil {
		return domain.FlowStats{}, fmt.Errorf("flow stats: %w", err)
	}

	cutoff := c.now().Add(-window).Unix()
	recent := make([]string, 0, len(sigs))
	for _, s := range sigs {
		if s.BlockTime != nil && *s.BlockTime < cutoff {
			break // newest first
		}
		if s.Err == nil {
			recent = append(recent, s.Signature)
		}
	}
	if len(recent) == 0 {
		return domain.FlowStats{}, nil
	}

	txs := make([]*solana.Transaction, len(recent))
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, sig := range recent {
		g.Go(func() error {
			err := c.guard.Do(gctx, discovery.OpFlowStats, func(ctx context.Context) error {
				tx, err := c.rpc.GetTransaction(ctx, sig)
				txs[i] = tx
				return err
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				c.logger.Debug().Err(err).Str("mint", mint).Str("signature", sig).Msg("flow transaction fetch failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.FlowStats{}, fmt.Errorf("flow stats: %w", err)
	}
	if int(failed.Load()) == len(recent) {
		return domain.FlowStats{}, fmt.Errorf("flow stats: all %d transaction fetches failed", len(recent))
	}

	return c.aggregateFlow(mint, txs), nil
}

// aggregateFlow turns per-owner token balance deltas into trades. Positive
// deltas are buys and negative deltas sells; pool accounts are ignored.
func (c *Client) aggregateFlow(mint string, txs []*solana.Transaction) domain.FlowStats {
	pools := c.poolVaults(mint)
	buyers := make(map[string]struct{})
	sellers := make(map[string]struct{})
	var stats domain.FlowStats

	for _, tx := range txs {
		if tx == nil || tx.Meta == nil || tx.Failed() {
			continue
		}
		for owner, delta := range ownerDeltas(mint, tx.Meta) {
			if pools[owner] {
				continue
			}
			switch delta.Sign() {
			case 1:
				stats.Buys++
				buyers[owner] = struct{}{}
			case -1:
				stats.Sells++
				sellers[owner] = struct{}{}
			}
		}
	}
	stats.UniqueBuyers = len(buyers)
	stats.UniqueSellers = len(sellers)
	return stats
}

func ownerDeltas(mint string, meta *solana.TransactionMeta) map[string]decimal.Decimal {
	deltas := make(map[string]decimal.Decimal)
	apply := func(balances []solana.TokenBalance, sign int64) {
		for _, b := range balances {
			if b.Mint != mint || b.Owner == "" {
				continue
			}
			amount, err := decimal.NewFromString(b.UITokenAmount.Amount)
			if err != nil {
				continue
			}
			deltas[b.Owner] = deltas[b.Owner].Add(amount.Mul(decimal.NewFromInt(sign)))
		}
	}
	apply(meta.PostTokenBalances, 1)
	apply(meta.PreTokenBalances, -1)
	return deltas
}
