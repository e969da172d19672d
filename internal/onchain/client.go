package onchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/solana"
)

var (
	// ErrMintNotFound is returned when the mint account does not exist or is
	// not owned by a token program.
	ErrMintNotFound = errors.New("mint not found")
	// ErrPoolUnknown is returned when no liquidity pool can be resolved.
	ErrPoolUnknown = errors.New("pool unknown")
	// ErrNoMetadata is returned when a mint has no Metaplex metadata account.
	ErrNoMetadata = errors.New("token metadata not found")
	// ErrCircuitOpen is returned while an operation's breaker rejects calls.
	ErrCircuitOpen = errors.New("rpc circuit open")
)

const opMetadata = "metadata"

// Options configures Client.
type Options struct {
	RPC   solana.RPCClient
	Pools *PoolRegistry
	Guard *Guard

	// SOLPriceUSD converts SOL reserves to USD liquidity.
	SOLPriceUSD float64
	// FlowSignatureLimit caps the signatures inspected per FlowStats call.
	FlowSignatureLimit int
	// FlowConcurrency bounds concurrent transaction fetches.
	FlowConcurrency int

	Now    func() time.Time
	Logger zerolog.Logger
}

// Client reads chain state for enrichment. It implements
// discovery.ChainStateClient and discovery.MetadataClient.
type Client struct {
	rpc      solana.RPCClient
	pools    *PoolRegistry
	guard    *Guard
	solPrice decimal.Decimal
	sigLimit int
	workers  int
	now      func() time.Time
	logger   zerolog.Logger
}

var (
	_ discovery.ChainStateClient = (*Client)(nil)
	_ discovery.MetadataClient   = (*Client)(nil)
)

// NewClient creates a chain-state client.
func NewClient(opts Options) (*Client, error) {
	if opts.RPC == nil {
		return nil, errors.New("onchain: rpc client is required")
	}
	if opts.Pools == nil {
		opts.Pools = NewPoolRegistry(0)
	}
	if opts.Guard == nil {
		opts.Guard = NewGuard(GuardOptions{Logger: opts.Logger})
	}
	if opts.SOLPriceUSD <= 0 {
		opts.SOLPriceUSD = 150
	}
	if opts.FlowSignatureLimit <= 0 {
		opts.FlowSignatureLimit = 200
	}
	if opts.FlowConcurrency <= 0 {
		opts.FlowConcurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		rpc:      opts.RPC,
		pools:    opts.Pools,
		guard:    opts.Guard,
		solPrice: decimal.NewFromFloat(opts.SOLPriceUSD),
		sigLimit: opts.FlowSignatureLimit,
		workers:  opts.FlowConcurrency,
		now:      opts.Now,
		logger:   opts.Logger.With().Str("component", "onchain").Logger(),
	}, nil
}

// Pools returns the registry sources register discovered pools in.
func (c *Client) Pools() *PoolRegistry {
	return c.pools
}

// account fetches and decodes an account; nil data means it does not exist.
func (c *Client) account(ctx context.Context, pubkey string) ([]byte, string, error) {
	info, err := c.rpc.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return nil, "", err
	}
	if info == nil {
		return nil, "", nil
	}
	raw, err := solana.DecodeAccountData(info.Data)
	if err != nil {
		return nil, "", err
	}
	return raw, info.Owner, nil
}

// MintInfo reads mint and freeze authorities.
func (c *Client) MintInfo(ctx context.Context, mint string) (domain.MintInfo, error) {
	var m solana.Mint
	err := c.guard.Do(ctx, discovery.OpMintInfo, func(ctx context.Context) error {
		raw, owner, err := c.account(ctx, mint)
		if err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%s: %w", mint, ErrMintNotFound)
		}
		if owner != solana.TokenProgramID && owner != solana.Token2022ProgramID {
			return fmt.Errorf("%s owned by %s: %w", mint, owner, ErrMintNotFound)
		}
		m, err = solana.ParseMint(raw)
		return err
	})
	if err != nil {
		return domain.MintInfo{}, fmt.Errorf("mint info: %w", err)
	}
	return domain.MintInfo{
		RenouncedMint:   m.MintAuthority == "",
		RenouncedFreeze: m.FreezeAuthority == "",
		Decimals:        int(m.Decimals),
		Supply:          m.Supply,
	}, nil
}

// LPInfo resolves the mint's pool and reports its USD liquidity and whether
// the liquidity is locked or burned.
func (c *Client) LPInfo(ctx context.Context, mint string) (domain.LPInfo, error) {
	var info domain.LPInfo
	err := c.guard.Do(ctx, discovery.OpLPInfo, func(ctx context.Context) error {
		pool, err := c.resolvePool(ctx, mint)
		if err != nil {
			return err
		}
		switch pool.Kind {
		case PoolBondingCurve:
			info, err = c.bondingCurveLP(ctx, mint, pool)
		case PoolAMM:
			info, err = c.ammLP(ctx, pool)
		default:
			err = fmt.Errorf("pool kind %q: %w", pool.Kind, ErrPoolUnknown)
		}
		return err
	})
	if err != nil {
		return domain.LPInfo{}, fmt.Errorf("lp info: %w", err)
	}
	return info, nil
}

// resolvePool returns the registered pool or probes the pump.fun bonding
// curve derived from the mint.
func (c *Client) resolvePool(ctx context.Context, mint string) (Pool, error) {
	if pool, ok := c.pools.Lookup(mint); ok {
		return pool, nil
	}
	pool, err := BondingCurvePool(mint, "")
	if err != nil {
		return Pool{}, fmt.Errorf("%s: %v: %w", mint, err, ErrPoolUnknown)
	}
	raw, owner, err := c.account(ctx, pool.Address)
	if err != nil {
		return Pool{}, err
	}
	if raw == nil || owner != solana.PumpFunProgramID {
		return Pool{}, fmt.Errorf("%s: %w", mint, ErrPoolUnknown)
	}
	c.pools.Register(mint, pool)
	return pool, nil
}

func (c *Client) bondingCurveLP(ctx context.Context, mint string, pool Pool) (domain.LPInfo, error) {
	raw, _, err := c.account(ctx, pool.Address)
	if err != nil {
		return domain.LPInfo{}, err
	}
	if raw == nil {
		return domain.LPInfo{}, fmt.Errorf("bonding curve %s: %w", pool.Address, ErrPoolUnknown)
	}
	curve, err := solana.ParseBondingCurve(raw)
	if err != nil {
		return domain.LPInfo{}, err
	}
	if curve.Complete {
		// Migrated; the AMM pool is registered by the source that sees it.
		c.pools.Forget(mint)
		return domain.LPInfo{}, fmt.Errorf("bonding curve %s complete: %w", pool.Address, ErrPoolUnknown)
	}
	return domain.LPInfo{
		LockedOrBurned: true,
		LiquidityUSD:   c.reservesUSD(curve.RealSolReserves),
		PoolAddress:    pool.Address,
	}, nil
}

func (c *Client) ammLP(ctx context.Context, pool Pool) (domain.LPInfo, error) {
	info := domain.LPInfo{PoolAddress: pool.Address, LPMint: pool.LPMint}

	if pool.QuoteVault != "" {
		raw, _, err := c.account(ctx, pool.QuoteVault)
		if err != nil {
			return domain.LPInfo{}, err
		}
		if raw != nil {
			vault, err := solana.ParseTokenAccount(raw)
			if err != nil {
				return domain.LPInfo{}, fmt.Errorf("quote vault: %w", err)
			}
			info.LiquidityUSD = c.reservesUSD(vault.Amount)
		}
	}

	if pool.LPMint != "" {
		burned, err := c.lpBurned(ctx, pool.LPMint)
		if err != nil {
			return domain.LPInfo{}, err
		}
		info.LockedOrBurned = burned
	}
	return info, nil
}

// lpBurned reports whether the LP supply is zero or its largest holder is the
// incinerator.
func (c *Client) lpBurned(ctx context.Context, lpMint string) (bool, error) {
	supply, err := c.rpc.GetTokenSupply(ctx, lpMint)
	if err != nil {
		return false, fmt.Errorf("lp supply: %w", err)
	}
	total, err := decimal.NewFromString(supply.Amount)
	if err != nil {
		return false, fmt.Errorf("lp supply amount %q: %w", supply.Amount, err)
	}
	if total.IsZero() {
		return true, nil
	}

	largest, err := c.rpc.GetTokenLargestAccounts(ctx, lpMint)
	if err != nil {
		return false, fmt.Errorf("lp holders: %w", err)
	}
	if len(largest) == 0 {
		return false, nil
	}
	raw, _, err := c.account(ctx, largest[0].Address)
	if err != nil || raw == nil {
		return false, err
	}
	holder, err := solana.ParseTokenAccount(raw)
	if err != nil {
		return false, fmt.Errorf("lp holder: %w", err)
	}
	return holder.Owner == solana.IncineratorAddress, nil
}

// reservesUSD values both sides of a pool at twice its SOL reserve.
func (c *Client) reservesUSD(lamports uint64) float64 {
	sol := decimal.New(int64(lamports), -9)
	return sol.Mul(c.solPrice).Mul(decimal.NewFromInt(2)).Round(2).InexactFloat64()
}

// HolderDistribution returns the share of supply held by the topN largest
// accounts, excluding the pool's own vault.
func (c *Client) HolderDistribution(ctx context.Context, mint string, topN int) (domain.Distribution, error) {
	if topN <= 0 {
		topN = 10
	}
	var dist domain.Distribution
	err := c.guard.Do(ctx, discovery.OpDistribution, func(ctx context.Context) error {
		supply, err := c.rpc.GetTokenSupply(ctx, mint)
		if err != nil {
			return err
		}
		total, err := decimal.NewFromString(supply.Amount)
		if err != nil {
			return fmt.Errorf("supply amount %q: %w", supply.Amount, err)
		}
		if !total.IsPositive() {
			return fmt.Errorf("%s has zero supply", mint)
		}

		largest, err := c.rpc.GetTokenLargestAccounts(ctx, mint)
		if err != nil {
			return err
		}
		excluded := c.poolVaults(mint)

		top := decimal.Zero
		counted := 0
		for _, acc := range largest {
			if excluded[acc.Address] {
				continue
			}
			if counted < topN {
				amount, err := decimal.NewFromString(acc.Amount)
				if err != nil {
					return fmt.Errorf("holder amount %q: %w", acc.Amount, err)
				}
				top = top.Add(amount)
				counted++
			}
			dist.TotalHolders++
		}
		dist.TopShare = top.Div(total).InexactFloat64()
		return nil
	})
	if err != nil {
		return domain.Distribution{}, fmt.Errorf("holder distribution: %w", err)
	}
	return dist, nil
}

func (c *Client) poolVaults(mint string) map[string]bool {
	vaults := make(map[string]bool, 2)
	pool, ok := c.pools.Lookup(mint)
	if !ok {
		pool, _ = BondingCurvePool(mint, "")
	}
	if pool.BaseVault != "" {
		vaults[pool.BaseVault] = true
	}
	if pool.Address != "" {
		vaults[pool.Address] = true
	}
	return vaults
}

// TokenMetadata reads symbol and name from the Metaplex metadata account.
func (c *Client) TokenMetadata(ctx context.Context, mint string) (string, string, error) {
	mintKey, err := solana.ParsePublicKey(mint)
	if err != nil {
		return "", "", err
	}
	addr, err := solana.FindMetadataAddress(mintKey)
	if err != nil {
		return "", "", fmt.Errorf("metadata address: %w", err)
	}

	var md solana.Metadata
	err = c.guard.Do(ctx, opMetadata, func(ctx context.Context) error {
		raw, _, err := c.account(ctx, addr.String())
		if err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%s: %w", mint, ErrNoMetadata)
		}
		md, err = solana.ParseMetadata(raw)
		return err
	})
	if err != nil {
		return "", "", fmt.Errorf("token metadata: %w", err)
	}
	return md.Symbol, md.Name, nil
}

// BondingCurvePool builds the pump.fun pool of mint. An empty curve address
// is derived from the mint.
func BondingCurvePool(mint, curve string) (Pool, error) {
	mintKey, err := solana.ParsePublicKey(mint)
	if err != nil {
		return Pool{}, err
	}
	var curveKey solana.PublicKey
	if curve == "" {
		if curveKey, err = solana.FindBondingCurveAddress(mintKey); err != nil {
			return Pool{}, err
		}
	} else if curveKey, err = solana.ParsePublicKey(curve); err != nil {
		return Pool{}, err
	}
	vault, err := solana.FindAssociatedTokenAddress(curveKey, mintKey)
	if err != nil {
		return Pool{}, err
	}
	return Pool{Kind: PoolBondingCurve, Address: curveKey.String(), BaseVault: vault.String()}, nil
}
