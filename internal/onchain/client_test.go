package onchain

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/solana"
	"solana-token-radar/internal/solana/stub"
)

const testMint = solana.WrappedSOLMint

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, rpc *stub.RPCClient) *Client {
	t.Helper()
	c, err := NewClient(Options{
		RPC:         rpc,
		SOLPriceUSD: 150,
		Guard:       NewGuard(GuardOptions{RequestsPerSecond: 10000, Burst: 10000}),
		Now:         func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return c
}

func key(s string) []byte {
	pk := solana.MustPublicKey(s)
	return pk[:]
}

func mintData(authority, freeze bool, supply uint64) []byte {
	data := make([]byte, solana.MintAccountSize)
	if authority {
		binary.LittleEndian.PutUint32(data[0:4], 1)
		copy(data[4:36], key(solana.SystemProgramID))
	}
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = 6
	data[45] = 1
	if freeze {
		binary.LittleEndian.PutUint32(data[46:50], 1)
		copy(data[50:82], key(solana.SystemProgramID))
	}
	return data
}

func curveData(realSolLamports uint64, complete bool) []byte {
	data := make([]byte, 49)
	binary.LittleEndian.PutUint64(data[32:40], realSolLamports)
	if complete {
		data[48] = 1
	}
	return data
}

func tokenAccountData(mint, owner string, amount uint64) []byte {
	data := make([]byte, solana.TokenAccountSize)
	copy(data[0:32], key(mint))
	copy(data[32:64], key(owner))
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

func TestNewClient_RequiresRPC(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
}

func TestClient_MintInfo(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	rpc.AddAccount(testMint, solana.TokenProgramID, mintData(false, true, 1_000_000))
	info, err := c.MintInfo(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, domain.MintInfo{RenouncedMint: true, RenouncedFreeze: false, Decimals: 6, Supply: 1_000_000}, info)

	_, err = c.MintInfo(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMintNotFound)

	rpc.AddAccount("wrong-owner", solana.SystemProgramID, mintData(false, false, 1))
	_, err = c.MintInfo(context.Background(), "wrong-owner")
	assert.ErrorIs(t, err, ErrMintNotFound)
}

func TestClient_LPInfo_DerivedBondingCurve(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	pool, err := BondingCurvePool(testMint, "")
	require.NoError(t, err)
	rpc.AddAccount(pool.Address, solana.PumpFunProgramID, curveData(10_000_000_000, false))

	lp, err := c.LPInfo(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, lp.LockedOrBurned)
	assert.InDelta(t, 3000.0, lp.LiquidityUSD, 1e-9) // 10 SOL * $150 * 2 sides
	assert.Equal(t, pool.Address, lp.PoolAddress)

	registered, ok := c.Pools().Lookup(testMint)
	require.True(t, ok)
	assert.Equal(t, PoolBondingCurve, registered.Kind)
}

func TestClient_LPInfo_CompletedCurveIsUnknown(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	pool, err := BondingCurvePool(testMint, "")
	require.NoError(t, err)
	c.Pools().Register(testMint, pool)
	rpc.AddAccount(pool.Address, solana.PumpFunProgramID, curveData(1, true))

	_, err = c.LPInfo(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrPoolUnknown)
	assert.Equal(t, 0, c.Pools().Len())
}

func TestClient_LPInfo_NoPool(t *testing.T) {
	c := newTestClient(t, stub.NewRPCClient())

	_, err := c.LPInfo(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrPoolUnknown)
}

func TestClient_LPInfo_AMMBurned(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	c.Pools().Register(testMint, Pool{Kind: PoolAMM, Address: "amm-pool", QuoteVault: "quote-vault", LPMint: "lp-mint"})
	rpc.AddAccount("quote-vault", solana.TokenProgramID, tokenAccountData(solana.WrappedSOLMint, solana.SystemProgramID, 5_000_000_000))
	rpc.Supplies["lp-mint"] = solana.TokenAmount{Amount: "1000", Decimals: 9}
	rpc.Largest["lp-mint"] = []solana.TokenAccountBalance{{Address: "lp-holder", TokenAmount: solana.TokenAmount{Amount: "1000"}}}
	rpc.AddAccount("lp-holder", solana.TokenProgramID, tokenAccountData(solana.WrappedSOLMint, solana.IncineratorAddress, 1000))

	lp, err := c.LPInfo(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, lp.LockedOrBurned)
	assert.InDelta(t, 1500.0, lp.LiquidityUSD, 1e-9)
	assert.Equal(t, "lp-mint", lp.LPMint)

	rpc.AddAccount("lp-holder", solana.TokenProgramID, tokenAccountData(solana.WrappedSOLMint, solana.SystemProgramID, 1000))
	lp, err = c.LPInfo(context.Background(), testMint)
	require.NoError(t, err)
	assert.False(t, lp.LockedOrBurned)
}

func TestClient_HolderDistribution_ExcludesPoolVault(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	pool, err := BondingCurvePool(testMint, "")
	require.NoError(t, err)
	rpc.Supplies[testMint] = solana.TokenAmount{Amount: "1000000", Decimals: 6}
	rpc.Largest[testMint] = []solana.TokenAccountBalance{
		{Address: pool.BaseVault, TokenAmount: solana.TokenAmount{Amount: "800000"}},
		{Address: "holder-a", TokenAmount: solana.TokenAmount{Amount: "50000"}},
		{Address: "holder-b", TokenAmount: solana.TokenAmount{Amount: "30000"}},
		{Address: "holder-c", TokenAmount: solana.TokenAmount{Amount: "20000"}},
	}

	dist, err := c.HolderDistribution(context.Background(), testMint, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, dist.TopShare, 1e-12)
	assert.Equal(t, 3, dist.TotalHolders)

	_, err = c.HolderDistribution(context.Background(), "unknown-mint", 10)
	assert.Error(t, err)
}

func balance(owner string, amount string) solana.TokenBalance {
	return solana.TokenBalance{Mint: testMint, Owner: owner, UITokenAmount: solana.TokenAmount{Amount: amount}}
}

func TestClient_FlowStats(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	pool, err := BondingCurvePool(testMint, "")
	require.NoError(t, err)
	c.Pools().Register(testMint, pool)

	at := func(ago time.Duration) *int64 {
		v := testNow.Add(-ago).Unix()
		return &v
	}
	rpc.AddSignatures(testMint, []solana.SignatureInfo{
		{Signature: "s1", BlockTime: at(10 * time.Second)},
		{Signature: "s2", BlockTime: at(20 * time.Second), Err: map[string]interface{}{"InstructionError": 1}},
		{Signature: "s3", BlockTime: at(30 * time.Second)},
		{Signature: "s4", BlockTime: at(10 * time.Minute)},
	})
	rpc.AddTransaction(&solana.Transaction{
		Signature: "s1",
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{balance(pool.Address, "1000")},
			PostTokenBalances: []solana.TokenBalance{balance(pool.Address, "900"), balance("buyer-1", "100")},
		},
	})
	rpc.AddTransaction(&solana.Transaction{
		Signature: "s3",
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{balance("buyer-1", "100")},
			PostTokenBalances: []solana.TokenBalance{balance("buyer-1", "40"), balance("buyer-2", "50")},
		},
	})

	stats, err := c.FlowStats(context.Background(), testMint, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStats{UniqueBuyers: 2, UniqueSellers: 1, Buys: 2, Sells: 1}, stats)
	assert.Equal(t, 2, rpc.CallCount("getTransaction"))
}

func TestClient_FlowStats_AllFetchesFail(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	bt := testNow.Unix()
	rpc.AddSignatures(testMint, []solana.SignatureInfo{{Signature: "s1", BlockTime: &bt}})
	rpc.SetError("getTransaction", errors.New("node unavailable"))

	_, err := c.FlowStats(context.Background(), testMint, time.Minute)
	assert.Error(t, err)
}

func TestClient_FlowStats_NoRecentActivity(t *testing.T) {
	c := newTestClient(t, stub.NewRPCClient())

	stats, err := c.FlowStats(context.Background(), testMint, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStats{}, stats)
}

func metadataData(name, symbol string) []byte {
	borsh := func(s string, pad int) []byte {
		b := make([]byte, 4+pad)
		binary.LittleEndian.PutUint32(b, uint32(pad))
		copy(b[4:], s)
		return b
	}
	data := []byte{4}
	data = append(data, key(solana.SystemProgramID)...)
	data = append(data, key(testMint)...)
	data = append(data, borsh(name, 32)...)
	data = append(data, borsh(symbol, 10)...)
	return append(data, borsh("", 200)...)
}

func TestClient_TokenMetadata(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := newTestClient(t, rpc)

	_, _, err := c.TokenMetadata(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrNoMetadata)

	addr, err := solana.FindMetadataAddress(solana.MustPublicKey(testMint))
	require.NoError(t, err)
	rpc.AddAccount(addr.String(), solana.MetaplexProgramID, metadataData("Wrapped SOL", "SOL"))

	symbol, name, err := c.TokenMetadata(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, "SOL", symbol)
	assert.Equal(t, "Wrapped SOL", name)

	_, _, err = c.TokenMetadata(context.Background(), "not base58 !")
	assert.ErrorIs(t, err, solana.ErrInvalidPublicKey)
}
