package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/solana"
	"solana-token-radar/internal/solana/stub"
)

// fakeLogsClient hands out one controllable channel per subscription.
type fakeLogsClient struct {
	mu       sync.Mutex
	channels []chan solana.LogNotification
	filters  []solana.LogsFilter
	closed   bool
}

func (f *fakeLogsClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, solana.ErrWSClosed
	}
	ch := make(chan solana.LogNotification, 8)
	f.channels = append(f.channels, ch)
	f.filters = append(f.filters, filter)
	return ch, nil
}

func (f *fakeLogsClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, ch := range f.channels {
		close(ch)
	}
	return nil
}

func (f *fakeLogsClient) send(n solana.LogNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[0] <- n
}

func (f *fakeLogsClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func initializeMintTx(sig, mint string, blockTime int64) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		BlockTime: blockTime,
		Meta: &solana.TransactionMeta{
			LogMessages: []string{"Program log: Instruction: InitializeMint2"},
			PreTokenBalances: []solana.TokenBalance{
				{Mint: solana.WrappedSOLMint, Owner: "payer"},
			},
			PostTokenBalances: []solana.TokenBalance{
				{Mint: solana.WrappedSOLMint, Owner: "payer"},
				{Mint: mint, Owner: "curve"},
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{"dev-payer", mint}},
	}
}

func TestLogsSource_EmitsNewMints(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(initializeMintTx("sig-1", "new-mint", 1700000000))

	ws := &fakeLogsClient{}
	var dials atomic.Int32
	src, err := NewLogsSource(rpc, LogsSourceConfig{
		Dial: func(context.Context) (solana.WSClient, error) {
			dials.Add(1)
			return ws, nil
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHeliusLogs, src.Name())

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, sink) }()

	require.Eventually(t, func() bool {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return len(ws.channels) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{solana.TokenProgramID}, ws.filters[0].Mentions)

	initLogs := []string{"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [1]", "Program log: Instruction: InitializeMint2"}
	ws.send(solana.LogNotification{Signature: "sig-1", Logs: initLogs})
	ws.send(solana.LogNotification{Signature: "sig-1", Logs: initLogs}) // duplicate
	ws.send(solana.LogNotification{Signature: "sig-2", Logs: []string{"Program log: Instruction: Transfer"}})
	ws.send(solana.LogNotification{Signature: "sig-3", Logs: initLogs, Err: map[string]interface{}{"InstructionError": 0}})

	require.Eventually(t, func() bool { return rpc.CallCount("getTransaction") >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(sink.Candidates()) == 1 }, 2*time.Second, 5*time.Millisecond)

	c := sink.Candidates()[0]
	assert.Equal(t, "new-mint", c.Mint)
	assert.Equal(t, domain.SourceHeliusLogs, c.Source)
	assert.Equal(t, "dev-payer", c.Telemetry.DevWallet)
	require.NotNil(t, c.Telemetry.FirstPoolAt)
	assert.Equal(t, int64(1700000000), c.Telemetry.FirstPoolAt.Unix())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, ws.isClosed())
	assert.Equal(t, int32(1), dials.Load())
	assert.Len(t, sink.Candidates(), 1)
}

func TestLogsSource_RetriesDial(t *testing.T) {
	var dials atomic.Int32
	ws := &fakeLogsClient{}
	src, err := NewLogsSource(stub.NewRPCClient(), LogsSourceConfig{
		ReconnectMin: 5 * time.Millisecond,
		ReconnectMax: 10 * time.Millisecond,
		Dial: func(context.Context) (solana.WSClient, error) {
			if dials.Add(1) < 3 {
				return nil, errors.New("connection refused")
			}
			return ws, nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx, &recordingSink{}) }()

	require.Eventually(t, func() bool {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return len(ws.channels) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), dials.Load())
}

func TestNewLogsSource_Validation(t *testing.T) {
	_, err := NewLogsSource(nil, LogsSourceConfig{URL: "ws://x"})
	assert.Error(t, err)

	_, err = NewLogsSource(stub.NewRPCClient(), LogsSourceConfig{})
	assert.Error(t, err)

	src, err := NewLogsSource(stub.NewRPCClient(), LogsSourceConfig{URL: "ws://127.0.0.1:1"})
	require.NoError(t, err)
	assert.NoError(t, src.Stop(context.Background()))
}

func TestNewMintFromBalances(t *testing.T) {
	assert.Equal(t, "", newMintFromBalances(nil))

	meta := &solana.TransactionMeta{
		PreTokenBalances:  []solana.TokenBalance{{Mint: "old-mint"}},
		PostTokenBalances: []solana.TokenBalance{{Mint: "old-mint"}, {Mint: solana.WrappedSOLMint}, {Mint: "fresh"}},
	}
	assert.Equal(t, "fresh", newMintFromBalances(meta))

	meta.PostTokenBalances = meta.PostTokenBalances[:2]
	assert.Equal(t, "", newMintFromBalances(meta))
}
