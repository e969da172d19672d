package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/queue"
	"solana-token-radar/internal/solana"
)

const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
)

// LogsSourceConfig configures LogsSource.
type LogsSourceConfig struct {
	// Programs are subscribed one per subscription; defaults to the SPL Token
	// program.
	Programs     []string
	SeenLimit    int
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Dial opens the logs WebSocket. Defaults to solana.NewWSClient on URL.
	URL  string
	Dial func(ctx context.Context) (solana.WSClient, error)

	Now    func() time.Time
	Logger zerolog.Logger
}

// LogsSource discovers new mints from InitializeMint instructions seen in
// Solana program logs (Helius or any RPC node with logsSubscribe).
type LogsSource struct {
	cfg    LogsSourceConfig
	rpc    solana.RPCClient
	logger zerolog.Logger

	mu   sync.Mutex
	ws   solana.WSClient
	seen *seenSet
}

var _ discovery.Source = (*LogsSource)(nil)

// NewLogsSource creates a logs source. rpc fetches the transactions that
// carry the new mint.
func NewLogsSource(rpc solana.RPCClient, cfg LogsSourceConfig) (*LogsSource, error) {
	if rpc == nil {
		return nil, errors.New("logs source: rpc client is required")
	}
	if cfg.Dial == nil {
		if cfg.URL == "" {
			return nil, errors.New("logs source: websocket url is required")
		}
		url, logger := cfg.URL, cfg.Logger
		cfg.Dial = func(ctx context.Context) (solana.WSClient, error) {
			wsCfg := solana.DefaultWSConfig()
			wsCfg.Logger = logger
			ws, err := solana.NewWSClient(ctx, url, &wsCfg)
			if err != nil {
				return nil, err
			}
			return ws, nil
		}
	}
	if len(cfg.Programs) == 0 {
		cfg.Programs = []string{solana.TokenProgramID}
	}
	if cfg.SeenLimit <= 0 {
		cfg.SeenLimit = 50000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LogsSource{
		cfg:    cfg,
		rpc:    rpc,
		logger: cfg.Logger.With().Str("source", domain.SourceHeliusLogs).Logger(),
		seen:   newSeenSet(cfg.SeenLimit),
	}, nil
}

func (s *LogsSource) Name() string { return domain.SourceHeliusLogs }

func (s *LogsSource) Start(context.Context) error { return nil }

// Stop closes the WebSocket client, which closes every subscription channel.
func (s *LogsSource) Stop(context.Context) error {
	s.mu.Lock()
	ws := s.ws
	s.ws = nil
	s.mu.Unlock()
	if ws == nil {
		return nil
	}
	return ws.Close()
}

// Run subscribes to the configured programs and processes notifications
// until ctx is done. The WebSocket client reconnects on its own; dialing and
// subscribing are retried here with backoff.
func (s *LogsSource) Run(ctx context.Context, sink queue.Sink) error {
	b := newBackoff(s.cfg.ReconnectMin, s.cfg.ReconnectMax)
	for {
		merged, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := b.Next()
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("logs subscription failed")
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		b.Reset()

		if err := s.consume(ctx, merged, sink); err != nil {
			_ = s.Stop(context.Background())
			return err
		}
		// client closed underneath us; dial again
		_ = s.Stop(context.Background())
		if !sleepCtx(ctx, b.Next()) {
			return ctx.Err()
		}
	}
}

// consume processes notifications until merged closes (nil) or ctx is done.
func (s *LogsSource) consume(ctx context.Context, merged <-chan solana.LogNotification, sink queue.Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-merged:
			if !ok {
				return nil
			}
			s.process(ctx, notif, sink)
		}
	}
}

// connect dials and subscribes to every program, merging the channels.
func (s *LogsSource) connect(ctx context.Context) (<-chan solana.LogNotification, error) {
	ws, err := s.cfg.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	var channels []<-chan solana.LogNotification
	for _, program := range s.cfg.Programs {
		ch, err := ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("subscribe %s: %w", program, err)
		}
		channels = append(channels, ch)
		s.logger.Info().Str("program", program).Msg("logs subscribed")
	}

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	merged := make(chan solana.LogNotification, 1000)
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch <-chan solana.LogNotification) {
			defer wg.Done()
			for notif := range ch {
				select {
				case merged <- notif:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()
	return merged, nil
}

// process turns an InitializeMint notification into a candidate.
func (s *LogsSource) process(ctx context.Context, notif solana.LogNotification, sink queue.Sink) {
	if notif.Err != nil || !isInitializeMint(notif.Logs) {
		return
	}

	tx, err := retryGetTransaction(ctx, s.rpc, notif.Signature, s.logger)
	if err != nil || tx == nil {
		s.logger.Debug().Err(err).Str("signature", notif.Signature).Msg("initialize mint transaction unavailable")
		return
	}
	mint := newMintFromBalances(tx.Meta)
	if mint == "" {
		return
	}

	s.mu.Lock()
	added, _ := s.seen.Add(mint)
	s.mu.Unlock()
	if !added {
		return
	}

	now := s.cfg.Now()
	c := &domain.Candidate{
		Mint:        mint,
		Source:      domain.SourceHeliusLogs,
		FirstSeen:   now,
		LastUpdated: now,
		Telemetry: domain.Telemetry{
			Source:    domain.SourceHeliusLogs,
			DevWallet: tx.FeePayer(),
		},
	}
	if tx.BlockTime > 0 {
		created := time.Unix(tx.BlockTime, 0)
		c.Telemetry.FirstPoolAt = &created
	}
	sink.PushCandidate(c)
	s.logger.Debug().Str("mint", mint).Str("signature", notif.Signature).Msg("new mint")
}

func isInitializeMint(logs []string) bool {
	for _, l := range logs {
		if strings.Contains(l, "Instruction: InitializeMint") {
			return true
		}
	}
	return false
}

// newMintFromBalances returns the first non-wSOL mint that gained a token
// balance in the transaction without holding one before.
func newMintFromBalances(meta *solana.TransactionMeta) string {
	if meta == nil {
		return ""
	}
	existing := make(map[string]bool, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		existing[b.Mint] = true
	}
	for _, b := range meta.PostTokenBalances {
		if b.Mint == "" || b.Mint == solana.WrappedSOLMint || existing[b.Mint] {
			continue
		}
		return b.Mint
	}
	return ""
}

// retryGetTransaction fetches a transaction with exponential backoff. Nodes
// often lag the logs stream, so a missing transaction is retried as well.
func retryGetTransaction(ctx context.Context, rpc solana.RPCClient, signature string, logger zerolog.Logger) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		tx, err := rpc.GetTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == maxRetries-1 {
			break
		}

		// 500ms, 1s
		delay := baseRetryDelay * time.Duration(1<<attempt)
		logger.Debug().Err(err).Int("attempt", attempt+1).Str("signature", signature).Dur("delay", delay).Msg("retry get transaction")
		if !sleepCtx(ctx, delay) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
