package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"solana-token-radar/internal/api"
	"solana-token-radar/internal/config"
	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/ingestion"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/onchain"
	"solana-token-radar/internal/orchestrator"
	"solana-token-radar/internal/publish"
	"solana-token-radar/internal/solana"
	"solana-token-radar/internal/storage"
	chstore "solana-token-radar/internal/storage/clickhouse"
	"solana-token-radar/internal/storage/memory"
	"solana-token-radar/internal/storage/migrations"
	pgstore "solana-token-radar/internal/storage/postgres"
	redisstore "solana-token-radar/internal/storage/redis"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the discovery engine, shortlist publisher and HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context(), cfg.HTTP.ShutdownTimeout, logger)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
}

// app holds the wired components of one process run.
type app struct {
	runID    string
	registry *prometheus.Registry
	metrics  *observability.Prometheus
	engine   *discovery.Engine
	recorder *publish.Recorder
	service  *orchestrator.Service
	api      *api.Server
	closers  []func()
}

// close releases connections in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.service.Run(gctx)
	})
	g.Go(func() error {
		return a.api.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return a.api.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if a.recorder != nil {
		st := a.recorder.Stats()
		logger.Info().
			Uint64("recorded", st.Recorded).
			Uint64("dropped", st.Dropped).
			Uint64("failed", st.Failed).
			Msg("recorder totals")
	}
	logger.Info().Str("run_id", a.runID).Msg("shutdown complete")
	return err
}

// build wires every component from cfg. On error everything acquired so far
// is released.
func build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{runID: uuid.NewString(), registry: prometheus.NewRegistry()}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewPrometheus(a.registry, cfg.Metrics.Namespace)
	logger = logger.With().Str("run_id", a.runID).Logger()

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.RPCTimeout),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
		solana.WithLatencyObserver(func(method string, d time.Duration) {
			a.metrics.RPCLatency(method, d.Seconds())
		}),
	)
	pools := onchain.NewPoolRegistry(cfg.Solana.PoolRegistryLimit)
	chain, err := onchain.NewClient(onchain.Options{
		RPC:   rpc,
		Pools: pools,
		Guard: onchain.NewGuard(onchain.GuardOptions{
			RequestsPerSecond: cfg.Solana.RequestsPerSecond,
			Burst:             cfg.Solana.Burst,
			FailureThreshold:  cfg.Solana.BreakerFailures,
			OpenTimeout:       cfg.Solana.BreakerOpenFor,
			Logger:            logger,
		}),
		SOLPriceUSD:        cfg.Solana.SOLPriceUSD,
		FlowSignatureLimit: cfg.Solana.FlowSignatureLimit,
		FlowConcurrency:    cfg.Solana.FlowConcurrency,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, rpc, pools, logger)
	if err != nil {
		return nil, err
	}

	snapshots, events, err := a.openRecordStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var observer discovery.Observer
	var recorder orchestrator.Recorder
	var recorderStats func() publish.RecorderStats
	if snapshots != nil || events != nil {
		a.recorder = publish.NewRecorder(publish.RecorderOptions{
			RunID:         a.runID,
			Snapshots:     snapshots,
			Events:        events,
			BufferSize:    cfg.Publish.RecorderBuffer,
			BatchSize:     cfg.Publish.RecorderBatch,
			FlushInterval: cfg.Publish.RecorderFlushInterval,
			Metrics:       a.metrics,
			Logger:        logger,
		})
		observer, recorder, recorderStats = a.recorder, a.recorder, a.recorder.Stats
	} else {
		logger.Info().Msg("no snapshot storage configured, scored candidates are not recorded")
	}

	cache, err := a.openShortlistCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var announcer orchestrator.Announcer
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := publish.NewKafkaPublisher(publish.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			RunID:   a.runID,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = kp.Close() })
		announcer = kp
	}

	a.engine = discovery.NewEngine(discovery.Options{
		Config:   cfg.Discovery,
		Sources:  sources,
		Client:   chain,
		Metadata: chain,
		Metrics:  a.metrics,
		Logger:   logger,
		Observer: observer,
	})

	a.service, err = orchestrator.New(orchestrator.Options{
		Engine:        a.engine,
		Cache:         cache,
		Recorder:      recorder,
		Announcer:     announcer,
		RunID:         a.runID,
		Interval:      cfg.Publish.ShortlistInterval,
		ShortlistSize: cfg.Publish.ShortlistSize,
		AnnounceTTL:   cfg.Publish.AnnounceTTL,
		StopTimeout:   max(cfg.HTTP.ShutdownTimeout-5*time.Second, time.Second),
		Metrics:       a.metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	a.api = api.NewServer(api.Options{
		Addr:     cfg.HTTP.Addr,
		RunID:    a.runID,
		Engine:   a.engine,
		Cache:    cache,
		Recorder: recorderStats,
		Gatherer: a.registry,
		Logger:   logger,
	})
	built = true
	return a, nil
}

// buildSources creates every enabled discovery source.
func buildSources(cfg config.Config, rpc solana.RPCClient, pools *onchain.PoolRegistry, logger zerolog.Logger) ([]discovery.Source, error) {
	var sources []discovery.Source
	sc := cfg.Sources

	if sc.PumpPortal.Enabled {
		sources = append(sources, ingestion.NewPumpPortalSource(ingestion.PumpPortalConfig{
			URL:             sc.PumpPortal.URL,
			SOLPriceUSD:     cfg.Solana.SOLPriceUSD,
			MaxTrackedMints: sc.PumpPortal.MaxTrackedMints,
			Pools:           pools,
			Logger:          logger,
		}))
	}
	if sc.Logs.Enabled {
		src, err := ingestion.NewLogsSource(rpc, ingestion.LogsSourceConfig{
			Programs: sc.Logs.Programs,
			URL:      cfg.Solana.WSURL,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if sc.Poller.Enabled {
		poller := ingestion.NewHTTPRecentPoller(sc.Poller.BaseURL, sc.Poller.Limit, "poller")
		sources = append(sources, ingestion.NewPollingSource(poller, ingestion.PollingConfig{
			Name:     "poller",
			Interval: sc.Poller.Interval,
			Logger:   logger,
		}))
	}
	if sc.Firehose.Enabled {
		sources = append(sources, ingestion.NewFirehose(ingestion.FirehoseConfig{
			RatePerSecond: sc.Firehose.RatePerSecond,
			Burst:         sc.Firehose.Burst,
			Seed:          sc.Firehose.Seed,
			Limit:         sc.Firehose.Limit,
		}))
	}
	if len(sources) == 0 {
		return nil, errors.New("no discovery source enabled")
	}
	return sources, nil
}

// openRecordStores connects the snapshot (PostgreSQL) and score event
// (ClickHouse) stores and applies their migrations. Either may be nil.
func (a *app) openRecordStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (storage.SnapshotStore, storage.ScoreEventStore, error) {
	var snapshots storage.SnapshotStore
	var events storage.ScoreEventStore

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn, cfg.Storage.PostgresConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		snapshots = pgstore.NewSnapshotStore(pool)
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		events = chstore.NewScoreEventStore(conn)
	}
	return snapshots, events, nil
}

// openShortlistCache returns the Redis cache when configured, otherwise an
// in-process one.
func (a *app) openShortlistCache(ctx context.Context, cfg config.Config) (storage.ShortlistCache, error) {
	if cfg.Redis.URL == "" {
		return memory.NewShortlistCache(nil), nil
	}
	client, err := redisstore.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return redisstore.NewShortlistCache(client, cfg.Redis.Prefix), nil
}
