package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"solana-token-radar/internal/config"
	"solana-token-radar/internal/reporting"
	chstore "solana-token-radar/internal/storage/clickhouse"
	pgstore "solana-token-radar/internal/storage/postgres"
)

func reportCmd(configPath *string) *cobra.Command {
	var (
		since   time.Duration
		top     int
		format  string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recorded candidate snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "markdown" && format != "csv" {
				return fmt.Errorf("unknown format %q (want markdown or csv)", format)
			}
			if since <= 0 {
				return errors.New("--since must be positive")
			}
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			reader, closeReader, err := openReportReader(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeReader()

			end := time.Now().UTC()
			r, err := reporting.NewGenerator(reader, top).Generate(ctx, end.Add(-since).UnixMilli(), end.UnixMilli())
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}
			if err := writeReport(out, r, format); err != nil {
				return err
			}
			logger.Info().
				Int("snapshots", r.Summary.Snapshots).
				Int("mints", r.Summary.UniqueMints).
				Msg("report generated")
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "report window ending now")
	cmd.Flags().IntVar(&top, "top", 20, "number of best mints to list")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown or csv")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

// openReportReader prefers the PostgreSQL snapshot store and falls back to
// the ClickHouse score events.
func openReportReader(ctx context.Context, cfg config.Config) (reporting.SnapshotReader, func(), error) {
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn, cfg.Storage.PostgresConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return pgstore.NewSnapshotStore(pool), pool.Close, nil
	}
	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		return chstore.NewScoreEventStore(conn), func() { _ = conn.Close() }, nil
	}
	return nil, nil, errors.New("no storage configured: set storage.postgres_dsn or storage.clickhouse_dsn")
}

func writeReport(w io.Writer, r *reporting.Report, format string) error {
	if format == "markdown" {
		_, err := io.WriteString(w, reporting.RenderMarkdown(r))
		return err
	}
	sources, err := reporting.RenderSourcesCSV(r.Sources)
	if err != nil {
		return err
	}
	mints, err := reporting.RenderTopMintsCSV(r.TopMints)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, sources+"\n"+mints)
	return err
}
