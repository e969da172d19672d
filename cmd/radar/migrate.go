package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"solana-token-radar/internal/storage/migrations"
	pgstore "solana-token-radar/internal/storage/postgres"
)

func migrateCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL and ClickHouse migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.PostgresDSN == "" && cfg.Storage.ClickHouseDSN == "" {
				return errors.New("no storage configured: set storage.postgres_dsn or storage.clickhouse_dsn")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if dsn := cfg.Storage.PostgresDSN; dsn != "" {
				pool, err := pgstore.NewPool(ctx, dsn, cfg.Storage.PostgresConns)
				if err != nil {
					return fmt.Errorf("connect to postgres: %w", err)
				}
				err = migrations.RunPostgresMigrations(ctx, pool, logger)
				pool.Close()
				if err != nil {
					return fmt.Errorf("postgres migrations: %w", err)
				}
			}

			if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, dsn, logger)
				if err != nil {
					return fmt.Errorf("clickhouse migrations: %w", err)
				}
				_ = conn.Close()
			}

			logger.Info().Msg("migrations applied")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall migration timeout")
	return cmd
}
