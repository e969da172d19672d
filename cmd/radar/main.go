// Command radar discovers newly created Solana tokens, scores them and
// publishes a ranked shortlist.
//
// Usage:
//
//	radar run --config radar.yaml
//	radar migrate --config radar.yaml
//	radar report --since 24h --top 20
//	radar config print
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"solana-token-radar/internal/config"
	"solana-token-radar/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "radar",
		Short:         "Solana new-token discovery and scoring engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	defaultPath := os.Getenv("RADAR_CONFIG")
	if defaultPath == "" {
		defaultPath = "radar.yaml"
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "YAML config file (optional)")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(migrateCmd(&configPath))
	root.AddCommand(reportCmd(&configPath))
	root.AddCommand(configCmd(&configPath))
	return root
}

// loadConfig loads the configuration and the process logger.
func loadConfig(path string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger := observability.NewLogger(observability.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	return cfg, logger, nil
}

// signalContext is cancelled on the first SIGINT or SIGTERM. A second
// signal, or a shutdown lasting longer than grace, exits the process.
func signalContext(parent context.Context, grace time.Duration, logger zerolog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(grace):
			logger.Error().Dur("timeout", grace).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}
}

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the resolved configuration as YAML with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
