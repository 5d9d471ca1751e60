package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/config"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/services"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/telemetry"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "midwayctl",
	Short:         "Administer Midway sessions, API keys and cache",
	Long:          `Inspect and manage the ephemeral state Midway keeps in Redis: API keys, login sessions and cached reads.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file (env MIDWAY_CONFIG)")
	flags.String("redis-url", "", "redis connection URL (env MIDWAY_REDIS_URL)")
	flags.String("namespace", "", "key namespace (env MIDWAY_NAMESPACE)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (env MIDWAY_LOG_LEVEL)")
	flags.String("log-format", "", "log format: console or json (env MIDWAY_LOG_FORMAT, default console on a terminal)")
	flags.String("otlp-url", "", "OTLP/HTTP collector URL for logs and traces (env MIDWAY_OTLP_URL)")
	flags.String("otlp-token", "", "bearer token for the collector (env MIDWAY_OTLP_TOKEN)")

	rootCmd.AddCommand(apikeyCmd(), sessionCmd(), cacheCmd(), configCmd(), pingCmd())
}

// run loads configuration, connects and calls fn with the wired services.
func run(cmd *cobra.Command, fn func(ctx context.Context, svc *services.Services) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cmd)
	if err != nil {
		return err
	}
	if otlpURL := config.FlagOrEnv(cmd, "otlp-url", config.EnvPrefix+"_OTLP_URL", ""); otlpURL != "" {
		otelLog, shutdown, err := telemetry.New(ctx, telemetry.Config{
			URL:         otlpURL,
			AuthToken:   config.FlagOrEnv(cmd, "otlp-token", config.EnvPrefix+"_OTLP_TOKEN", ""),
			ServiceName: "midwayctl",
			Level:       config.LogLevel(cmd),
			Log:         log,
		})
		if err != nil {
			return err
		}
		defer shutdown()
		log = logger.NewMultiLogger(log, otelLog)
	}
	svc, err := services.New(ctx, *cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				if err := svc.Ping(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromCommand(cmd)
			if err != nil {
				return err
			}
			buf, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(buf)
			return err
		},
	})
	return c
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
