package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"weatherstation-node/internal/app"
	"weatherstation-node/internal/config"
	"weatherstation-node/internal/logging"

	"github.com/spf13/cobra"
)

var version = "dev"
var appName = "weather-node"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var secretsFile string

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Samples a BME280, serves the readings over HTTP and uploads them to ThingSpeak",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// An explicit --secrets file must exist; the default one is optional.
			required := cmd.Flags().Changed("secrets")
			if err := config.LoadSecrets(secretsFile, required); err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode()
		},
	}

	defaultSecrets := os.Getenv("SECRETS_FILE")
	if defaultSecrets == "" {
		defaultSecrets = config.DefaultSecretsFile
	}
	rootCmd.PersistentFlags().StringVar(&secretsFile, "secrets", defaultSecrets, "dotenv file with Wi-Fi and ThingSpeak credentials")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newSampleCommand())
	return rootCmd
}

func runNode() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return err
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		return err
	}

	slog.Info("shutting down")
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the application version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
			return err
		},
	}
}

func newSampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Takes a single sensor reading and prints it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				return err
			}
			slog.SetDefault(logging.New(cfg, version, appName))

			if _, err := app.SampleOnce(cfg, cmd.OutOrStdout()); err != nil {
				slog.Error("sample failed", "err", err)
				return err
			}
			return nil
		},
	}
}
