package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rickgao/stocksync/internal/app"
	"github.com/rickgao/stocksync/internal/config"
	"github.com/rickgao/stocksync/internal/event"
	"github.com/rickgao/stocksync/internal/version"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "stocksync",
		Short: "Mirror a trading backend's stock and marketplace state",
		Long: `stocksync connects to the trading backend over a websocket, keeps the
stock books, marketplace tables and live trading state in sync with the
events it emits, and serves filtered, sorted, paginated views over HTTP.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults apply when empty)")

	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(replayCmd(&configPath))
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// loadConfig loads and validates the config file, or the defaults when path
// is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadAndValidate(path)
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// setup loads the config and installs the logger as the slog default.
func setup(cmd *cobra.Command, configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runCmd(configPath *string) *cobra.Command {
	var httpPort int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the backend and keep state in sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-port") {
				cfg.HTTP.Enabled = true
				cfg.HTTP.Port = httpPort
			}

			logger.Info("starting stocksync",
				"version", version.Version,
				"commit", version.Commit,
				"backend", cfg.Backend.WSURL,
				"catalog_version", event.CatalogVersion,
			)

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := a.Run(ctx); err != nil {
				return err
			}
			logger.Info("stocksync stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&httpPort, "http-port", config.DefaultHTTPPort, "serve the HTTP API on this port (overrides http.enabled)")
	return cmd
}

func replayCmd(configPath *string) *cobra.Command {
	var serve bool

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Apply a recorded event stream and print the resulting totals",
		Long: `replay reads backend event frames, one JSON object per line, from a file
or stdin ("-" or no argument) and applies them without a backend connection.
With --serve the HTTP API stays up afterwards to inspect the result.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open replay file: %w", err)
				}
				defer f.Close()
				in = f
			}

			a, err := app.New(cfg, logger, app.WithoutBackend())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			stats, err := a.Replay(ctx, in)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{
				"replay":       stats,
				"items":        a.Stock.Items.Totals(),
				"rivens":       a.Stock.Rivens.Totals(),
				"market":       a.Market.Summary(),
				"live_trading": a.Trading.Snapshot(),
			}); err != nil {
				return err
			}

			if !serve {
				return nil
			}
			cfg.HTTP.Enabled = true
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "keep serving the HTTP API after the replay")
	return cmd
}

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the event catalog",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog version %d\n", event.CatalogVersion)
			for _, name := range event.Names() {
				fmt.Fprintln(out, name)
			}
		},
	}
}

func versionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(version.Info())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stocksync %s\n", version.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
