package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mastodon-to-sqlite/internal/archive"
	"mastodon-to-sqlite/internal/config"
	"mastodon-to-sqlite/internal/credentials"
	"mastodon-to-sqlite/internal/database"
	"mastodon-to-sqlite/internal/logging"
	"mastodon-to-sqlite/internal/mastodon"
	"mastodon-to-sqlite/internal/metrics"
	"mastodon-to-sqlite/internal/middleware"
)

var version = "dev"

// Global flags, applied on top of the loaded configuration when set
var (
	configFile        string
	envFile           string
	authPath          string
	useKeyring        bool
	logLevel          string
	logFormat         string
	metricsEnabled    bool
	metricsTextfile   string
	lowWaterMark      int
	requestsPerSecond float64
)

var rootCmd = &cobra.Command{
	Use:           "mastodon-to-sqlite",
	Short:         "Save data from Mastodon to a SQLite database",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	flags.StringVarP(&authPath, "auth", "a", "auth.json", "Path to auth.json token file")
	flags.BoolVar(&useKeyring, "keyring", false, "Keep credentials in the system keychain instead of a file")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	flags.BoolVar(&metricsEnabled, "metrics", false, "Serve Prometheus metrics while running")
	flags.StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")
	flags.IntVar(&lowWaterMark, "rate-limit-low-water", 1, "Pause pagination when this many requests remain")
	flags.Float64Var(&requestsPerSecond, "requests-per-second", 0, "Client-side request cap, 0 for none")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the per-invocation state shared by every command
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	runID         string
	metricsServer *http.Server
}

// withApp wraps a command body with configuration, logging and metrics setup
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		start := time.Now()
		a.logger.Debug("Command started", "command", cmd.Name())
		err = fn(cmd.Context(), a, args)
		a.logger.Debug("Command finished", "command", cmd.Name(), "duration", time.Since(start), "error", err)
		return err
	}
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, runID: runID}

	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", middleware.Instrument(metrics.EndpointMetrics, promhttp.Handler()))
		metricsMux.Handle("/health", middleware.Instrument(metrics.EndpointHealth, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})))

		a.metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr(),
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", cfg.MetricsAddr())
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	return a, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("auth") {
		cfg.AuthPath = authPath
	}
	if flags.Changed("keyring") {
		if useKeyring {
			cfg.CredentialStore = credentials.KindKeyring
		} else {
			cfg.CredentialStore = credentials.KindFile
		}
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("metrics") {
		cfg.MetricsEnabled = metricsEnabled
	}
	if flags.Changed("metrics-textfile") {
		cfg.MetricsTextfile = metricsTextfile
	}
	if flags.Changed("rate-limit-low-water") {
		cfg.RateLimitLowWater = lowWaterMark
	}
	if flags.Changed("requests-per-second") {
		cfg.RequestsPerSecond = requestsPerSecond
	}
}

func (a *app) close() {
	if a.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			a.logger.Error("Failed to write metrics textfile", "path", a.cfg.MetricsTextfile, "error", err)
		}
	}

	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Metrics server shutdown failed", "error", err)
		}
	}
}

func (a *app) credentialStore() (credentials.Store, error) {
	return credentials.NewStore(a.cfg.CredentialStore, a.cfg.AuthPath)
}

func (a *app) credentials() (*credentials.Credentials, error) {
	store, err := a.credentialStore()
	if err != nil {
		return nil, err
	}

	creds, err := store.Load()
	if errors.Is(err, credentials.ErrNotFound) {
		return nil, fmt.Errorf("no Mastodon credentials found, run 'mastodon-to-sqlite auth' first: %w", err)
	}
	return creds, err
}

func (a *app) client(creds *credentials.Credentials) *mastodon.Client {
	return mastodon.NewClient(creds.Domain, creds.AccessToken,
		mastodon.WithLogger(a.logger),
		mastodon.WithTimeouts(a.cfg.HTTPConnectTimeout, a.cfg.HTTPReadTimeout),
		mastodon.WithLowWaterMark(a.cfg.RateLimitLowWater),
		mastodon.WithRequestsPerSecond(a.cfg.RequestsPerSecond),
	)
}

// databasePath returns the positional DB_PATH argument or the configured default
func (a *app) databasePath(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return a.cfg.DatabasePath
}

func (a *app) openDatabase(args []string) (*database.DB, error) {
	path := a.databasePath(args)
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Database opened", "path", path)
	return db, nil
}

// syncer wires credentials, client, database and service together. The
// returned database must be closed by the caller.
func (a *app) syncer(args []string) (*archive.Syncer, *database.DB, error) {
	creds, err := a.credentials()
	if err != nil {
		return nil, nil, err
	}

	db, err := a.openDatabase(args)
	if err != nil {
		return nil, nil, err
	}

	service := archive.NewService(db, a.logger)
	return archive.NewSyncer(a.client(creds), service, a.logger), db, nil
}
