package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adatry/adatry/internal/api"
	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/credsync"
	"github.com/adatry/adatry/internal/generator"
	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/metrics"
	"github.com/adatry/adatry/internal/rotator"
	"github.com/adatry/adatry/internal/store"
	"github.com/adatry/adatry/internal/telegram"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the Adatry server",
	Long: `Start the Adatry server in main mode.

This command starts the HTTP server that serves posts, live engagement
streams, try-on generations and credential pool administration.

Example:
  adatry serve --config config.yaml

The server will start listening on the address configured in the config file.`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("ADATRY_SHUTDOWN_TIMEOUT", 30*time.Second), "Shutdown timeout")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "1.3", "Minimum TLS version (1.2 or 1.3)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Printf("Starting Adatry server, config: %s", globalFlags.Config)
	}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}
	if globalFlags.DBPath != "" {
		cfg.Storage.Backend = "sqlite"
		cfg.Storage.Path = globalFlags.DBPath
	}

	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	logger := logging.NewLogger(
		logging.WithLevel(logging.LogLevel(cfg.Server.LogLevel)),
		logging.WithService("adatry"),
	)
	m := metrics.NewMetrics("adatry")

	dataStore, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	rot := rotator.New(dataStore, logger, m)
	gen := generator.NewService(rot, cfg.Providers, logger, m)
	notifier := telegram.NewNotifier(cfg.Telegram)

	// Credential file auto-import
	syncCtx, syncCancel := context.WithCancel(context.Background())
	defer syncCancel()
	if cfg.CredSync.Enabled {
		syncer := credsync.NewSyncer(dataStore, cfg.CredSync.Dir, cfg.CredSync.Interval, logger)
		newCount, updatedCount, err := syncer.ScanAndSync()
		if err != nil {
			log.Printf("Credential sync warning: %v", err)
		} else {
			log.Printf("Credential sync enabled: %s (new=%d updated=%d)", cfg.CredSync.Dir, newCount, updatedCount)
			if notifier.Enabled() && newCount > 0 {
				telegram.Notify(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
					fmt.Sprintf("🔄 Credential import: %d new, %d updated", newCount, updatedCount))
			}
		}
		if err := syncer.Start(syncCtx); err != nil {
			log.Printf("Credential sync warning: %v", err)
		}
	}

	// Reload config on file change while running
	loader.SetOnChange(func(updated *config.Config) {
		logger.Info("configuration reloaded", "version", updated.Version)
	})
	loader.StartWatcher(30 * time.Second)
	defer loader.StopWatcher()

	server := api.NewServer(cfg.Server, cfg.API, cfg.Live, dataStore, gen, logger, m)
	if notifier.Enabled() {
		server.SetNotifier(notifier)
	}

	setupGracefulShutdown(server, syncCancel, serveFlags.Timeout)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if cfg.Server.TLS.Enabled {
		log.Printf("Starting Adatry HTTPS server on %s", addr)
	} else {
		log.Printf("Starting Adatry HTTP server on %s", addr)
	}
	if cfg.Storage.Backend == "sqlite" {
		log.Printf("Database: %s (WAL mode enabled)", cfg.Storage.Path)
	}

	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// openStore creates the store selected by the storage configuration
func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = "./data/adatry.db"
		}
		retentionDays := 90
		if cfg.Retention.MaxAge > 0 {
			retentionDays = int(cfg.Retention.MaxAge / (24 * time.Hour))
		}
		return store.NewSQLiteStoreWithRetention(path, retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// validateTLSConfig validates TLS configuration
func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" {
		return fmt.Errorf("TLS certificate file is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("TLS key file is required when TLS is enabled")
	}

	if _, err := os.Stat(tls.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file does not exist: %s", tls.CertFile)
	}
	if _, err := os.Stat(tls.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file does not exist: %s", tls.KeyFile)
	}

	if tls.MinVersion != "" && tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		return fmt.Errorf("TLS min_version must be either \"1.2\" or \"1.3\", got: %s", tls.MinVersion)
	}

	return nil
}

// setupGracefulShutdown handles graceful shutdown of all components
func setupGracefulShutdown(server *api.Server, cancelSync context.CancelFunc, timeout time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if cancelSync != nil {
			cancelSync()
		}

		log.Println("Shutting down API server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}

		log.Println("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}
