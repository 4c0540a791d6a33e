package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/edvin/safehouse/internal/api"
	"github.com/edvin/safehouse/internal/artifact"
	"github.com/edvin/safehouse/internal/config"
	"github.com/edvin/safehouse/internal/core"
	"github.com/edvin/safehouse/internal/db"
	"github.com/edvin/safehouse/internal/executor"
	"github.com/edvin/safehouse/internal/logging"
	"github.com/edvin/safehouse/internal/metrics"
	"github.com/edvin/safehouse/internal/notify"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "create-api-key":
			createAPIKey(os.Args[2:])
			return
		case "list-api-keys":
			listAPIKeys()
			return
		case "revoke-api-key":
			revokeAPIKey(os.Args[2:])
			return
		}
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("core-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.CoreDatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL, cfg.ServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	defaults, err := core.LoadSettingsDefaults(cfg.SettingsDefaultsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load settings defaults")
	}

	executorTLS, err := cfg.ExecutorTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure executor TLS")
	}
	if executorTLS != nil {
		logger.Info().Msg("executor mTLS enabled")
	}

	deps := core.Dependencies{
		Executor: executor.NewClient(cfg.ExecutorURL, cfg.ExecutorToken, executor.WithTLS(executorTLS)),
		Scanner:  executor.NewScanner(cfg.ScannerURL, cfg.ScannerToken, executor.WithTLS(executorTLS)),
	}
	if cfg.S3Enabled() {
		deps.Artifacts = artifact.NewS3Store(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey, logger)
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("artifact mirror enabled")
	}
	if cfg.SMTPEnabled() {
		deps.Alerter = notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, logger)
		logger.Info().Str("host", cfg.SMTPHost).Msg("security alert mail enabled")
	}

	services := core.NewServices(corePool, deps, core.Options{
		Backup: core.BackupOrchestratorConfig{
			ExecutorTimeout:  cfg.ExecutorTimeout,
			EmergencyTimeout: cfg.EmergencyTimeout,
			UploadMaxBytes:   cfg.UploadMaxBytes,
			StaleAfter:       cfg.JobStaleAfter,
		},
		ScannerTimeout: cfg.ScannerTimeout,
		StatsJobWindow: cfg.StatsJobWindow,
		Defaults:       defaults,
	}, logger)

	go services.Backup.RunReaper(ctx, cfg.ReaperInterval)

	var metricsServer *http.Server
	if cfg.MetricsListenAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsListenAddr, corePool.Ping)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	srv := api.NewServer(logger, services, corePool, corePool.Ping, cfg.CallbackToken)

	// Emergency backups stream the archive in the response, so writes may
	// take as long as the executor does.
	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.EmergencyTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting core API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api server shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
}

// keyService connects to the core database for the api key subcommands.
// The returned func closes the pool.
func keyService(ctx context.Context) (*core.APIKeyService, func()) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.CoreDatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: CORE_DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	return core.NewAPIKeyService(pool), pool.Close
}

func createAPIKey(args []string) {
	fs := flag.NewFlagSet("create-api-key", flag.ExitOnError)
	name := fs.String("name", "", "Name for the API key (required)")
	tenants := fs.String("tenants", "*", "Comma-separated tenant IDs the key may access, * for all")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fmt.Fprintln(os.Stderr, "usage: core-api create-api-key --name <name> [--tenants t1,t2]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, closePool := keyService(ctx)
	defer closePool()

	key, rawKey, err := svc.Create(ctx, *name, splitTenants(*tenants))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key created successfully.\n\n")
	fmt.Printf("  Name:    %s\n", key.Name)
	fmt.Printf("  ID:      %s\n", key.ID)
	fmt.Printf("  Tenants: %s\n", strings.Join(key.Tenants, ","))
	fmt.Printf("  Key:     %s\n\n", rawKey)
	fmt.Printf("Save this key, it will not be shown again.\n")
}

func listAPIKeys() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, closePool := keyService(ctx)
	defer closePool()

	keys, err := svc.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to list API keys: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPREFIX\tTENANTS\tCREATED\tREVOKED")
	for _, k := range keys {
		revoked := "-"
		if k.RevokedAt != nil {
			revoked = k.RevokedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.Name, k.KeyPrefix, strings.Join(k.Tenants, ","), k.CreatedAt.Format(time.RFC3339), revoked)
	}
	w.Flush()
}

func revokeAPIKey(args []string) {
	fs := flag.NewFlagSet("revoke-api-key", flag.ExitOnError)
	id := fs.String("id", "", "ID of the API key to revoke (required)")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, closePool := keyService(ctx)
	defer closePool()

	if err := svc.Revoke(ctx, *id); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to revoke API key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("API key %s revoked.\n", *id)
}

func splitTenants(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
