package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whisper/chillbot/internal/audit"
	"github.com/whisper/chillbot/internal/config"
	"github.com/whisper/chillbot/internal/logging"
	"github.com/whisper/chillbot/internal/messaging"
	"github.com/whisper/chillbot/internal/metrics"
	"github.com/whisper/chillbot/internal/moderation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "auditor:", err)
		os.Exit(1)
	}
}

func run() error {
	d := config.Default()
	archiverConfig := audit.DefaultArchiverConfig()

	flags := pflag.NewFlagSet("auditor", pflag.ExitOnError)
	flags.String("nats-url", messaging.DefaultNATSConfig().URL, "NATS URL to receive incidents from")
	flags.String("postgres-dsn", d.PostgresDSN, "PostgreSQL DSN for the incident archive")
	flags.String("metrics-addr", ":9091", "Prometheus listen address (empty disables it)")
	flags.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
	flags.Bool("log-console", false, "human-readable log output")
	flags.IntVar(&archiverConfig.OffenderThreshold, "offender-threshold", archiverConfig.OffenderThreshold,
		"incidents within --offender-window that get a user reported (0 disables it)")
	flags.DurationVar(&archiverConfig.OffenderWindow, "offender-window", archiverConfig.OffenderWindow,
		"look-back window for repeat offenders")
	_ = flags.Parse(os.Args[1:])

	v := config.New()
	v.SetDefault(config.KeyMetricsAddr, ":9091")
	if err := config.BindFlags(v, flags); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogConsole)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.Named("auditor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// PostgreSQL setup.
	db, err := audit.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := audit.Migrate(db); err != nil {
		return err
	}
	archiver := audit.NewArchiver(audit.NewStore(db), archiverConfig, logger)

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	if cfg.NATSURL != "" {
		natsConfig.URL = cfg.NATSURL
	}
	natsConfig.Name = "chillbot-auditor"
	nc, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	// Incidents still draining at shutdown are written with their own deadline.
	archiveCtx := context.WithoutCancel(ctx)
	err = nc.SubscribeIncidents(func(inc moderation.Incident) {
		_ = archiver.Archive(archiveCtx, inc)
	})
	if err != nil {
		return err
	}

	logger.Info("auditor running",
		zap.String("nats_url", natsConfig.URL),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Int("offender_threshold", archiverConfig.OffenderThreshold),
		zap.Duration("offender_window", archiverConfig.OffenderWindow))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
