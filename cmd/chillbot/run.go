package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whisper/chillbot/internal/discord"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and start moderating",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runBot(ctx)
	},
}

// runBot holds the gateway session and the metrics listener open until ctx
// is cancelled or the gateway fails for good. In-flight answers are
// delivered and the ledger flushed before it returns.
func runBot(ctx context.Context) error {
	logSummary(logger, cfg)

	c, err := newCore(ctx, cfg, logger, true)
	if err != nil {
		return err
	}

	rest := discord.NewREST(cfg.DiscordToken, discord.DefaultRESTConfig())
	h := c.handler(rest)

	gw := discord.NewGateway(cfg.DiscordToken, discord.DefaultGatewayConfig(), h.HandleMessage, logger.Named("gateway"))
	gw.OnReady(h.SetIdentity)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, logger)
		})
	}

	logger.Info("chillbot running")
	err = g.Wait()

	logger.Info("shutting down, waiting for in-flight answers", zap.String("bot_id", gw.BotID()))
	h.Wait()
	c.close(context.WithoutCancel(ctx))
	if err != nil {
		logger.Error("bot stopped", zap.Error(err))
	}
	return err
}
