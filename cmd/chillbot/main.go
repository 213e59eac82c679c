package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/config"
	"github.com/whisper/chillbot/internal/logging"
	"github.com/whisper/chillbot/internal/moderation"
	"github.com/whisper/chillbot/internal/router"
	"github.com/whisper/chillbot/internal/warnings"
)

var (
	v      = config.New()
	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "chillbot",
	Short: "Discord moderation and assistant bot",
	Long: `chillbot deletes messages with banned words or repeated spam, keeps a
per-user warning ledger, and answers questions addressed to it through a
chat-completion API.

Required environment:
  DISCORD_TOKEN    bot token (run only)
  OPENAI_API_KEY   completion API key

Every other setting can be given as a flag or as CHILLBOT_<KEY>, for example
CHILLBOT_REDIS_ADDR or CHILLBOT_MODERATION_FLAG_THRESHOLD.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logger.Sync()
	},
}

// setup loads configuration and builds the logger for every subcommand.
func setup(cmd *cobra.Command) error {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}
	l, err := logging.New(c.LogLevel, c.LogConsole)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.String("prefix", d.Prefix, "command prefix")
	pf.StringSlice("triggers", router.DefaultTriggers, "command names that route a message to the assistant")
	pf.StringSlice("banned-words", moderation.DefaultBannedWords, "words that get a message deleted")
	pf.String("warnings-file", warnings.DefaultFile, "warning ledger file, used when Redis is not configured")
	pf.String("provider", d.Completion.Provider, "completion backend: openai or gemini")
	pf.String("model", d.Completion.Model, "completion model")
	pf.String("redis-addr", "", "Redis address for the ledger and rate window (empty keeps both local)")
	pf.String("nats-url", "", "NATS URL for incident fan-out (empty disables it)")
	pf.String("metrics-addr", d.MetricsAddr, "Prometheus listen address (empty disables it)")
	pf.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
	pf.Bool("log-console", false, "human-readable log output")

	rootCmd.AddCommand(runCmd, consoleCmd, warnsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
