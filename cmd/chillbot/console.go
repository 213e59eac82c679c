package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/whisper/chillbot/internal/config"
	"github.com/whisper/chillbot/internal/platform"
)

const (
	consoleBotID   = "1"
	consoleGuild   = "console"
	consoleChannel = "general"
	consoleMention = "@chillbot"
)

var consoleOpts struct {
	user      string
	dm        bool
	moderator bool
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the bot from the terminal",
	Long: `Runs the full message pipeline against an in-memory channel. Every
line read from stdin is posted as a message; the bot's messages are printed.
Write @chillbot to mention the bot. Only OPENAI_API_KEY is required.
Warnings stay in memory unless --warnings-file or --redis-addr is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.ValidateCompletion(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runConsole(ctx, consoleConfig(cfg, cmd.Flags().Changed), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	f := consoleCmd.Flags()
	f.StringVar(&consoleOpts.user, "user", "1001", "user ID the console messages are sent as")
	f.BoolVar(&consoleOpts.dm, "dm", false, "talk in a direct message instead of a server channel")
	f.BoolVar(&consoleOpts.moderator, "moderator", true, "grant the console user the Manage Messages permission")
}

// consoleConfig keeps a console session away from the shared warning
// ledger, rate windows and incident feed. Each is used only when its flag
// was given on the command line.
func consoleConfig(base config.Config, changed func(name string) bool) config.Config {
	c := base
	if !changed("warnings-file") {
		c.WarningsFile = ""
	}
	if !changed("redis-addr") {
		c.RedisAddr = ""
	}
	if !changed("nats-url") {
		c.NATSURL = ""
	}
	return c
}

func runConsole(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	c, err := newCore(ctx, cfg, logger, true)
	if err != nil {
		return err
	}

	guildID := consoleGuild
	if consoleOpts.dm {
		guildID = ""
	}

	var outMu sync.Mutex
	mem := platform.NewMemory(consoleBotID, 100)
	mem.OnSend(func(o platform.Outbound) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, "chillbot> %s\n", o.Content)
	})
	if consoleOpts.moderator && guildID != "" {
		mem.Grant(guildID, consoleOpts.user, platform.PermManageMessages)
	}

	h := c.handler(mem)
	h.SetIdentity(consoleBotID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			msg := mem.Post(consoleMessage(line, guildID))
			h.HandleMessage(ctx, msg)
			if mem.Deleted(msg.ID) {
				outMu.Lock()
				fmt.Fprintln(out, "(message deleted)")
				outMu.Unlock()
			}
		}
	}

	h.Wait()
	c.close(context.WithoutCancel(ctx))
	return nil
}

// consoleMessage turns a typed line into an inbound message, rewriting
// @chillbot into the platform's mention markup.
func consoleMessage(line, guildID string) platform.Message {
	msg := platform.Message{
		ChannelID: consoleChannel,
		GuildID:   guildID,
		AuthorID:  consoleOpts.user,
		Content:   line,
	}
	if strings.Contains(line, consoleMention) {
		msg.Content = strings.ReplaceAll(line, consoleMention, "<@"+consoleBotID+">")
		msg.Mentions = []string{consoleBotID}
	}
	return msg
}
