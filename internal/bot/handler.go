// Package bot is the per-message pipeline: every inbound message is
// moderated first, then offered to the registered commands, then to the
// assistant router. Completions run on their own goroutines so a slow API
// call never holds up the next message.
package bot

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/completion"
	"github.com/whisper/chillbot/internal/metrics"
	"github.com/whisper/chillbot/internal/moderation"
	"github.com/whisper/chillbot/internal/platform"
	"github.com/whisper/chillbot/internal/router"
	"github.com/whisper/chillbot/internal/warnings"
)

// IncidentPublisher receives an incident for every deleted message.
type IncidentPublisher interface {
	PublishIncident(inc moderation.Incident) error
}

// Options wires the handler's collaborators. Publisher may be nil.
type Options struct {
	Platform   platform.Platform
	Engine     *moderation.Engine
	Ledger     *warnings.Ledger
	Router     *router.Router
	Completion completion.Client
	Publisher  IncidentPublisher
	Logger     *zap.Logger
}

// Handler processes inbound messages.
type Handler struct {
	platform   platform.Platform
	engine     *moderation.Engine
	ledger     *warnings.Ledger
	router     *router.Router
	completion completion.Client
	publisher  IncidentPublisher
	logger     *zap.Logger
	commands   map[string]commandFunc

	mu    sync.RWMutex
	botID string

	inflight sync.WaitGroup
}

// New creates a Handler with the warns, fix and rules commands registered.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		platform:   opts.Platform,
		engine:     opts.Engine,
		ledger:     opts.Ledger,
		router:     opts.Router,
		completion: opts.Completion,
		publisher:  opts.Publisher,
		logger:     logger.Named("bot"),
		commands:   make(map[string]commandFunc),
	}
	h.Register(CommandWarns, h.warns)
	h.Register(CommandFix, h.fix)
	h.Register(CommandRules, h.rules)
	return h
}

// SetIdentity records the bot's own user ID once the platform reports it.
func (h *Handler) SetIdentity(botID string) {
	h.mu.Lock()
	h.botID = botID
	h.mu.Unlock()
	h.logger.Info("bot identity set", zap.String("bot_id", botID))
}

func (h *Handler) identity() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.botID
}

// HandleMessage runs one message through moderation, commands and the
// assistant router. Messages from bots, including this one, are ignored.
func (h *Handler) HandleMessage(ctx context.Context, msg platform.Message) {
	botID := h.identity()
	if msg.AuthorBot || (botID != "" && msg.AuthorID == botID) {
		return
	}
	metrics.MessagesTotal.WithLabelValues("received").Inc()

	if !h.moderate(ctx, msg) {
		return
	}

	if name, args, ok := h.parseCommand(msg.Content); ok {
		h.logger.Debug("command",
			zap.String("command", name),
			zap.String("user_id", msg.AuthorID),
			zap.String("channel_id", msg.ChannelID))
		h.commands[name](ctx, msg, args)
		return
	}

	if !h.router.ShouldRespond(msg, botID) {
		return
	}
	pc := h.router.Build(msg, botID)
	h.logger.Debug("routing to assistant",
		zap.String("trigger", pc.Trigger.String()),
		zap.String("lang", pc.Language),
		zap.Int("code_blocks", len(pc.CodeBlocks)))
	h.assist(ctx, msg, pc, deliverReply)
}

// moderate evaluates msg and carries out the decision. It reports whether
// processing should continue.
func (h *Handler) moderate(ctx context.Context, msg platform.Message) bool {
	d := h.engine.Evaluate(ctx, msg, h.history(ctx, msg))
	metrics.ModerationDecisions.WithLabelValues(d.Kind.String(), d.Reason).Inc()

	switch d.Kind {
	case moderation.DeleteAndWarn:
		if h.bestEffort(platform.OpDelete, h.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID)) {
			metrics.MessagesTotal.WithLabelValues("deleted").Inc()
		}
		h.send(ctx, msg.ChannelID, warningText(msg.AuthorID, d))
		if d.Flag {
			h.send(ctx, msg.ChannelID, flagText(msg.AuthorID))
		}
		h.publish(msg, d)
		return false

	case moderation.SoftFlag:
		h.send(ctx, msg.ChannelID, flagText(msg.AuthorID))
	}
	return true
}

// history returns the text of the channel's recent messages, or nil when
// the platform cannot supply them.
func (h *Handler) history(ctx context.Context, msg platform.Message) []string {
	limit := h.engine.HistoryLimit()
	if limit <= 0 {
		return nil
	}
	msgs, err := h.platform.History(ctx, msg.ChannelID, limit)
	if !h.bestEffort(platform.OpHistory, err) {
		return nil
	}
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Content)
	}
	return texts
}

func (h *Handler) publish(msg platform.Message, d moderation.Decision) {
	if h.publisher == nil {
		return
	}
	inc := moderation.NewIncident(msg, d)
	if err := h.publisher.PublishIncident(inc); err != nil {
		h.logger.Warn("failed to publish incident",
			zap.String("incident_id", inc.ID), zap.Error(err))
	}
}

func (h *Handler) send(ctx context.Context, channelID, content string) bool {
	return h.bestEffort(platform.OpSend, h.platform.SendMessage(ctx, channelID, content))
}

// bestEffort logs and counts a failed platform operation. It reports
// whether err was nil.
func (h *Handler) bestEffort(op string, err error) bool {
	if err == nil {
		return true
	}
	metrics.PlatformErrors.WithLabelValues(op).Inc()
	h.logger.Warn("platform operation failed", zap.String("op", op), zap.Error(err))
	return false
}

// Wait blocks until every in-flight completion has been delivered.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func warningText(userID string, d moderation.Decision) string {
	if d.Reason == moderation.ReasonRepeatSpam {
		return fmt.Sprintf("%s Slow down with repeated messages. Warning %d.", mention(userID), d.Warnings)
	}
	return fmt.Sprintf("%s Please do not use that language. Warning %d.", mention(userID), d.Warnings)
}

func flagText(userID string) string {
	return mention(userID) + " You have multiple warnings. Please calm down — staff will review this."
}
