package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/completion"
	"github.com/whisper/chillbot/internal/metrics"
	"github.com/whisper/chillbot/internal/platform"
	"github.com/whisper/chillbot/internal/router"
)

// delivery selects how an assistant answer is posted.
type delivery int

const (
	// deliverReply answers the triggering message as a reply, falling back
	// to a plain channel message if the reply cannot be posted.
	deliverReply delivery = iota
	// deliverToChannel posts every part as a plain channel message.
	deliverToChannel
)

// assist requests a completion for pc on its own goroutine and posts the
// answer. The request outlives ctx's cancellation so a reconnecting gateway
// does not drop answers already being generated.
func (h *Handler) assist(ctx context.Context, msg platform.Message, pc router.PromptContext, how delivery) {
	ctx = context.WithoutCancel(ctx)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		answer, err := h.completion.Complete(ctx, pc.Body, pc.Language)
		if err != nil {
			h.logger.Warn("completion failed",
				zap.String("user_id", msg.AuthorID),
				zap.String("channel_id", msg.ChannelID),
				zap.Error(err))
			answer = completion.FallbackReply
		}
		h.deliver(ctx, msg, answer, how)
	}()
}

// deliver posts answer in parts of at most completion.MaxReplyChars.
func (h *Handler) deliver(ctx context.Context, msg platform.Message, answer string, how delivery) {
	for i, part := range completion.Split(answer, completion.MaxReplyChars) {
		if i == 0 && how == deliverReply {
			err := h.platform.Reply(ctx, msg.ChannelID, msg.ID, part)
			if h.bestEffort(platform.OpReply, err) {
				metrics.MessagesTotal.WithLabelValues("replied").Inc()
				continue
			}
		}
		if h.send(ctx, msg.ChannelID, part) {
			metrics.MessagesTotal.WithLabelValues("replied").Inc()
		}
	}
}
