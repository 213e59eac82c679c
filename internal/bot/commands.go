package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/platform"
	"github.com/whisper/chillbot/internal/router"
)

// Command names.
const (
	CommandWarns = "warns"
	CommandFix   = "fix"
	CommandRules = "rules"
)

// Canned command replies.
const (
	FixUsage     = "Send the code or message after the command, or reply to a message with code and use `!fix`."
	FixWorking   = "Working on it... (this can take a few seconds)"
	NoPermission = "You need the Manage Messages permission to use that command."
	UnknownUser  = "Unknown user. Mention them or give their numeric user ID."

	RulesText = "**📜 Server Rules**\n" +
		"1. Be respectful. No harassment, racism, or hate.\n" +
		"2. No spam or unnecessary mentions.\n" +
		"3. Use channels correctly.\n" +
		"4. No NSFW or illegal content.\n" +
		"5. Listen to staff.\n" +
		"If you break rules you'll get warnings. Stay chill.\n"
)

// commandFunc handles one command invocation. args is the text after the
// command name, trimmed.
type commandFunc func(ctx context.Context, msg platform.Message, args string)

// Register associates a command with its handler, replacing any previous
// handler for the same name.
func (h *Handler) Register(name string, fn commandFunc) {
	h.commands[strings.ToLower(name)] = fn
}

// parseCommand splits "<prefix><name> args" for a registered name.
func (h *Handler) parseCommand(content string) (name, args string, ok bool) {
	prefix := h.router.Prefix()
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := content[len(prefix):]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}
	name, args = strings.ToLower(rest[:end]), rest[end:]
	if _, registered := h.commands[name]; !registered {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

// warns reports a user's warning count. The caller needs the Manage
// Messages permission. With no argument the target is the caller; an
// argument that is neither a mention nor a user ID is refused.
func (h *Handler) warns(ctx context.Context, msg platform.Message, args string) {
	allowed, err := h.platform.HasPermission(ctx, msg.GuildID, msg.AuthorID, platform.PermManageMessages)
	if !h.bestEffort(platform.OpPermission, err) || !allowed {
		h.send(ctx, msg.ChannelID, NoPermission)
		return
	}

	target := msg.AuthorID
	if args != "" {
		if target = parseUserRef(args); target == "" {
			h.send(ctx, msg.ChannelID, UnknownUser)
			return
		}
	}
	count := h.ledger.Count(target)
	h.send(ctx, msg.ChannelID, fmt.Sprintf("%s has %d warning(s).", mention(target), count))
}

// fix asks the assistant to repair code. With no body, the content of the
// replied-to message is used.
func (h *Handler) fix(ctx context.Context, msg platform.Message, args string) {
	content := args
	if content == "" && msg.ReferenceID != "" {
		ref, err := h.platform.FetchMessage(ctx, msg.ChannelID, msg.ReferenceID)
		if h.bestEffort(platform.OpFetch, err) {
			content = ref.Content
		}
	}

	pc, ok := router.BuildFix(content)
	if !ok {
		h.send(ctx, msg.ChannelID, FixUsage)
		return
	}

	h.send(ctx, msg.ChannelID, FixWorking)
	h.logger.Debug("fix requested",
		zap.String("user_id", msg.AuthorID),
		zap.String("lang", pc.Language),
		zap.Bool("code", len(pc.CodeBlocks) > 0))
	h.assist(ctx, msg, pc, deliverToChannel)
}

func (h *Handler) rules(ctx context.Context, msg platform.Message, _ string) {
	h.send(ctx, msg.ChannelID, RulesText)
}

// parseUserRef accepts "<@id>", "<@!id>" or a bare ID and returns the ID.
func parseUserRef(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), " ")
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		s = strings.TrimPrefix(s[2:len(s)-1], "!")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return s
}
