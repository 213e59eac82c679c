package moderation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/metrics"
	"github.com/whisper/chillbot/internal/platform"
	"github.com/whisper/chillbot/internal/warnings"
)

// Decision reasons.
const (
	ReasonBannedWord       = "banned_word"
	ReasonRepeatSpam       = "repeat_spam"
	ReasonMultipleWarnings = "multiple_warnings"
)

// Kind is the disposition of a message.
type Kind int

const (
	// Allow lets the message through untouched.
	Allow Kind = iota
	// DeleteAndWarn removes the message and records a warning.
	DeleteAndWarn
	// SoftFlag keeps the message but posts a flag notice.
	SoftFlag
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case DeleteAndWarn:
		return "delete_and_warn"
	case SoftFlag:
		return "soft_flag"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating one message.
type Decision struct {
	Kind     Kind
	Reason   string
	Term     string // matched banned entry, for ReasonBannedWord
	Warnings int    // author's warning count after evaluation

	// Flag is set on a DeleteAndWarn when the author has reached the flag
	// threshold: the flag notice is posted alongside the warning.
	Flag bool
}

// Config holds the moderation thresholds.
type Config struct {
	HistoryLimit    int           // channel messages inspected for repeats
	RepeatThreshold int           // identical messages tolerated in the history
	FlagThreshold   int           // warnings at which the flag notice starts
	RateWindow      time.Duration // span of the recent-message window
	RateLimit       int           // messages per window before a rate signal
}

// DefaultConfig returns the thresholds the bot ships with.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:    10,
		RepeatThreshold: 3,
		FlagThreshold:   3,
		RateWindow:      10 * time.Second,
		RateLimit:       5,
	}
}

// Engine applies the moderation rules in order, first match wins:
//
//  1. banned word        -> DeleteAndWarn, +1 warning
//  2. repeated content   -> DeleteAndWarn, +1 warning
//  3. warnings >= flag   -> SoftFlag, no increment
//  4. otherwise          -> Allow
//
// Warnings are written through the ledger, whose mutex serializes updates
// to the same user from concurrent evaluations.
type Engine struct {
	filter *Filter
	ledger *warnings.Ledger
	window Window
	config Config
	logger *zap.Logger
}

// NewEngine creates an Engine. A nil window disables the rate signal.
func NewEngine(filter *Filter, ledger *warnings.Ledger, window Window, config Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		filter: filter,
		ledger: ledger,
		window: window,
		config: config,
		logger: logger,
	}
}

// HistoryLimit is how many recent channel messages Evaluate wants.
func (e *Engine) HistoryLimit() int {
	return e.config.HistoryLimit
}

// Evaluate decides what to do with msg. history holds the text of the most
// recent channel messages; pass nil when the history could not be fetched
// and the repeat rule will not fire.
func (e *Engine) Evaluate(ctx context.Context, msg platform.Message, history []string) Decision {
	if res := e.filter.Check(msg.Content); res.Blocked {
		d := e.warn(ctx, msg, ReasonBannedWord)
		d.Term = res.Term
		return d
	}

	e.recordActivity(ctx, msg)

	if IsRepeatSpam(history, msg.Content, e.config.RepeatThreshold) {
		return e.warn(ctx, msg, ReasonRepeatSpam)
	}

	n := e.ledger.Count(msg.AuthorID)
	if n >= e.config.FlagThreshold {
		return Decision{Kind: SoftFlag, Reason: ReasonMultipleWarnings, Warnings: n}
	}
	return Decision{Kind: Allow, Warnings: n}
}

// warn records a warning and builds the DeleteAndWarn decision. A failed
// write is logged; the in-memory count stands.
func (e *Engine) warn(ctx context.Context, msg platform.Message, reason string) Decision {
	n, err := e.ledger.Increment(ctx, msg.AuthorID)
	if err != nil {
		e.logger.Warn("failed to persist warning ledger",
			zap.String("user_id", msg.AuthorID), zap.Error(err))
	}
	metrics.WarningsIssued.Inc()
	e.logger.Info("warning issued",
		zap.String("user_id", msg.AuthorID),
		zap.String("channel_id", msg.ChannelID),
		zap.String("reason", reason),
		zap.Int("warnings", n))

	return Decision{
		Kind:     DeleteAndWarn,
		Reason:   reason,
		Warnings: n,
		Flag:     n >= e.config.FlagThreshold,
	}
}

// recordActivity appends msg to the author's recent-message window. Bursts
// above the rate limit are logged and counted but never change a decision.
func (e *Engine) recordActivity(ctx context.Context, msg platform.Message) {
	if e.window == nil {
		return
	}
	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	n, err := e.window.Record(ctx, msg.AuthorID, at)
	if err != nil {
		e.logger.Debug("recent-message window unavailable", zap.Error(err))
		return
	}
	if n > e.config.RateLimit {
		metrics.RateSignals.Inc()
		e.logger.Debug("user above burst limit",
			zap.String("user_id", msg.AuthorID),
			zap.Int("messages", n),
			zap.Duration("window", e.config.RateWindow))
	}
}
