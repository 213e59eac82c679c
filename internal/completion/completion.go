// Package completion talks to the language-model completion API. It picks a
// persona by language, sends one prompt, and returns the reply text. Callers
// turn any error into FallbackReply.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/whisper/chillbot/internal/metrics"
)

// Providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// MaxReplyChars is the longest single message the bot sends.
const MaxReplyChars = 1900

// FallbackReply is sent when the completion API could not be reached.
const FallbackReply = "Sorry, I could not reach the assistant right now. Try again later."

// Personas, one per language tag.
const (
	personaEnglish = "You are a chill friendly Discord assistant. Keep replies brief, helpful, and friendly."
	personaArabic  = "You are a chill friendly Arabic-speaking Discord assistant. Reply in Arabic, friendly and concise."
)

var (
	ErrNoAPIKey   = errors.New("completion: API key not configured")
	ErrEmptyReply = errors.New("completion: empty reply")
)

// Client produces a reply for prompt in the persona for lang ("en", "ar").
type Client interface {
	Complete(ctx context.Context, prompt, lang string) (string, error)
}

// Config selects and tunes the backend.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration // 0 means no deadline
}

// DefaultConfig returns the OpenAI backend with the bot's fixed parameters.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-3.5-turbo",
		MaxTokens:   600,
		Temperature: 0.6,
	}
}

// DefaultGeminiModel is used when the Gemini provider has no model set.
const DefaultGeminiModel = "gemini-2.0-flash"

// New builds the Client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("completion: unknown provider %q", cfg.Provider)
	}
}

// Persona returns the system prompt for lang.
func Persona(lang string) string {
	if lang == "ar" {
		return personaArabic
	}
	return personaEnglish
}

// Split cuts text into chunks of at most limit runes at fixed boundaries.
// Words and code blocks may be split across chunks.
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Instrumented wraps a Client with latency, error and in-flight metrics and
// the optional per-call timeout.
type Instrumented struct {
	next    Client
	timeout time.Duration
}

// NewInstrumented wraps next. timeout <= 0 leaves calls without a deadline.
func NewInstrumented(next Client, timeout time.Duration) *Instrumented {
	return &Instrumented{next: next, timeout: timeout}
}

func (c *Instrumented) Complete(ctx context.Context, prompt, lang string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	metrics.CompletionsInFlight.Inc()
	defer metrics.CompletionsInFlight.Dec()

	start := time.Now()
	reply, err := c.next.Complete(ctx, prompt, lang)
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		metrics.CompletionErrors.Inc()
		return "", err
	}
	return reply, nil
}
