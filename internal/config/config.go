// Package config loads chillbot settings from flags, CHILLBOT_* environment
// variables and the two credential variables DISCORD_TOKEN and
// OPENAI_API_KEY.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/whisper/chillbot/internal/completion"
	"github.com/whisper/chillbot/internal/moderation"
	"github.com/whisper/chillbot/internal/router"
	"github.com/whisper/chillbot/internal/warnings"
)

// EnvPrefix namespaces the optional settings in the environment.
const EnvPrefix = "CHILLBOT"

// ErrMissingCredential is returned by Validate when a required secret is not
// set. Startup aborts on it.
var ErrMissingCredential = errors.New("config: missing credential")

// Config is the full bot configuration.
type Config struct {
	DiscordToken string

	Prefix      string
	Triggers    []string
	BannedWords []string

	WarningsFile string
	Moderation   moderation.Config
	Completion   completion.Config

	RedisAddr   string // empty disables Redis
	NATSURL     string // empty disables incident fan-out
	PostgresDSN string // auditor only
	MetricsAddr string // empty disables the metrics listener

	LogLevel   string
	LogConsole bool
}

// Default returns the configuration the bot ships with.
func Default() Config {
	return Config{
		Prefix:       router.DefaultPrefix,
		Triggers:     append([]string(nil), router.DefaultTriggers...),
		BannedWords:  append([]string(nil), moderation.DefaultBannedWords...),
		WarningsFile: warnings.DefaultFile,
		Moderation:   moderation.DefaultConfig(),
		Completion:   completion.DefaultConfig(),
		PostgresDSN:  "postgres://localhost:5432/chillbot?sslmode=disable",
		MetricsAddr:  ":9090",
		LogLevel:     "info",
	}
}

// Keys, in viper dot notation. The environment form is CHILLBOT_ plus the
// key upper-cased with dots replaced by underscores.
const (
	KeyDiscordToken = "discord.token"
	KeyPrefix       = "bot.prefix"
	KeyTriggers     = "bot.triggers"
	KeyBannedWords  = "moderation.banned_words"
	KeyWarningsFile = "warnings.file"
	KeyHistoryLimit = "moderation.history_limit"
	KeyRepeat       = "moderation.repeat_threshold"
	KeyFlag         = "moderation.flag_threshold"
	KeyRateWindow   = "moderation.rate_window"
	KeyRateLimit    = "moderation.rate_limit"
	KeyProvider     = "completion.provider"
	KeyAPIKey       = "completion.api_key"
	KeyBaseURL      = "completion.base_url"
	KeyModel        = "completion.model"
	KeyMaxTokens    = "completion.max_tokens"
	KeyTemperature  = "completion.temperature"
	KeyTimeout      = "completion.timeout"
	KeyRedisAddr    = "redis.addr"
	KeyNATSURL      = "nats.url"
	KeyPostgresDSN  = "postgres.dsn"
	KeyMetricsAddr  = "metrics.addr"
	KeyLogLevel     = "log.level"
	KeyLogConsole   = "log.console"
)

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(KeyPrefix, d.Prefix)
	v.SetDefault(KeyTriggers, d.Triggers)
	v.SetDefault(KeyBannedWords, d.BannedWords)
	v.SetDefault(KeyWarningsFile, d.WarningsFile)
	v.SetDefault(KeyHistoryLimit, d.Moderation.HistoryLimit)
	v.SetDefault(KeyRepeat, d.Moderation.RepeatThreshold)
	v.SetDefault(KeyFlag, d.Moderation.FlagThreshold)
	v.SetDefault(KeyRateWindow, d.Moderation.RateWindow)
	v.SetDefault(KeyRateLimit, d.Moderation.RateLimit)
	v.SetDefault(KeyProvider, d.Completion.Provider)
	v.SetDefault(KeyBaseURL, d.Completion.BaseURL)
	v.SetDefault(KeyModel, d.Completion.Model)
	v.SetDefault(KeyMaxTokens, d.Completion.MaxTokens)
	v.SetDefault(KeyTemperature, d.Completion.Temperature)
	v.SetDefault(KeyTimeout, d.Completion.Timeout)
	v.SetDefault(KeyPostgresDSN, d.PostgresDSN)
	v.SetDefault(KeyMetricsAddr, d.MetricsAddr)
	v.SetDefault(KeyLogLevel, d.LogLevel)

	// The credentials keep their conventional unprefixed names.
	_ = v.BindEnv(KeyDiscordToken, "DISCORD_TOKEN", EnvPrefix+"_DISCORD_TOKEN")
	_ = v.BindEnv(KeyAPIKey, "OPENAI_API_KEY", "COMPLETION_API_KEY", EnvPrefix+"_COMPLETION_API_KEY")
	return v
}

// BindFlags binds the command-line flags a command defines to their keys.
// Flags not listed in flagKeys are left alone.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	return nil
}

var flagKeys = map[string]string{
	"prefix":        KeyPrefix,
	"triggers":      KeyTriggers,
	"banned-words":  KeyBannedWords,
	"warnings-file": KeyWarningsFile,
	"provider":      KeyProvider,
	"model":         KeyModel,
	"redis-addr":    KeyRedisAddr,
	"nats-url":      KeyNATSURL,
	"postgres-dsn":  KeyPostgresDSN,
	"metrics-addr":  KeyMetricsAddr,
	"log-level":     KeyLogLevel,
	"log-console":   KeyLogConsole,
}

// Load reads the configuration out of v.
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		DiscordToken: strings.TrimSpace(v.GetString(KeyDiscordToken)),
		Prefix:       v.GetString(KeyPrefix),
		Triggers:     stringList(v, KeyTriggers),
		BannedWords:  stringList(v, KeyBannedWords),
		WarningsFile: v.GetString(KeyWarningsFile),
		Moderation: moderation.Config{
			HistoryLimit:    v.GetInt(KeyHistoryLimit),
			RepeatThreshold: v.GetInt(KeyRepeat),
			FlagThreshold:   v.GetInt(KeyFlag),
			RateWindow:      v.GetDuration(KeyRateWindow),
			RateLimit:       v.GetInt(KeyRateLimit),
		},
		Completion: completion.Config{
			Provider:    strings.ToLower(v.GetString(KeyProvider)),
			APIKey:      strings.TrimSpace(v.GetString(KeyAPIKey)),
			BaseURL:     v.GetString(KeyBaseURL),
			Model:       v.GetString(KeyModel),
			MaxTokens:   v.GetInt(KeyMaxTokens),
			Temperature: float32(v.GetFloat64(KeyTemperature)),
			Timeout:     v.GetDuration(KeyTimeout),
		},
		RedisAddr:   v.GetString(KeyRedisAddr),
		NATSURL:     v.GetString(KeyNATSURL),
		PostgresDSN: v.GetString(KeyPostgresDSN),
		MetricsAddr: v.GetString(KeyMetricsAddr),
		LogLevel:    v.GetString(KeyLogLevel),
		LogConsole:  v.GetBool(KeyLogConsole),
	}

	if c.Prefix == "" {
		return c, fmt.Errorf("config: %s must not be empty", KeyPrefix)
	}
	if c.Moderation.HistoryLimit <= 0 {
		return c, fmt.Errorf("config: %s must be positive, got %d", KeyHistoryLimit, c.Moderation.HistoryLimit)
	}
	if c.Moderation.RateWindow <= 0 {
		return c, fmt.Errorf("config: %s must be positive, got %s", KeyRateWindow, c.Moderation.RateWindow)
	}
	if c.Completion.Timeout < 0 {
		c.Completion.Timeout = 0
	}
	return c, nil
}

// Validate checks the credentials the bot cannot start without.
func (c Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("%w: DISCORD_TOKEN", ErrMissingCredential)
	}
	return c.ValidateCompletion()
}

// ValidateCompletion checks only the completion API key, for modes that do
// not connect to Discord.
func (c Config) ValidateCompletion() error {
	if c.Completion.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredential)
	}
	return nil
}

// stringList reads a list that may come from a default slice, a repeated
// flag or a comma-separated environment variable.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Summary lists the effective settings without secrets, for the startup log.
func (c Config) Summary() map[string]string {
	return map[string]string{
		"prefix":        c.Prefix,
		"triggers":      strings.Join(c.Triggers, ","),
		"banned_words":  fmt.Sprint(len(c.BannedWords)),
		"warnings_file": c.WarningsFile,
		"provider":      c.Completion.Provider,
		"model":         c.Completion.Model,
		"timeout":       durationOrNone(c.Completion.Timeout),
		"redis_addr":    c.RedisAddr,
		"nats_url":      c.NATSURL,
		"metrics_addr":  c.MetricsAddr,
	}
}

func durationOrNone(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
