package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DISCORD_TOKEN", "OPENAI_API_KEY", "COMPLETION_API_KEY",
		"CHILLBOT_DISCORD_TOKEN", "CHILLBOT_COMPLETION_API_KEY",
		"CHILLBOT_BOT_PREFIX", "CHILLBOT_BOT_TRIGGERS",
		"CHILLBOT_MODERATION_BANNED_WORDS", "CHILLBOT_COMPLETION_TIMEOUT",
		"CHILLBOT_COMPLETION_PROVIDER", "CHILLBOT_REDIS_ADDR",
		"CHILLBOT_MODERATION_HISTORY_LIMIT",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := Load(New())
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, "!", c.Prefix)
	assert.Equal(t, []string{"ai", "ask", "fix", "scripthelp"}, c.Triggers)
	assert.Equal(t, d.BannedWords, c.BannedWords)
	assert.Equal(t, "warnings.json", c.WarningsFile)
	assert.Equal(t, d.Moderation, c.Moderation)
	assert.Equal(t, "openai", c.Completion.Provider)
	assert.Equal(t, "gpt-3.5-turbo", c.Completion.Model)
	assert.Equal(t, 600, c.Completion.MaxTokens)
	assert.InDelta(t, 0.6, c.Completion.Temperature, 0.0001)
	assert.Zero(t, c.Completion.Timeout)
	assert.Empty(t, c.RedisAddr)
	assert.Empty(t, c.NATSURL)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", " tok ")
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("CHILLBOT_BOT_PREFIX", "?")
	t.Setenv("CHILLBOT_BOT_TRIGGERS", "ai, help")
	t.Setenv("CHILLBOT_MODERATION_BANNED_WORDS", "idiotword1,idiotword2")
	t.Setenv("CHILLBOT_COMPLETION_TIMEOUT", "45s")
	t.Setenv("CHILLBOT_COMPLETION_PROVIDER", "Gemini")
	t.Setenv("CHILLBOT_REDIS_ADDR", "localhost:6379")

	c, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "tok", c.DiscordToken)
	assert.Equal(t, "sk-1", c.Completion.APIKey)
	assert.Equal(t, "?", c.Prefix)
	assert.Equal(t, []string{"ai", "help"}, c.Triggers)
	assert.Equal(t, []string{"idiotword1", "idiotword2"}, c.BannedWords)
	assert.Equal(t, 45*time.Second, c.Completion.Timeout)
	assert.Equal(t, "gemini", c.Completion.Provider)
	assert.Equal(t, "localhost:6379", c.RedisAddr)
	assert.NoError(t, c.Validate())
}

func TestLoad_APIKeyAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMPLETION_API_KEY", "alias-key")

	c, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "alias-key", c.Completion.APIKey)
}

func TestLoad_Flags(t *testing.T) {
	clearEnv(t)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("warnings-file", "", "")
	flags.String("log-level", "", "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--warnings-file=/tmp/w.json", "--log-level=debug"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/w.json", c.WarningsFile)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHILLBOT_MODERATION_HISTORY_LIMIT", "0")

	_, err := Load(New())
	assert.ErrorContains(t, err, "history_limit")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		key     string
		wantErr bool
	}{
		{"both set", "tok", "key", false},
		{"missing token", "", "key", true},
		{"missing key", "tok", "", true},
		{"both missing", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.DiscordToken = tt.token
			c.Completion.APIKey = tt.key

			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingCredential)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCompletion_IgnoresDiscordToken(t *testing.T) {
	c := Default()
	c.Completion.APIKey = "key"

	assert.NoError(t, c.ValidateCompletion())
	assert.ErrorIs(t, c.Validate(), ErrMissingCredential)
}
