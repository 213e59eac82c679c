package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/config"
)

func TestConsoleMessage(t *testing.T) {
	consoleOpts.user = "42"

	plain := consoleMessage("hello there", consoleGuild)
	assert.Equal(t, "hello there", plain.Content)
	assert.Empty(t, plain.Mentions)
	assert.Equal(t, "42", plain.AuthorID)
	assert.False(t, plain.IsDirect())

	mentioned := consoleMessage("@chillbot what's up", consoleGuild)
	assert.Equal(t, "<@1> what's up", mentioned.Content)
	assert.True(t, mentioned.MentionsUser(consoleBotID))

	dm := consoleMessage("hi", "")
	assert.True(t, dm.IsDirect())
}

func TestConsoleConfig(t *testing.T) {
	base := config.Default()
	base.WarningsFile = "warnings.json"
	base.RedisAddr = "redis:6379"
	base.NATSURL = "nats://nats:4222"

	tests := []struct {
		name    string
		changed []string
		file    string
		redis   string
		nats    string
	}{
		{"nothing given", nil, "", "", ""},
		{"warnings file given", []string{"warnings-file"}, "warnings.json", "", ""},
		{"all given", []string{"warnings-file", "redis-addr", "nats-url"}, "warnings.json", "redis:6379", "nats://nats:4222"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := func(name string) bool {
				for _, c := range tt.changed {
					if c == name {
						return true
					}
				}
				return false
			}

			got := consoleConfig(base, changed)

			assert.Equal(t, tt.file, got.WarningsFile)
			assert.Equal(t, tt.redis, got.RedisAddr)
			assert.Equal(t, tt.nats, got.NATSURL)
			assert.Equal(t, base.Prefix, got.Prefix)
		})
	}
	assert.Equal(t, "warnings.json", base.WarningsFile)
}

func TestOpenLedger_MemoryOnlyWritesNothing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	ctx := context.Background()

	ledger := openLedger(ctx, consoleConfig(config.Default(), func(string) bool { return false }), nil, zap.NewNop())
	n, err := ledger.Increment(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, ledger.Flush(ctx))

	assert.Equal(t, 1, n)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenLedger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warnings.json")
	cfg := config.Default()
	cfg.WarningsFile = path
	ctx := context.Background()

	ledger := openLedger(ctx, cfg, nil, zap.NewNop())
	_, err := ledger.Increment(ctx, "42")
	require.NoError(t, err)

	assert.FileExists(t, path)
}
