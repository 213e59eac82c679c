package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/whisper/chillbot/internal/platform"
)

// DefaultAPIBase is the v10 REST API root.
const DefaultAPIBase = "https://discord.com/api/v10"

// Permission bits.
const (
	permAdministrator  uint64 = 1 << 3
	permManageMessages uint64 = 1 << 13
)

var permissionBits = map[platform.Permission]uint64{
	platform.PermManageMessages: permManageMessages,
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord: %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

// RESTConfig holds REST client settings.
type RESTConfig struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int           // guilds and members kept for permission checks
	CacheTTL  time.Duration // how long a cached role set is trusted
}

// DefaultRESTConfig returns sensible defaults.
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		BaseURL:   DefaultAPIBase,
		Timeout:   10 * time.Second,
		CacheSize: 512,
		CacheTTL:  time.Minute,
	}
}

// REST implements platform.Platform over the Discord HTTP API.
type REST struct {
	token   string
	baseURL string
	client  *http.Client
	guilds  *expirable.LRU[string, guild]
	members *expirable.LRU[string, member]
}

var _ platform.Platform = (*REST)(nil)

// NewREST creates a REST client authenticated as the bot.
func NewREST(token string, config RESTConfig) *REST {
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultRESTConfig().CacheSize
	}
	return &REST{
		token:   token,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  &http.Client{Timeout: config.Timeout},
		guilds:  expirable.NewLRU[string, guild](config.CacheSize, nil, config.CacheTTL),
		members: expirable.NewLRU[string, member](config.CacheSize, nil, config.CacheTTL),
	}
}

// DeleteMessage implements platform.Platform.
func (r *REST) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return r.do(ctx, http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, nil, nil)
}

// SendMessage implements platform.Platform. Only user mentions in content
// ping; @everyone and role mentions are suppressed.
func (r *REST) SendMessage(ctx context.Context, channelID, content string) error {
	body := createMessage{
		Content:         content,
		AllowedMentions: allowedMentions{Parse: []string{"users"}},
	}
	return r.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body, nil)
}

// Reply implements platform.Platform. The replied-to author is not pinged,
// and the reply is sent as a plain message if the original is gone.
func (r *REST) Reply(ctx context.Context, channelID, messageID, content string) error {
	failIfMissing := false
	body := createMessage{
		Content:         content,
		AllowedMentions: allowedMentions{Parse: []string{"users"}, RepliedUser: false},
		MessageReference: &messageReference{
			MessageID:       messageID,
			FailIfNotExists: &failIfMissing,
		},
	}
	return r.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body, nil)
}

// FetchMessage implements platform.Platform.
func (r *REST) FetchMessage(ctx context.Context, channelID, messageID string) (*platform.Message, error) {
	var m message
	if err := r.do(ctx, http.MethodGet, "/channels/"+channelID+"/messages/"+messageID, nil, &m); err != nil {
		return nil, err
	}
	out := m.toPlatform("")
	return &out, nil
}

// History implements platform.Platform. Discord returns newest first and
// caps limit at 100.
func (r *REST) History(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	limit = max(1, min(limit, 100))
	var msgs []message
	path := "/channels/" + channelID + "/messages?limit=" + strconv.Itoa(limit)
	if err := r.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.toPlatform(""))
	}
	return out, nil
}

// HasPermission implements platform.Platform using the member's base guild
// permissions: the @everyone role plus every role the member holds. The
// guild owner and administrators hold every permission. Channel overwrites
// are not applied.
func (r *REST) HasPermission(ctx context.Context, guildID, userID string, perm platform.Permission) (bool, error) {
	if guildID == "" {
		return false, nil
	}
	bit, ok := permissionBits[perm]
	if !ok {
		return false, fmt.Errorf("discord: unknown permission %q", perm)
	}

	g, err := r.guild(ctx, guildID)
	if err != nil {
		return false, err
	}
	if g.OwnerID == userID {
		return true, nil
	}
	m, err := r.member(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	perms := basePermissions(g, m)
	if perms&permAdministrator != 0 {
		return true, nil
	}
	return perms&bit == bit, nil
}

func basePermissions(g guild, m member) uint64 {
	held := make(map[string]bool, len(m.Roles)+1)
	held[g.ID] = true // @everyone shares the guild's ID
	for _, id := range m.Roles {
		held[id] = true
	}

	var perms uint64
	for _, r := range g.Roles {
		if !held[r.ID] {
			continue
		}
		bits, err := strconv.ParseUint(r.Permissions, 10, 64)
		if err != nil {
			continue
		}
		perms |= bits
	}
	return perms
}

func (r *REST) guild(ctx context.Context, guildID string) (guild, error) {
	if g, ok := r.guilds.Get(guildID); ok {
		return g, nil
	}
	var g guild
	if err := r.do(ctx, http.MethodGet, "/guilds/"+guildID, nil, &g); err != nil {
		return guild{}, err
	}
	r.guilds.Add(guildID, g)
	return g, nil
}

func (r *REST) member(ctx context.Context, guildID, userID string) (member, error) {
	key := guildID + ":" + userID
	if m, ok := r.members.Get(key); ok {
		return m, nil
	}
	var m member
	if err := r.do(ctx, http.MethodGet, "/guilds/"+guildID+"/members/"+userID, nil, &m); err != nil {
		return member{}, err
	}
	r.members.Add(key, m)
	return m, nil
}

// do sends one API request. A 404 maps to platform.ErrNotFound; other
// failures come back as *APIError.
func (r *REST) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("discord: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/whisper/chillbot, 1.0)")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("discord: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", platform.ErrNotFound, method, path)
	}
	if resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("discord: decode %s %s: %w", method, path, err)
	}
	return nil
}
