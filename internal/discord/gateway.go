package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/metrics"
	"github.com/whisper/chillbot/internal/platform"
)

// DefaultGatewayURL is the v10 JSON gateway.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Handler receives every MESSAGE_CREATE event, one at a time, in gateway
// order. It runs on its own goroutine so a slow handler never holds up
// heartbeat acknowledgements on the reader.
type Handler func(ctx context.Context, msg platform.Message)

// GatewayConfig holds gateway connection settings.
type GatewayConfig struct {
	URL              string
	Intents          int
	ReconnectDelay   time.Duration // pause between sessions
	QueueSize        int           // messages read ahead of the handler
	HandshakeTimeout time.Duration
}

// DefaultGatewayConfig returns sensible defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		URL:              DefaultGatewayURL,
		Intents:          defaultIntents,
		ReconnectDelay:   5 * time.Second,
		QueueSize:        256,
		HandshakeTimeout: 10 * time.Second,
	}
}

// FatalError is a gateway close the bot must not reconnect after, such as an
// invalid token.
type FatalError struct {
	Code   ws.StatusCode
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("discord: gateway closed with %d: %s", e.Code, e.Reason)
}

// fatalCloseCodes are the gateway close codes that forbid reconnecting.
var fatalCloseCodes = map[ws.StatusCode]bool{
	4004: true, // authentication failed
	4010: true, // invalid shard
	4011: true, // sharding required
	4012: true, // invalid API version
	4013: true, // invalid intents
	4014: true, // disallowed intents
}

var errReconnect = errors.New("discord: reconnect requested")

// Gateway keeps one websocket session to Discord open, resuming or
// re-identifying after drops, and feeds inbound messages to a Handler.
type Gateway struct {
	token   string
	config  GatewayConfig
	handler Handler
	logger  *zap.Logger
	onReady func(botID string)

	// writeMu serializes every frame written to conn: heartbeats, identify,
	// and pong replies issued by the reader.
	writeMu sync.Mutex
	conn    net.Conn

	mu        sync.Mutex
	seq       int64
	sessionID string
	resumeURL string
	botID     string

	acked atomic.Bool
}

// NewGateway creates a Gateway. Call Run to connect.
func NewGateway(token string, config GatewayConfig, handler Handler, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		token:   token,
		config:  config,
		handler: handler,
		logger:  logger,
	}
}

// OnReady registers fn to be called with the bot's user ID after each READY.
func (g *Gateway) OnReady(fn func(botID string)) {
	g.mu.Lock()
	g.onReady = fn
	g.mu.Unlock()
}

// BotID returns the bot's user ID, empty until the first READY.
func (g *Gateway) BotID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.botID
}

// Run holds a gateway session open until ctx is cancelled, reconnecting
// after drops. It returns nil on cancellation and a *FatalError when Discord
// rejects the session for good. The handler has returned by the time Run
// does; messages still queued at cancellation are dropped.
func (g *Gateway) Run(ctx context.Context) error {
	workCtx, stop := context.WithCancel(ctx)
	queue := make(chan platform.Message, max(g.config.QueueSize, 1))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.work(workCtx, queue)
	}()
	defer func() {
		stop()
		wg.Wait()
	}()

	for {
		err := g.session(ctx, queue)
		metrics.GatewayConnected.Set(0)
		if ctx.Err() != nil {
			return nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			return err
		}
		if err != nil && !errors.Is(err, errReconnect) {
			g.logger.Warn("gateway session ended", zap.Error(err))
		} else {
			g.logger.Info("gateway reconnecting")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(g.config.ReconnectDelay):
		}
	}
}

// work feeds queued messages to the handler in order.
func (g *Gateway) work(ctx context.Context, queue <-chan platform.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			if g.handler != nil {
				g.handler(ctx, msg)
			}
		}
	}
}

// session runs one connection from dial to drop.
func (g *Gateway) session(ctx context.Context, queue chan<- platform.Message) error {
	g.mu.Lock()
	url := g.config.URL
	resume := g.sessionID != ""
	if resume && g.resumeURL != "" {
		url = g.resumeURL + "/?v=10&encoding=json"
	}
	g.mu.Unlock()

	dialer := ws.Dialer{Timeout: g.config.HandshakeTimeout}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("discord: dial gateway: %w", err)
	}

	g.writeMu.Lock()
	g.conn = conn
	g.writeMu.Unlock()

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
		g.writeMu.Lock()
		g.conn = nil
		g.writeMu.Unlock()
	}()

	// Unblock the reader when the session is cancelled.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		conn.Close()
	}()

	rw := &readConn{Conn: conn, r: conn, writeMu: &g.writeMu}
	if br != nil {
		rw.r = br
	}

	hello, err := g.read(rw)
	if err != nil {
		return err
	}
	if hello.Op != opHello {
		return fmt.Errorf("discord: expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil || hd.HeartbeatInterval <= 0 {
		return fmt.Errorf("discord: bad hello payload: %s", hello.D)
	}

	g.acked.Store(true)
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.heartbeat(sessCtx, time.Duration(hd.HeartbeatInterval)*time.Millisecond)
	}()

	if resume {
		err = g.sendResume()
	} else {
		err = g.sendIdentify()
	}
	if err != nil {
		return err
	}

	for {
		p, err := g.read(rw)
		if err != nil {
			return err
		}
		if p.S != nil {
			g.mu.Lock()
			g.seq = *p.S
			g.mu.Unlock()
		}

		switch p.Op {
		case opDispatch:
			g.dispatch(sessCtx, p, queue)
		case opHeartbeat:
			if err := g.sendHeartbeat(); err != nil {
				return err
			}
		case opHeartbeatAck:
			g.acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.mu.Lock()
				g.sessionID = ""
				g.resumeURL = ""
				g.seq = 0
				g.mu.Unlock()
			}
			g.logger.Warn("gateway session invalidated", zap.Bool("resumable", resumable))
			return errReconnect
		}
	}
}

// read returns the next text payload, mapping close frames to errors.
func (g *Gateway) read(rw io.ReadWriter) (payload, error) {
	data, err := wsutil.ReadServerText(rw)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) && fatalCloseCodes[closed.Code] {
			return payload{}, &FatalError{Code: closed.Code, Reason: closed.Reason}
		}
		return payload{}, fmt.Errorf("discord: read gateway: %w", err)
	}
	return decodePayload(data)
}

func (g *Gateway) dispatch(ctx context.Context, p payload, queue chan<- platform.Message) {
	switch p.T {
	case eventReady:
		var ready readyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			g.logger.Error("bad READY payload", zap.Error(err))
			return
		}
		g.mu.Lock()
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL
		g.botID = ready.User.ID
		onReady := g.onReady
		g.mu.Unlock()

		metrics.GatewayConnected.Set(1)
		g.logger.Info("gateway ready",
			zap.String("user", ready.User.Username),
			zap.String("user_id", ready.User.ID))
		if onReady != nil {
			onReady(ready.User.ID)
		}

	case eventResumed:
		metrics.GatewayConnected.Set(1)
		g.logger.Info("gateway session resumed")

	case eventMessageCreate:
		var msg message
		if err := json.Unmarshal(p.D, &msg); err != nil {
			g.logger.Warn("bad MESSAGE_CREATE payload", zap.Error(err))
			return
		}
		// A full queue blocks the reader rather than dropping a message
		// that still has to be moderated.
		select {
		case queue <- msg.toPlatform(""):
		case <-ctx.Done():
		}
	}
}

// heartbeat sends op 1 every interval. A heartbeat that was never
// acknowledged means the connection is dead: close it so the session
// reconnects.
func (g *Gateway) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !g.acked.Swap(false) {
				g.logger.Warn("gateway heartbeat not acknowledged, reconnecting")
				g.closeConn()
				return
			}
			if err := g.sendHeartbeat(); err != nil {
				g.logger.Warn("gateway heartbeat failed", zap.Error(err))
				g.closeConn()
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat() error {
	g.mu.Lock()
	seq := g.seq
	g.mu.Unlock()

	var d any
	if seq > 0 {
		d = seq
	}
	return g.send(opHeartbeat, d)
}

func (g *Gateway) sendIdentify() error {
	return g.send(opIdentify, identifyData{
		Token:   g.token,
		Intents: g.config.Intents,
		Properties: map[string]string{
			"os": "linux", "browser": "chillbot", "device": "chillbot",
		},
	})
}

func (g *Gateway) sendResume() error {
	g.mu.Lock()
	d := resumeData{Token: g.token, SessionID: g.sessionID, Seq: g.seq}
	g.mu.Unlock()
	return g.send(opResume, d)
}

func (g *Gateway) send(op int, d any) error {
	data, err := newPayload(op, d)
	if err != nil {
		return err
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if g.conn == nil {
		return errors.New("discord: gateway not connected")
	}
	if err := wsutil.WriteClientText(g.conn, data); err != nil {
		return fmt.Errorf("discord: write op %d: %w", op, err)
	}
	return nil
}

func (g *Gateway) closeConn() {
	g.writeMu.Lock()
	if g.conn != nil {
		g.conn.Close()
	}
	g.writeMu.Unlock()
}

// readConn reads through the handshake's buffered reader, if any, and takes
// the write mutex for control-frame replies written while reading.
type readConn struct {
	net.Conn
	r       io.Reader
	writeMu *sync.Mutex
}

func (c *readConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *readConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.Write(p)
}
