// Package transport maintains the single persistent websocket connection to
// the transcription backend: audio chunks out, transcript events in.
package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meetscribe/meetscribe/internal/audio"
)

type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// TranscriptEvent is one inbound transcription message, already unwrapped
// from the wire envelope. ServerID is nil when the backend did not assign
// an id.
type TranscriptEvent struct {
	Speaker  string
	Text     string
	ServerID *int64
}

// Handler receives inbound transcript events. A single handler is invoked
// once per message, on the read goroutine.
type Handler func(TranscriptEvent)

// Hooks let the owner observe transport health without coupling this
// package to a metrics backend. All fields are optional.
type Hooks struct {
	OnSendDropped func()
	OnReconnect   func()
	OnStateChange func(State)
}

type Config struct {
	Endpoint          string
	SampleRate        int
	ReconnectDelay    time.Duration // initial backoff after a drop
	ReconnectMaxDelay time.Duration // backoff cap
	PingInterval      time.Duration
	WriteTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Endpoint:          "ws://localhost:8000/ws",
		SampleRate:        16000,
		ReconnectDelay:    3 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		PingInterval:      15 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Client is one logical connection with auto-reconnect. It is constructed by
// the daemon and handed to whatever needs it; there is no package-level
// instance.
type Client struct {
	cfg   Config
	hooks Hooks

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	handler Handler

	writeMu sync.Mutex

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

func NewClient(cfg Config, hooks Hooks) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	return &Client{
		cfg:        cfg,
		hooks:      hooks,
		state:      StateClosed,
		shutdownCh: make(chan struct{}),
	}
}

// OnMessage registers the single inbound handler. Must be called before Run.
func (c *Client) OnMessage(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run starts the connect/read/reconnect loop and returns immediately.
func (c *Client) Run(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Shutdown stops reconnection, closes any open connection and waits for the
// loop to exit. The client stays closed permanently afterwards.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// Send forwards one chunk if the connection is open. Chunks sent while
// connecting or closed are dropped, never queued: the delivery policy is
// at-most-once and audio loss during an outage is acceptable.
func (c *Client) Send(chunk audio.Chunk, source string) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		if c.hooks.OnSendDropped != nil {
			c.hooks.OnSendDropped()
		}
		return
	}

	msg := audioMessage{
		Type:        "audio",
		AudioBuffer: chunk.Samples,
		SampleRate:  c.cfg.SampleRate,
		Source:      source,
		Level:       chunk.Peak,
		Timestamp:   chunk.CapturedAt.UnixMilli(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("transport: send failed: %v", err)
		// The read loop notices the dead connection and reconnects.
		_ = conn.Close()
	}
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.setState(StateClosed)

	delay := c.cfg.ReconnectDelay

	for {
		if c.done(ctx) {
			return
		}

		c.setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.Endpoint, nil)
		if err != nil {
			log.Printf("transport: dial %s failed: %v, retrying in %v", c.cfg.Endpoint, err, delay)
			if !c.sleep(ctx, delay) {
				return
			}
			delay = c.nextDelay(delay)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateOpen)
		delay = c.cfg.ReconnectDelay
		log.Printf("transport: connected to %s", c.cfg.Endpoint)

		pingDone := make(chan struct{})
		go c.pingLoop(conn, pingDone)

		c.readLoop(conn)

		close(pingDone)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(StateClosed)

		if c.done(ctx) {
			return
		}

		log.Printf("transport: connection lost, reconnecting in %v", delay)
		if c.hooks.OnReconnect != nil {
			c.hooks.OnReconnect()
		}
		if !c.sleep(ctx, delay) {
			return
		}
		delay = c.nextDelay(delay)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	readWait := c.cfg.PingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("transport: read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		c.dispatch(payload)
	}
}

// pingLoop keeps the send side honest: a peer that stops answering pings
// trips the read deadline and forces a reconnect.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.shutdownCh:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Printf("transport: ping failed: %v", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(s)
	}
}

func (c *Client) nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > c.cfg.ReconnectMaxDelay {
		delay = c.cfg.ReconnectMaxDelay
	}
	return delay
}

func (c *Client) done(ctx context.Context) bool {
	select {
	case <-c.shutdownCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for the backoff delay; returns false when shut down.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.shutdownCh:
		return false
	case <-ctx.Done():
		return false
	}
}
