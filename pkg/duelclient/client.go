// Package duelclient maintains one websocket per (duel, user) pair,
// folds the inbound frame stream into a duel state via the shared
// reducer, and caches code drafts in a namespaced store.
package duelclient

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/pkg/codestore"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/protocol"
)

const (
	defaultBaseURL       = "ws://localhost:8080"
	defaultPingInterval  = 30 * time.Second
	defaultReconnectBase = time.Second
	defaultReconnectCap  = 10 * time.Second
	defaultMaxReconnects = 3
	defaultDebounce      = 500 * time.Millisecond
	writeTimeout         = 3 * time.Second
)

type Options struct {
	// BaseURL of the duel service. Falls back to the DUELS_WS_URL
	// environment variable, then to ws://localhost:8080.
	BaseURL string

	// Store caches code drafts. Defaults to an in-memory store.
	Store codestore.Store

	// OnMessage fires after each applied frame with the folded state.
	OnMessage func(protocol.Message, duel.State)

	// OnStatus fires on every connection status change.
	OnStatus func(duel.ConnStatus)

	Logger *zap.Logger

	// Tuning knobs; zero values mean production defaults. Tests shrink
	// them to keep runs fast.
	PingInterval  time.Duration
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	MaxReconnects int
	Debounce      time.Duration
}

func (o *Options) withDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = os.Getenv("DUELS_WS_URL")
	}
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.Store == nil {
		o.Store = codestore.NewMemory()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = defaultReconnectBase
	}
	if o.ReconnectCap <= 0 {
		o.ReconnectCap = defaultReconnectCap
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = defaultMaxReconnects
	}
	if o.Debounce <= 0 {
		o.Debounce = defaultDebounce
	}
}

// Client is the duel-side connection wrapper. One Client serves exactly
// one (duelID, userID) pair; Close tears it down for good.
type Client struct {
	duelID string
	userID string
	opts   Options
	log    *zap.Logger
	saver  *codestore.Saver

	ctx     context.Context
	cancel  context.CancelFunc
	started sync.Once
	running bool
	done    chan struct{}

	mu     sync.RWMutex
	state  duel.State
	status duel.ConnStatus
	conn   *websocket.Conn
}

func New(duelID, userID string, opts Options) *Client {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		duelID: duelID,
		userID: userID,
		opts:   opts,
		log:    opts.Logger.With(zap.String("duel_id", duelID), zap.String("user_id", userID)),
		saver:  codestore.NewSaver(opts.Store, opts.Debounce),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  duel.NewState(),
		status: duel.ConnDisconnected,
	}
}

func (c *Client) url() string {
	return fmt.Sprintf("%s/api/v1/duels/ws/%s/%s", c.opts.BaseURL, c.duelID, c.userID)
}

// Connect starts the connection loop and returns immediately; progress is
// reported through the status callback.
func (c *Client) Connect() {
	c.started.Do(func() {
		c.mu.Lock()
		c.running = true
		c.mu.Unlock()
		go c.run()
	})
}

// Close tears the client down: the socket closes with a normal status and
// every timer (ping, reconnect, debounce) is stopped.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	c.saver.Close()
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if running {
		<-c.done
	}
}

// State returns the current folded duel state.
func (c *Client) State() duel.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) Status() duel.ConnStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SendCode pushes a code update to the opponent and schedules a debounced
// draft save, the way the editor persists on every keystroke.
func (c *Client) SendCode(code, language string) error {
	c.saver.Save(codestore.Key(c.duelID, language), code)
	return c.send(protocol.NewCodeUpdate(c.userID, code, language))
}

func (c *Client) SendTyping(typing bool) error {
	return c.send(protocol.NewTypingStatus(c.userID, typing))
}

// Draft returns the cached code for a language, if any survived.
func (c *Client) Draft(language string) (string, bool) {
	return c.opts.Store.Get(codestore.Key(c.duelID, language))
}

func (c *Client) send(m protocol.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("duelclient: not connected")
	}
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (c *Client) run() {
	defer close(c.done)
	attempts := 0

	for {
		c.setStatus(duel.ConnConnecting)
		conn, _, err := websocket.Dial(c.ctx, c.url(), nil)
		if err != nil {
			if c.ctx.Err() != nil {
				c.setStatus(duel.ConnDisconnected)
				return
			}
			c.log.Warn("dial failed", zap.Error(err))
			c.setStatus(duel.ConnError)
			if !c.backoff(&attempts) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.setStatus(duel.ConnConnected)

		terminal := c.readLoop(conn)
		c.setConn(nil)
		c.setStatus(duel.ConnDisconnected)

		if terminal || c.ctx.Err() != nil {
			return
		}
		if !c.backoff(&attempts) {
			c.setStatus(duel.ConnError)
			return
		}
	}
}

// backoff sleeps 1s, 2s, 4s (capped) before the next attempt and reports
// whether the retry budget allows one. The budget covers the whole client
// lifetime: a successful connect does not refill it.
func (c *Client) backoff(attempts *int) bool {
	if *attempts >= c.opts.MaxReconnects {
		return false
	}
	*attempts++
	delay := c.opts.ReconnectBase << (*attempts - 1)
	if delay > c.opts.ReconnectCap {
		delay = c.opts.ReconnectCap
	}
	select {
	case <-time.After(delay):
		return true
	case <-c.ctx.Done():
		return false
	}
}

// readLoop pumps frames until the socket dies. It reports whether the
// close was terminal (intentional close codes, or the client shutting
// down) so the caller knows not to reconnect.
func (c *Client) readLoop(conn *websocket.Conn) bool {
	pingCtx, stopPing := context.WithCancel(c.ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return true
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusCode(protocol.CloseNormal),
				websocket.StatusCode(protocol.CloseDuelOver):
				return true
			}
			return false
		}
		c.handleFrame(data)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, _ := protocol.NewPing(c.userID).Encode()
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			// Keepalive only; a failed ping surfaces via the read loop.
			_ = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
		}
	}
}

func (c *Client) handleFrame(data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("dropping bad frame", zap.Error(err))
		return
	}
	if m.Type == protocol.KindPong {
		return
	}

	ev, err := m.Event()
	if err != nil {
		c.log.Warn("dropping bad payload", zap.Error(err))
		return
	}

	c.mu.Lock()
	if ev != nil {
		next, aerr := duel.Apply(c.state, ev)
		if aerr != nil {
			c.mu.Unlock()
			c.log.Warn("reducer rejected frame", zap.Error(aerr))
			return
		}
		c.state = next
	}
	state := c.state
	c.mu.Unlock()

	switch m.Type {
	case protocol.KindDuelEnd:
		// The duel is over: drop pending draft writes and clear every
		// cached key for this duel.
		c.saver.Close()
		codestore.ClearDuel(c.opts.Store, c.duelID)
	case protocol.KindCodeUpdate, protocol.KindAIProgress:
		if m.UserID != "" && m.UserID != c.userID {
			if d := state.Duel; d != nil {
				if p := d.Participant(m.UserID); p != nil {
					c.opts.Store.Set(codestore.OpponentKey(c.duelID), p.Code)
				}
			}
		}
	}

	if c.opts.OnMessage != nil {
		c.opts.OnMessage(m, state)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setStatus(s duel.ConnStatus) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.state = c.state.WithConn(s)
	c.mu.Unlock()
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s)
	}
}
