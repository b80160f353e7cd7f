package kodi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chronicle-scrobbler/internal/logging"
)

// ErrNotConnected is returned by Call while the websocket is down; the
// caller treats it like any other collaborator-unavailable condition.
var ErrNotConnected = errors.New("kodi: not connected")

const callTimeout = 10 * time.Second

type WSConfig struct {
	URL      string        // e.g. ws://localhost:9090/jsonrpc
	RetryMax time.Duration // backoff cap for reconnect attempts
}

// Client speaks JSON-RPC 2.0 over Kodi's websocket transport. Requests are
// correlated to responses by id; unsolicited messages are notifications and
// go to NotificationHandler.
type Client struct {
	cfg WSConfig

	// NotificationHandler receives every JSON-RPC notification (method +
	// raw params). Set before Start.
	NotificationHandler func(method string, params json.RawMessage)

	// DisconnectHandler fires once each time an established connection is
	// lost. Set before Start.
	DisconnectHandler func()

	cancel context.CancelFunc
	log    logging.Logger

	mu      sync.Mutex // guards conn and pending
	conn    *websocket.Conn
	pending map[uint64]chan rpcResult
	nextID  atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint64 `json:"id"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("kodi rpc error %d: %s", e.Code, e.Message)
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

func NewClient(cfg WSConfig) *Client {
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		pending: make(map[uint64]chan rpcResult),
		log:     logging.Default().With("component", "kodi-ws"),
	}
}

// Start runs the connect/read loop in the background until ctx is cancelled.
// Reconnects use exponential backoff capped at RetryMax.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		retry := 2 * time.Second
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, nil)
			if err != nil {
				c.log.Warn("dial failed", "url", c.cfg.URL, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(retry):
				}
				if retry < c.cfg.RetryMax {
					retry *= 2
				}
				continue
			}
			retry = 2 * time.Second
			c.log.Info("connected", "url", c.cfg.URL)

			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()

			c.readLoop(conn)

			c.teardown(conn)
			if c.DisconnectHandler != nil {
				c.DisconnectHandler()
			}
			c.log.Warn("connection lost, reconnecting")
		}
	}()
}

// Stop closes the connection and ends the connect loop.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Call performs one JSON-RPC request and decodes the result into dst (dst
// may be nil when the result is irrelevant).
func (c *Client) Call(method string, params any, dst any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	id := c.nextID.Add(1)
	ch := make(chan rpcResult, 1)
	c.pending[id] = ch

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	err := conn.WriteJSON(req)
	c.mu.Unlock()

	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("kodi: write %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if dst == nil {
			return nil
		}
		if err := json.Unmarshal(res.result, dst); err != nil {
			return fmt.Errorf("kodi: decode %s result: %w", method, err)
		}
		return nil
	case <-time.After(callTimeout):
		c.dropPending(id)
		return fmt.Errorf("kodi: %s timed out", method)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("read error", "err", err)
			return
		}

		var env rpcEnvelope
		if err := json.Unmarshal(p, &env); err != nil {
			c.log.Warn("unparseable frame", "err", err)
			continue
		}

		switch {
		case env.ID != nil:
			c.resolve(*env.ID, env)
		case env.Method != "":
			if c.NotificationHandler != nil {
				c.NotificationHandler(env.Method, env.Params)
			}
		}
	}
}

func (c *Client) resolve(id uint64, env rpcEnvelope) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	if env.Error != nil {
		ch <- rpcResult{err: env.Error}
		return
	}
	ch <- rpcResult{result: env.Result}
}

func (c *Client) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// teardown clears the connection and fails every in-flight call so callers
// do not sit out their full timeout.
func (c *Client) teardown(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		ch <- rpcResult{err: ErrNotConnected}
		delete(c.pending, id)
	}
	c.mu.Unlock()
}
