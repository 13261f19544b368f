// Package signal is the websocket signaling client used to join rooms and
// exchange session descriptions with the room server.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
	ErrRateLimited  = errors.New("rate limited")
)

// Handler receives server frames. Calls come from the read pump goroutine, one at a time.
type Handler interface {
	OnJoined(Joined)
	OnParticipant(ParticipantEvent)
	OnOffer(SessionDescription)
	OnAnswer(SessionDescription)
	OnCandidate(Candidate)
	OnServerError(ErrorFrame)
	OnLeft()
	// OnClosed is called once when the connection goes away. err is nil after Close.
	OnClosed(err error)
}

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	Limiter      *RateLimiter
	Header       http.Header
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	handler Handler
	opts    Options
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Dial connects to url and starts the read and write pumps.
// ctx only bounds the handshake.
func Dial(ctx context.Context, url string, h Handler, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	log.Info().Str("module", "signal").Str("url", url).Msg("connected")

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    ws,
		send:    make(chan []byte, opts.SendBuffer),
		handler: h,
		opts:    opts,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go c.writePump(pumpCtx)
	go c.readPump(pumpCtx)
	return c, nil
}

// Send marshals v and queues it for writing.
func (c *Client) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if env, err := decode[envelope](b); err == nil && !c.opts.Limiter.Allow(env.Type) {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("frame rate limited")
		return ErrRateLimited
	}
	return c.TrySend(b)
}

func (c *Client) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops both pumps. Calling it again is a no-op.
func (c *Client) Close() {
	c.shutdown(nil)
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()

	close(c.done)
	if c.handler != nil {
		c.handler.OnClosed(cause)
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }
