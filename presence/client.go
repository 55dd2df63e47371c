package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meinhoongagan/availability-engine/realtime"
)

var ErrNotConnected = errors.New("presence: not connected")

const (
	writeWait = 10 * time.Second

	// readWait bounds the silence tolerated from the hub, which pings well
	// inside this window.
	readWait = 60 * time.Second
)

// Client keeps a websocket to the realtime hub open, feeding every connection
// into a Sync. After a disconnect it redials with a fixed backoff; each new
// connection starts from a cleared registry and waits for its own snapshot.
type Client struct {
	url     string
	token   string
	sync    *Sync
	dialer  *websocket.Dialer
	backoff time.Duration
	readTTL time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	current *Conn
}

type ClientOption func(*Client)

func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) { c.backoff = d }
}

// WithReadTimeout sets how long a connection may stay silent, pings
// included, before it is treated as dead.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.readTTL = d }
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func NewClient(url, token string, s *Sync, opts ...ClientOption) *Client {
	c := &Client{
		url:     url,
		token:   token,
		sync:    s,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff: 2 * time.Second,
		readTTL: readWait,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and serves until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("realtime dial failed", "url", c.url, "error", err)
		} else {
			conn.Serve(ctx)
			c.setCurrent(nil)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff):
		}
	}
}

// Connect dials once and attaches the connection to the Sync. The caller must
// call Serve on the returned connection.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	ws, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, err
	}
	conn := &Conn{ws: ws, readTTL: c.readTTL}
	c.sync.Attach(conn)
	c.setCurrent(conn)
	return conn, nil
}

func (c *Client) setCurrent(conn *Conn) {
	c.mu.Lock()
	c.current = conn
	c.mu.Unlock()
}

// Send writes one event on the current connection.
func (c *Client) Send(event string, data interface{}) error {
	c.mu.Lock()
	conn := c.current
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	env, err := realtime.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return conn.Send(env)
}

// Join tells the other party that this user joined the appointment.
func (c *Client) Join(appointmentID string) error {
	return c.Send(realtime.EventAppointmentJoined, realtime.Participation{AppointmentID: appointmentID})
}

// Decline tells the other party that this user will not join.
func (c *Client) Decline(appointmentID string) error {
	return c.Send(realtime.EventAppointmentDeclined, realtime.Participation{AppointmentID: appointmentID})
}

// Conn is one websocket connection to the hub. It is a Source.
type Conn struct {
	ws      *websocket.Conn
	readTTL time.Duration
	writeMu sync.Mutex

	mu       sync.Mutex
	handlers []Handler
}

func (c *Conn) AddHandler(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

func (c *Conn) snapshotHandlers() []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Handler(nil), c.handlers...)
}

// Serve reads envelopes in order and hands them to the handlers until the
// connection fails, goes silent past the read timeout, or ctx is done.
// Handlers then see HandleClose exactly once.
func (c *Conn) Serve(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.ws.Close()
		case <-done:
		}
	}()
	defer func() {
		c.ws.Close()
		for _, h := range c.snapshotHandlers() {
			h.HandleClose()
		}
	}()

	ttl := c.readTTL
	if ttl <= 0 {
		ttl = readWait
	}
	c.ws.SetReadDeadline(time.Now().Add(ttl))
	c.ws.SetPingHandler(func(data string) error {
		c.ws.SetReadDeadline(time.Now().Add(ttl))
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(ttl))
		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		for _, h := range c.snapshotHandlers() {
			h.HandleEnvelope(env)
		}
	}
}

func (c *Conn) Send(env realtime.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(env)
}

// Close ends the connection; Serve returns shortly after.
func (c *Conn) Close() error {
	return c.ws.Close()
}
