// internal/client/client.go
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by Send when no socket is open.
var ErrNotConnected = errors.New("client: not connected")

// Subprotocol negotiated with the room server.
const Subprotocol = "room"

// Status is the connection state reported through Options.OnStatus.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Options configures a Client. OnMessage runs on the read goroutine, one
// message at a time in arrival order. OnStatus may be called from any goroutine.
type Options struct {
	Nickname     string
	OnMessage    func(protocol.ServerMessage)
	OnStatus     func(Status)
	Logger       *logrus.Logger
	WriteTimeout time.Duration
}

// Client is one participant's connection to a room.
type Client struct {
	endpoint string
	role     protocol.Role
	opts     Options
	log      *logrus.Entry

	mu     sync.Mutex
	conn   *websocket.Conn
	gen    int
	closed bool
}

// Dial connects to roomID on the server at baseURL (http, https, ws or wss)
// and sends join. The first message delivered to OnMessage is the room
// snapshot.
func Dial(ctx context.Context, baseURL, roomID string, role protocol.Role, opts Options) (*Client, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("client: invalid role %q", role)
	}
	endpoint, err := roomEndpoint(baseURL, roomID, role)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	c := &Client{
		endpoint: endpoint,
		role:     role,
		opts:     opts,
		log:      opts.Logger.WithFields(logrus.Fields{"room": roomID, "role": role}),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func roomEndpoint(baseURL, roomID string, role protocol.Role) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("client: bad server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/room/ws/" + url.PathEscape(roomID)
	u.RawQuery = url.Values{"role": {string(role)}}.Encode()
	return u.String(), nil
}

// Role is the role this client connected as.
func (c *Client) Role() protocol.Role { return c.role }

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) connect(ctx context.Context) error {
	c.status(StatusConnecting)

	conn, _, err := websocket.Dial(ctx, c.endpoint, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		c.status(StatusDisconnected)
		return fmt.Errorf("client: dial %s: %w", c.endpoint, err)
	}
	conn.SetReadLimit(1 << 20)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client closed")
		return ErrNotConnected
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.mu.Unlock()

	c.status(StatusConnected)
	go c.readLoop(conn, gen)

	return c.Send(ctx, protocol.Join{Role: c.role, Nickname: c.opts.Nickname})
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	defer func() {
		c.mu.Lock()
		current := c.gen == gen
		if current {
			c.conn = nil
		}
		c.mu.Unlock()
		if current {
			c.status(StatusDisconnected)
		}
	}()

	for {
		typ, data, err := conn.Read(context.Background())
		if err != nil {
			c.log.Debugf("Read loop ended: %v", err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := protocol.DecodeServer(data)
		if err != nil {
			c.log.Warnf("Dropping malformed server message: %v", err)
			continue
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(msg)
		}
	}
}

// Send writes one client message.
func (c *Client) Send(ctx context.Context, msg protocol.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("client: marshal %s: %w", msg.ClientType(), err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("client: write %s: %w", msg.ClientType(), err)
	}
	return nil
}

// Reconnect drops the current socket, if any, dials again and re-sends join.
// The server answers with a fresh snapshot.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	old := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if old != nil {
		old.Close(websocket.StatusNormalClosure, "reconnecting")
	}
	return c.connect(ctx)
}

// Close shuts the socket for good.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.status(StatusDisconnected)
	return conn.Close(websocket.StatusNormalClosure, "client closed")
}

func (c *Client) status(s Status) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s)
	}
}
