// internal/handlers/peer.go
package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

var (
	errPeerClosed       = errors.New("peer closed")
	errSendBufferFull   = errors.New("send buffer full")
	slowConsumerMessage = "slow consumer"
)

// wsPeer queues outbound frames for one socket. Session code calls Send while
// holding the room lock, so Send never blocks: a full queue closes the peer.
type wsPeer struct {
	out  chan []byte
	done chan struct{}

	once   sync.Once
	mu     sync.Mutex
	code   websocket.StatusCode
	reason string
}

func newWSPeer(buffer int) *wsPeer {
	return &wsPeer{
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (p *wsPeer) Send(data []byte) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	default:
		p.closeWith(SlowConsumerError, slowConsumerMessage)
		return errSendBufferFull
	}
}

// Close is called by the session when this socket is replaced.
func (p *wsPeer) Close(reason string) {
	p.closeWith(ReplacedError, reason)
}

func (p *wsPeer) closeWith(code websocket.StatusCode, reason string) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code, p.reason = code, reason
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *wsPeer) closeStatus() (websocket.StatusCode, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.reason
}

// writePump drains the peer queue onto the socket in order and keeps the
// connection alive with pings. When the peer is closed it sends the close
// frame, which also unblocks the read loop.
func writePump(ctx context.Context, c *websocket.Conn, p *wsPeer, writeTimeout time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			code, reason := p.closeStatus()
			log.Infof("Closing socket: %s", reason)
			_ = c.Close(code, reason)
			return
		case data := <-p.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Warnf("Failed to write to websocket: %v", err)
				p.closeWith(websocket.StatusGoingAway, "write failed")
				_ = c.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Warnf("Ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}
