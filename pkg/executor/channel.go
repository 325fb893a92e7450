package executor

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/wire"
)

// errChannelClosed is returned by send operations after the socket is gone.
var errChannelClosed = errors.New("executor channel closed")

// sendBuffer is the per-connection outbound frame buffer. A full buffer
// means the executor has stopped draining its socket; sends then fail so
// the broker can route around the connection.
const sendBuffer = 64

// channel is one executor connection's outbound half. It implements
// bridge.TaskSender; all writes are serialized through the write pump so
// the broker may send from any goroutine.
type channel struct {
	conn         *websocket.Conn
	out          chan []byte
	closed       chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
}

func newChannel(conn *websocket.Conn, writeTimeout, pingInterval time.Duration) *channel {
	return &channel{
		conn:         conn,
		out:          make(chan []byte, sendBuffer),
		closed:       make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// enqueue queues one encoded frame for the write pump.
func (c *channel) enqueue(env *wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return errChannelClosed
	default:
	}

	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errChannelClosed
	default:
		return errors.New("executor send buffer full")
	}
}

// SendTask implements bridge.TaskSender.
func (c *channel) SendTask(task bridge.Task) error {
	return c.enqueue(wire.NewTask(task))
}

// SendAbort implements bridge.TaskSender.
func (c *channel) SendAbort(requestID string) error {
	return c.enqueue(wire.NewAbort(requestID))
}

// SendRefresh implements bridge.TaskSender.
func (c *channel) SendRefresh() error {
	return c.enqueue(&wire.Envelope{Kind: wire.KindRefresh})
}

// SendReconnect implements bridge.TaskSender.
func (c *channel) SendReconnect() error {
	return c.enqueue(&wire.Envelope{Kind: wire.KindReconnect})
}

// SendCapability implements bridge.TaskSender.
func (c *channel) SendCapability(name string, payload json.RawMessage) error {
	return c.enqueue(wire.NewCapability(name, payload))
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with periodic pings. It exits when the channel closes or
// a write fails.
func (c *channel) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.out:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// close marks the channel dead and closes the socket, once.
func (c *channel) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
