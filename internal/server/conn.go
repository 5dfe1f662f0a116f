package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn adapts a WebSocket to the session.Conn contract.
//
// Send is non-blocking: a full buffer drops the frame rather than stall
// the simulation on a slow client. Close is safe to call from any
// goroutine, any number of times.
type clientConn struct {
	ws       *websocket.Conn
	sendChan chan []byte
	done     chan struct{}

	closeOnce sync.Once
}

func newClientConn(ws *websocket.Conn) *clientConn {
	return &clientConn{
		ws:       ws,
		sendChan: make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// Send queues a frame for delivery. Nil frames and full buffers are
// dropped; state broadcasts tolerate both.
func (c *clientConn) Send(data []byte) error {
	if data == nil {
		return nil
	}
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close shuts the connection down with the given close code. The close
// frame itself is best-effort.
func (c *clientConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		close(c.done)

		// WriteControl is safe concurrently with the write pump.
		msg := websocket.FormatCloseMessage(code, reason)
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.ws.Close()
	})
	return nil
}

// RemoteAddr returns the client's address for logging.
func (c *clientConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// writePump drains the send channel onto the socket. Runs in its own
// goroutine; a write error tears the connection down and the read pump
// handles cleanup.
func (c *clientConn) writePump() {
	// Transport-level pings keep intermediaries from cutting the
	// connection; liveness itself is judged by the JSON heartbeat.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.sendChan:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
