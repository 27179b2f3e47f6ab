package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var (
	ErrConnClosed  = errors.New("CONNECTION_CLOSED: connection closed")
	ErrReadTimeout = errors.New("READ_TIMEOUT: client did not respond in time")
)

// Conn is the per-connection contract the game logic depends on: blocking
// send, blocking receive with a deadline, one command in flight at a time.
type Conn interface {
	Nickname() string
	SetNickname(string)
	Send(text string) error
	Receive(timeout time.Duration) (Command, error)
	Close()
}

// PlayerConn wraps one websocket. A read pump parses inbound envelopes into
// typed commands and feeds an inbox; Receive consumes them one at a time.
type PlayerConn struct {
	ID string

	socket    *websocket.Conn
	limiter   *RateLimiter
	inbox     chan Command
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	nickname string
}

// NewPlayerConn wraps a freshly accepted socket. A nil limiter disables
// rate limiting.
func NewPlayerConn(id string, socket *websocket.Conn, limiter *RateLimiter) *PlayerConn {
	return &PlayerConn{
		ID:      id,
		socket:  socket,
		limiter: limiter,
		inbox:   make(chan Command, 16),
		closed:  make(chan struct{}),
	}
}

func (c *PlayerConn) Nickname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickname
}

func (c *PlayerConn) SetNickname(nick string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nickname = nick
}

// ReadPump reads the socket until it fails or the client disconnects,
// pushing typed commands into the inbox. Malformed envelopes are answered
// directly and never reach the game logic.
func (c *PlayerConn) ReadPump(ctx context.Context) {
	defer c.Close()

	for {
		msgType, data, err := c.socket.Read(ctx)
		if err != nil {
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow(c.ID) {
			c.SendError("RATE_LIMITED: Too many messages. Slow down.")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendError("Invalid JSON")
			continue
		}

		cmd, err := decodeCommand(msg)
		if err != nil {
			c.SendError(err.Error())
			continue
		}

		if _, ok := cmd.(Disconnect); ok {
			// Accepted in any phase: the client is leaving.
			return
		}

		select {
		case c.inbox <- cmd:
		case <-c.closed:
			return
		}
	}
}

// Receive blocks until the next command, the connection closing, or the
// deadline expiring. A deadline expiry closes the connection so a stalled
// client follows the same path as a dropped one.
func (c *PlayerConn) Receive(timeout time.Duration) (Command, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case cmd := <-c.inbox:
		return cmd, nil
	case <-c.closed:
		// Drain a command that raced with the close.
		select {
		case cmd := <-c.inbox:
			return cmd, nil
		default:
		}
		return nil, ErrConnClosed
	case <-timer.C:
		c.Close()
		return nil, ErrReadTimeout
	}
}

func (c *PlayerConn) Send(text string) error {
	return c.sendMessage(ServerMessage{Type: "message", Payload: text})
}

func (c *PlayerConn) SendError(text string) error {
	return c.sendMessage(ServerMessage{Type: "error", Payload: ErrorMessage{Message: text}})
}

func (c *PlayerConn) sendMessage(msg ServerMessage) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.socket.Write(ctx, websocket.MessageText, data); err != nil {
		c.Close()
		return ErrConnClosed
	}
	return nil
}

func (c *PlayerConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if err := c.socket.Close(websocket.StatusNormalClosure, "closing"); err != nil {
			log.Printf("Connection %s close: %v", c.ID, err)
		}
	})
}

// ConnectionManager tracks live websocket connections for shutdown
// broadcast and cleanup.
type ConnectionManager struct {
	connections map[string]*PlayerConn
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*PlayerConn),
	}
}

func (cm *ConnectionManager) AddConnection(conn *PlayerConn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn.ID] = conn
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
}

func (cm *ConnectionManager) GetConnection(id string) *PlayerConn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[id]
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll notifies every live connection and closes it. Used on shutdown.
func (cm *ConnectionManager) CloseAll(notice string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for id, conn := range cm.connections {
		conn.Send(notice)
		conn.Close()
		delete(cm.connections, id)
	}
}
