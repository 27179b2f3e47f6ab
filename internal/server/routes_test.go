package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"

	"eriantys-server/internal/eriantys"
)

func setupTestServer(t *testing.T) (*Server, string, func()) {
	t.Helper()

	db := setupTestDB(t)
	persistenceManager := NewPersistenceManager(db)

	var lobby *Lobby
	reconnectionManager := NewReconnectionManager(persistenceManager, func(g *eriantys.Game, conns []Conn) {
		lobby.Resume(g, conns)
	})
	lobby = NewLobby(reconnectionManager, 5*time.Second)

	s := &Server{
		connectionManager:   NewConnectionManager(),
		lobby:               lobby,
		reconnectionManager: reconnectionManager,
		persistenceManager:  persistenceManager,
		rateLimiter:         NewRateLimiter(100, time.Second),
		readTimeout:         5 * time.Second,
	}

	server := httptest.NewServer(http.HandlerFunc(s.websocketHandler))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"

	return s, url, server.Close
}

func readServerMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) ServerMessage {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read server message: %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to parse server message: %v", err)
	}
	return msg
}

func sendInput(t *testing.T, ctx context.Context, conn *websocket.Conn, text string) {
	t.Helper()

	payload, _ := json.Marshal(text)
	data, _ := json.Marshal(ClientMessage{Type: "input", Payload: payload})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("failed to send input: %v", err)
	}
}

func TestWebSocketLoginFlow(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The lobby greets every new connection.
	msg := readServerMessage(t, ctx, conn)
	assert.Equal("message", msg.Type)
	assert.Contains(msg.Payload.(string), "Set a nickname.")

	// Malformed JSON is answered without dropping the connection.
	err = conn.Write(ctx, websocket.MessageText, []byte("junk"))
	assert.NoError(err)
	msg = readServerMessage(t, ctx, conn)
	assert.Equal("error", msg.Type)

	// A nickname makes this the first player, who configures the game.
	sendInput(t, ctx, conn, "ann")
	msg = readServerMessage(t, ctx, conn)
	assert.Equal("message", msg.Type)
	assert.Contains(msg.Payload.(string), "How many players")
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	readServerMessage(t, ctx, conn) // consume the greeting

	data, _ := json.Marshal(ClientMessage{Type: "execute_move"})
	assert.NoError(conn.Write(ctx, websocket.MessageText, data))

	msg := readServerMessage(t, ctx, conn)
	assert.Equal("error", msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Contains(payload["message"].(string), "INVALID_MESSAGE_TYPE")
}

func TestWebSocketRateLimiting(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	// Zero allowance: every message trips the limiter.
	s.rateLimiter = NewRateLimiter(0, time.Second)

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	readServerMessage(t, ctx, conn) // consume the greeting

	sendInput(t, ctx, conn, "ann")
	msg := readServerMessage(t, ctx, conn)
	assert.Equal("error", msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Contains(payload["message"].(string), "RATE_LIMITED")
}

func TestWebSocketConnectionRegistration(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	assert.Equal(0, s.connectionManager.Count())

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)

	// The greeting proves the handler has registered the connection.
	readServerMessage(t, ctx, conn)
	assert.Equal(1, s.connectionManager.Count())

	conn.Close(websocket.StatusNormalClosure, "")
	eventually(t, func() bool { return s.connectionManager.Count() == 0 }, "connection never deregistered")
}
