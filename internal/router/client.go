package router

import (
	"sync"

	"github.com/gorilla/websocket"

	"pongarena/server/internal/httpapi"
)

// Client is one connected websocket. A zero userID models a socket that is
// connected but has not joined anything yet.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *httpapi.SlidingWindowLimiter

	mu      sync.Mutex
	userID  int64
	lobbyID string

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, limiter *httpapi.SlidingWindowLimiter) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		limiter: limiter,
	}
}

// UserID reports the bound player identity, zero while unbound.
func (c *Client) UserID() int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) bindUser(userID int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// LobbyID reports the lobby this socket currently sits in, empty if none.
func (c *Client) LobbyID() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lobbyID
}

func (c *Client) bindLobby(lobbyID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lobbyID = lobbyID
	c.mu.Unlock()
}

// enqueue hands a marshalled frame to the write pump without blocking.
// It reports false when the client's buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	if c == nil {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound channel exactly once so the write pump exits.
func (c *Client) closeSend() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() { close(c.send) })
}
