package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/janhae4/DATN-sub006/internal/identity"
	"github.com/janhae4/DATN-sub006/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB fits any SDP.
	maxMessageSize = 64 * 1024
)

// Client wraps a single websocket connection. Its member id is the
// transport-session identity: a reconnecting user gets a fresh one.
type Client struct {
	// ID is the member id assigned for this transport session.
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan *protocol.Envelope

	// userKey is the application user identity carried on the connection URL,
	// resolved through the identity provider at join time.
	userKey  string
	identity identity.Provider
}

// NewClient builds a client for an upgraded connection. provider may be nil
// when no identity directory is configured.
func NewClient(hub *Hub, conn *websocket.Conn, id, userKey string, provider identity.Provider) *Client {
	return &Client{
		ID:       id,
		hub:      hub,
		conn:     conn,
		send:     make(chan *protocol.Envelope, 256),
		userKey:  userKey,
		identity: provider,
	}
}

// RemoteAddr reports the peer transport address for logging.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadPump pumps envelopes from the websocket to the hub.
//
// It runs in a per-connection goroutine and is the connection's only reader.
// Exiting unregisters the client, which makes transport disconnects take the
// same cleanup path as an explicit leave.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("read error", "member", c.ID, "err", err)
			}
			break
		}

		if env.Type == protocol.TypeJoin {
			c.enrichJoin(&env)
		}

		c.hub.Inbound <- inbound{client: c, env: &env}
	}
}

// enrichJoin resolves the user's directory identity and folds it into the
// join payload. It runs here, in the connection goroutine, so a slow
// directory can never stall the hub loop. Failures fall back to whatever
// info the client supplied.
func (c *Client) enrichJoin(env *protocol.Envelope) {
	if c.identity == nil || c.userKey == "" {
		return
	}

	info, err := c.identity.Resolve(context.Background(), c.userKey)
	if err != nil {
		slog.Debug("identity lookup failed", "user", c.userKey, "err", err)
		return
	}

	var payload protocol.JoinPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	if info.DisplayName != "" {
		payload.Info.DisplayName = info.DisplayName
	}
	if info.Avatar != "" {
		payload.Info.Avatar = info.Avatar
	}
	if info.Role != "" {
		payload.Info.Role = info.Role
	}
	if raw, err := json.Marshal(payload); err == nil {
		env.Payload = raw
	}
}

// WritePump pumps envelopes from the hub to the websocket connection.
//
// It runs in a per-connection goroutine and is the connection's only writer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel on unregister.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				slog.Warn("write error", "member", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
