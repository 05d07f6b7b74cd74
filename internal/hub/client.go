package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one WebSocket connection attached to the Hub. Its identity
// comes from the authenticated request; the rooms set tracks its
// subscriptions for cleanup on disconnect.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   string
	username string
	send     chan []byte
	done     chan struct{}

	// rooms the client is subscribed to; guarded by hub.roomsMu.
	rooms map[string]bool
}

// NewClient creates a Client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		username: username,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		rooms:    make(map[string]bool),
	}
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump moves frames from the connection into the Hub. Runs in its
// own goroutine; exit unregisters the client, which unsubscribes it
// from every room.
func (c *Client) ReadPump() {
	defer func() {
		unregister := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregister:
		case <-time.After(time.Second):
			logrus.WithField("user_id", c.userID).
				Warn("Timeout sending unregister message to hub")
		}
		c.conn.Close()
		logrus.WithField("user_id", c.userID).Info("Read pump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("user_id", c.userID)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		c.hub.QueueMessage(HubMessage{Type: "command", Client: c, RawData: message})
	}
}

// WritePump moves frames from the send channel to the connection and
// keeps the connection alive with pings. Runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("user_id", c.userID).Info("Write pump exited")
	}()

	for {
		select {
		case <-c.done:
			// Hub unregistered the client. The send channel stays open
			// so in-flight fan-outs never hit a closed channel.
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("user_id", c.userID).WithError(err).
					Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) UserID() string   { return c.userID }
func (c *Client) Username() string { return c.username }
func (c *Client) CloseConn()       { c.conn.Close() }
