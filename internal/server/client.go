package server

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/ride-relay/internal/config"
	"github.com/npezzotti/ride-relay/internal/types"
)

// Client is the transport side of one Connection: a websocket plus the
// bounded outbound queue its writer drains.
type Client struct {
	conn     *websocket.Conn
	relay    *Relay
	log      *log.Logger
	info     types.Connection
	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once

	writeWait      time.Duration
	pongWait       time.Duration
	pingInterval   time.Duration
	maxMessageSize int64
}

func NewClient(id string, conn *websocket.Conn, relay *Relay, l *log.Logger, cfg *config.Config) *Client {
	return &Client{
		conn:  conn,
		relay: relay,
		log:   l,
		info: types.Connection{
			Id:          id,
			ConnectedAt: Now(),
		},
		send:           make(chan *ServerMessage, cfg.SendBufferSize),
		stop:           make(chan struct{}),
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingInterval:   cfg.PingInterval(),
		maxMessageSize: cfg.MaxMessageSize,
	}
}

func (c *Client) Id() string {
	return c.info.Id
}

func (c *Client) Info() types.Connection {
	return c.info
}

func (c *Client) Write() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.relay.Disconnect(c.Id())
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(c.pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read %q: %v", c.Id(), err)
			}
			return
		}

		if err := c.relay.Route(c.Id(), raw); errors.Is(err, ErrRelayStopped) {
			return
		}
	}
}

// queueMessage hands msg to the writer without blocking. It reports false
// when the client is closed or its queue is full.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Printf("failed to queue message for %q, channel is full", c.Id())
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message %q: %s", c.Id(), err)
		}
		return false
	}

	return true
}

func (c *Client) close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
