package presence

import (
	"sync"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
)

type ClientConfig struct {
	WriteWait   time.Duration
	PongWait    time.Duration
	MaxMsgSize  int64
	SendBufSize int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = constants.DefaultWebSocketWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = constants.DefaultWebSocketPongWait
	}
	if c.MaxMsgSize <= 0 {
		c.MaxMsgSize = constants.DefaultWebSocketMaxMsgSize
	}
	if c.SendBufSize <= 0 {
		c.SendBufSize = constants.DefaultWebSocketSendBufSize
	}
	return c
}

// Client is one attached browser tab. Incoming frames are read only to keep
// the pong deadline moving.
type Client struct {
	hub      *Hub
	conn     *gorillaWS.Conn
	userID   string
	username string
	token    string
	send     chan []byte
	stopOnce sync.Once
	cfg      ClientConfig
	log      *logger.Logger
}

func NewClient(hub *Hub, conn *gorillaWS.Conn, userID, username, token string, cfg ClientConfig, log *logger.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		username: username,
		token:    token,
		send:     make(chan []byte, cfg.SendBufSize),
		cfg:      cfg,
		log:      log,
	}
}

func (c *Client) UserID() string { return c.userID }
func (c *Client) Token() string  { return c.token }

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// stop closes the send queue; writePump answers with a close frame. Callers
// hold the hub lock.
func (c *Client) stop() {
	c.stopOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if gorillaWS.IsUnexpectedCloseError(err, gorillaWS.CloseGoingAway, gorillaWS.CloseNormalClosure, gorillaWS.CloseAbnormalClosure) {
				c.log.Warnf("presence read error user_id=%s username=%s: %v", c.userID, c.username, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker((c.cfg.PongWait * 9) / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(gorillaWS.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(gorillaWS.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
