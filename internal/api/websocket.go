package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lysyi3m/rss-sync/internal/broadcast"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsObserver delivers events to one websocket client as text frames.
type wsObserver struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (o *wsObserver) Send(event broadcast.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, []byte(event))
}

func (o *wsObserver) ping() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// Observe upgrades the request and keeps the client registered with the hub
// until it disconnects. Inbound messages are discarded.
func (h *Handler) Observe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("Websocket upgrade failed", "error", err)
		return
	}

	observer := &wsObserver{conn: conn}
	h.hub.Add(observer)
	h.hub.Broadcast(broadcast.Connected)
	slog.Debug("Observer connected", "remote", c.ClientIP(), "observers", h.hub.Count())

	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Remove(observer)
		conn.Close()
		slog.Debug("Observer disconnected", "remote", c.ClientIP(), "observers", h.hub.Count())
	}()

	go keepAlive(observer, done)

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Observer connection closed unexpectedly", "error", err)
			}
			return
		}
	}
}

func keepAlive(observer *wsObserver, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := observer.ping(); err != nil {
				return
			}
		}
	}
}
