package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// EventsHandler streams hub events to WebSocket clients.
type EventsHandler struct {
	hub      *events.Hub
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewEventsHandler(hub *events.Hub, log *logrus.Logger) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			// the bridge listens for a local UI; auth is the JWT middleware's job
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	feed, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	h.log.WithField("subscribers", h.hub.Subscribers()).Debug("event client connected")

	// reader: only keeps the deadline fresh and notices the close
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case ev, ok := <-feed:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).WithField("type", ev.Type).Warn("event not serializable")
				continue
			}
			if err := wc.writeText(b); err != nil {
				return
			}
		}
	}
}
