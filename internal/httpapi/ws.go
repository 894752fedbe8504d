package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smartattend/internal/broadcast"
	"smartattend/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS middleware; the socket carries no
	// privileged state beyond what the bearer token already authorized.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientCommand is what a live viewer sends: join or leave a class channel.
type clientCommand struct {
	Action  string `json:"action"`
	ClassID string `json:"class_id"`
}

// liveEvent is what a live viewer receives.
type liveEvent struct {
	Type    string          `json:"type"`
	ClassID string          `json:"class_id"`
	Event   broadcast.Event `json:"event"`
}

type liveHandler struct {
	bc  broadcast.Broadcaster
	log *zap.Logger
}

// serve upgrades the request and bridges class subscriptions to the
// socket. Joins and leaves are idempotent; a disconnect drops every
// subscription. Delivery is best-effort: missed events are not replayed.
func (h *liveHandler) serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	client := &liveClient{
		conn: conn,
		bc:   h.bc,
		log:  h.log,
		subs: make(map[string]*broadcast.Subscription),
		send: make(chan liveEvent, 32),
		done: make(chan struct{}),
	}
	defer client.close()

	go client.writePump()
	client.readPump(c)
}

type liveClient struct {
	conn *websocket.Conn
	bc   broadcast.Broadcaster
	log  *zap.Logger

	mu   sync.Mutex
	subs map[string]*broadcast.Subscription

	send chan liveEvent
	done chan struct{}
	once sync.Once
}

func (cl *liveClient) readPump(c *gin.Context) {
	cl.conn.SetReadLimit(1024)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.ClassID == "" {
			continue
		}
		switch cmd.Action {
		case "join_class":
			cl.join(c, cmd.ClassID)
		case "leave_class":
			cl.leave(cmd.ClassID)
		}
	}
}

func (cl *liveClient) join(c *gin.Context, classID string) {
	cl.mu.Lock()
	if _, ok := cl.subs[classID]; ok {
		cl.mu.Unlock()
		return
	}
	cl.mu.Unlock()

	sub, err := cl.bc.Subscribe(c.Request.Context(), classID)
	if err != nil {
		cl.log.Warn("live subscribe failed", zap.String("class_id", classID), zap.Error(err))
		return
	}

	cl.mu.Lock()
	cl.subs[classID] = sub
	cl.mu.Unlock()

	go func() {
		for ev := range sub.C {
			select {
			case cl.send <- liveEvent{Type: "attendance_marked", ClassID: classID, Event: ev}:
			default: // slow socket, drop
			}
		}
	}()
}

func (cl *liveClient) leave(classID string) {
	cl.mu.Lock()
	sub, ok := cl.subs[classID]
	if ok {
		delete(cl.subs, classID)
	}
	cl.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (cl *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}

func (cl *liveClient) close() {
	cl.once.Do(func() {
		close(cl.done)
		cl.mu.Lock()
		for id, sub := range cl.subs {
			delete(cl.subs, id)
			sub.Close()
		}
		cl.mu.Unlock()
		_ = cl.conn.Close()
	})
}
