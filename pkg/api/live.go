package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatterly/pkg/logger"
	"chatterly/pkg/store"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the front end is served from the same origin in production; the
	// daemon is not exposed cross-origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveFrame is one WebSocket message: either a store event or a
// user-visible notice (send/upload failure).
type liveFrame struct {
	Event  *store.Event `json:"event,omitempty"`
	Notice *Notice      `json:"notice,omitempty"`
}

// handleLive streams store mutations and notices to the browser until the
// socket closes. Watchers are buffered and drop on overflow, so a stalled
// tab cannot stall reconciliation.
func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentSession(w); !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	events, cancelEvents := s.Store.Watch(256)
	defer cancelEvents()
	notices, cancelNotices := s.Notices.Watch()
	defer cancelNotices()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// discard reads; the socket is push-only, but reading surfaces close
	// frames
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(liveFrame{Event: &ev}); err != nil {
				logger.Debug("ws_write_failed", "error", err)
				return
			}
		case n, ok := <-notices:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(liveFrame{Notice: &n}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// Notice is a one-shot user-visible failure message, the daemon's
// equivalent of the blocking alert the web client shows on a failed send.
type Notice struct {
	ChannelID string `json:"channel_id,omitempty"`
	Message   string `json:"message"`
}

// NoticeHub fans notices out to connected live sockets.
type NoticeHub struct {
	mu     sync.Mutex
	subs   map[int]chan Notice
	nextID int
}

// NewNoticeHub returns an empty hub.
func NewNoticeHub() *NoticeHub {
	return &NoticeHub{subs: map[int]chan Notice{}}
}

// Publish delivers the notice to every watcher, dropping on overflow.
func (h *NoticeHub) Publish(channelID, message string) {
	h.mu.Lock()
	for _, ch := range h.subs {
		select {
		case ch <- Notice{ChannelID: channelID, Message: message}:
		default:
		}
	}
	h.mu.Unlock()
}

// Watch registers a watcher; cancel unregisters it.
func (h *NoticeHub) Watch() (<-chan Notice, func()) {
	ch := make(chan Notice, 16)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
}
