package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is token-free and same-origin checks add nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ClientMessage is what a watcher sends over the socket.
type ClientMessage struct {
	Action     string `json:"action"`
	ResearchID string `json:"research_id"`
}

// ServerMessage is what the gateway sends back: subscription acks, errors
// and live updates.
type ServerMessage struct {
	Type       string        `json:"type"`
	ResearchID string        `json:"research_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	Event      *models.Event `json:"event,omitempty"`
}

// Handler upgrades HTTP requests into watcher sessions.
type Handler struct {
	registry *Registry
	store    store.Store
	logger   *slog.Logger
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(registry *Registry, st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, store: st, logger: logger}
}

// ServeHTTP upgrades the connection and runs the session until either side
// closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := &session{
		handler: h,
		conn:    conn,
		out:     make(chan ServerMessage, 64),
		done:    make(chan struct{}),
		subs:    make(map[string]chan models.Event),
	}
	go s.writePump()
	s.readPump(r.Context())
}

// session is one watcher connection. A session may watch several researches
// at once; each watched research has its own sink in subs.
type session struct {
	handler *Handler
	conn    *websocket.Conn
	out     chan ServerMessage
	done    chan struct{}

	mu   sync.Mutex
	subs map[string]chan models.Event
}

func (s *session) readPump(ctx context.Context) {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(ServerMessage{Type: "error", Message: "invalid message"})
			continue
		}

		switch msg.Action {
		case "subscribe":
			s.subscribe(ctx, msg.ResearchID)
		case "unsubscribe":
			s.unsubscribe(msg.ResearchID)
		default:
			s.send(ServerMessage{
				Type:       "error",
				ResearchID: msg.ResearchID,
				Message:    "unknown action",
			})
		}
	}
}

// subscribe attaches the session to a research feed. The research's recorded
// events are replayed first so the watcher starts from full history; an
// event may appear in both the replay and the live feed, watchers must
// tolerate that.
func (s *session) subscribe(ctx context.Context, researchID string) {
	if researchID == "" {
		s.send(ServerMessage{Type: "error", Message: "research_id is required"})
		return
	}

	s.mu.Lock()
	if _, ok := s.subs[researchID]; ok {
		s.mu.Unlock()
		s.send(ServerMessage{Type: "subscribed", ResearchID: researchID})
		return
	}
	s.mu.Unlock()

	// Open the live subscription before snapshotting history. An event
	// landing in between then shows up in both, which watchers tolerate;
	// the other order would lose it entirely.
	sink, err := s.handler.registry.Subscribe(ctx, researchID)
	if err != nil {
		s.handler.logger.Error("subscribe failed", "research_id", researchID, "error", err)
		s.send(ServerMessage{Type: "error", ResearchID: researchID, Message: "subscription failed"})
		return
	}

	research, err := s.handler.store.GetResearch(ctx, researchID)
	if err != nil {
		s.handler.registry.Unsubscribe(researchID, sink)
		msg := "could not load research"
		if errors.Is(err, store.ErrNotFound) {
			msg = "research not found"
		}
		s.send(ServerMessage{Type: "error", ResearchID: researchID, Message: msg})
		return
	}

	s.mu.Lock()
	s.subs[researchID] = sink
	s.mu.Unlock()

	s.send(ServerMessage{Type: "subscribed", ResearchID: researchID})
	for i := range research.Events {
		s.send(ServerMessage{Type: "update", ResearchID: researchID, Event: &research.Events[i]})
	}

	go func() {
		for ev := range sink {
			e := ev
			s.send(ServerMessage{Type: "update", ResearchID: researchID, Event: &e})
		}
	}()
}

func (s *session) unsubscribe(researchID string) {
	s.mu.Lock()
	sink, ok := s.subs[researchID]
	if ok {
		delete(s.subs, researchID)
	}
	s.mu.Unlock()

	if ok {
		s.handler.registry.Unsubscribe(researchID, sink)
	}
	s.send(ServerMessage{Type: "unsubscribed", ResearchID: researchID})
}

func (s *session) teardown() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]chan models.Event)
	s.mu.Unlock()

	for researchID, sink := range subs {
		s.handler.registry.Unsubscribe(researchID, sink)
	}
	close(s.done)
}

// send queues a message for the write pump, dropping it if the session is
// gone or hopelessly behind.
func (s *session) send(msg ServerMessage) {
	select {
	case <-s.done:
	case s.out <- msg:
	default:
		s.handler.logger.Warn("dropping message for slow session", "type", msg.Type)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-s.done:
			// Drain what is already queued before saying goodbye.
			for {
				select {
				case msg := <-s.out:
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteJSON(msg); err != nil {
						return
					}
				default:
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
