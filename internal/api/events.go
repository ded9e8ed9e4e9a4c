package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/podcast-studio/internal/store"
)

// Event types sent to progress subscribers
const (
	EventStage    = "stage"
	EventProgress = "progress"
	EventDone     = "done"
	EventError    = "error"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// Event is one progress notification for an episode
type Event struct {
	Type      string `json:"type"`
	EpisodeID string `json:"episode_id"`
	Stage     string `json:"stage,omitempty"`
	Completed int    `json:"completed,omitempty"`
	Total     int    `json:"total,omitempty"`
	Index     int    `json:"index"`
	Preview   string `json:"preview,omitempty"`
	Error     string `json:"error,omitempty"`
}

// terminal reports whether no further events follow e
func (e Event) terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Subscription receives the events of one episode
type Subscription struct {
	events chan Event
}

// Hub fans episode events out to websocket subscribers. Publish never
// blocks: a subscriber that falls behind loses events.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "event_hub").Logger(),
	}
}

// Subscribe registers a subscriber for one episode
func (h *Hub) Subscribe(episodeID string) *Subscription {
	sub := &Subscription{events: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[episodeID] == nil {
		h.subs[episodeID] = make(map[*Subscription]struct{})
	}
	h.subs[episodeID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel if it is still registered
func (h *Hub) Unsubscribe(episodeID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[episodeID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.events)
	if len(subs) == 0 {
		delete(h.subs, episodeID)
	}
}

// Publish delivers ev to every subscriber of its episode. A terminal event
// also closes and removes those subscribers.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[ev.EpisodeID]
	for sub := range subs {
		select {
		case sub.events <- ev:
		default:
			h.logger.Warn().Str("episode_id", ev.EpisodeID).Str("type", ev.Type).Msg("Subscriber too slow, dropping event")
		}
		if ev.terminal() {
			close(sub.events)
		}
	}
	if ev.terminal() {
		delete(h.subs, ev.EpisodeID)
	}
}

var upgrader = websocket.Upgrader{
	// The events stream is read-only and carries no credentials
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEvents streams progress events of one episode over a websocket
// until the run finishes or the client goes away
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Subscribe before reading the status so a run finishing in between is
	// still observed through the hub.
	sub := s.hub.Subscribe(id)

	episode, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.hub.Unsubscribe(id, sub)
		writeStoreError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.Unsubscribe(id, sub)
		s.logger.Warn().Err(err).Str("episode_id", id).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	logger := s.logger.With().Str("episode_id", id).Logger()
	logger.Debug().Msg("Events subscriber connected")

	if final, ok := finalEvent(episode); ok {
		s.hub.Unsubscribe(id, sub)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(final)
		closeNormally(conn)
		return
	}
	defer s.hub.Unsubscribe(id, sub)

	// The reader only exists to notice the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Msg("Events subscriber read error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.events:
			if !ok {
				closeNormally(conn)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug().Err(err).Msg("Failed to write event")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.ctx.Done():
			closeNormally(conn)
			return
		}
	}
}

// finalEvent returns the terminal event of an episode that already finished
func finalEvent(e *store.Episode) (Event, bool) {
	switch e.Status {
	case store.StatusSucceeded:
		return Event{Type: EventDone, EpisodeID: e.ID}, true
	case store.StatusFailed:
		return Event{Type: EventError, EpisodeID: e.ID, Error: e.Error}, true
	default:
		return Event{}, false
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
