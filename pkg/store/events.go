package store

import (
	"chatterly/pkg/logger"
	"chatterly/pkg/models"
)

// Event kinds pushed to watchers; the API layer forwards them to the
// browser over the live WebSocket.
const (
	EventReplaced  = "messages_replaced"
	EventAppended  = "message_appended"
	EventPromoted  = "message_promoted"
	EventWithdrawn = "message_withdrawn"
	EventSummary   = "channel_summary"
)

// Event describes one store mutation. Message is set for append/promote,
// ProvisionalID for promote/withdraw, ChannelID for replace/summary.
type Event struct {
	Kind          string          `json:"kind"`
	ChannelID     string          `json:"channel_id,omitempty"`
	ProvisionalID string          `json:"provisional_id,omitempty"`
	Message       *models.Message `json:"message,omitempty"`
}

// Watch registers a buffered watcher for store events. The returned cancel
// func unregisters it; events that would block are dropped so a slow
// consumer cannot stall mutations.
func (s *Store) Watch(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()
	cancel := func() {
		s.mu.Lock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) emit(ev Event) {
	if ev.Kind == "" {
		return
	}
	s.mu.Lock()
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
			logger.Warn("store_event_dropped", "kind", ev.Kind)
		}
	}
	s.mu.Unlock()
}
