package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"smartlists/models"
	"smartlists/services/coordinator"
)

// Hub fans host events out to subscribers. Publishing is synchronous;
// subscribers are expected to return quickly.
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]coordinator.EventHandler
	log      *slog.Logger

	catalog  atomic.Uint64
	playback atomic.Uint64
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		handlers: make(map[uint64]coordinator.EventHandler),
		log:      logger.With("component", "events"),
	}
}

// Subscribe registers h and returns a function that removes it again.
func (h *Hub) Subscribe(handler coordinator.EventHandler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers[id] = handler
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) snapshot() []coordinator.EventHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]coordinator.EventHandler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		out = append(out, handler)
	}
	return out
}

// PublishCatalog delivers a library change to every subscriber.
func (h *Hub) PublishCatalog(evt models.CatalogEvent) {
	h.catalog.Add(1)
	handlers := h.snapshot()
	h.log.Debug("catalog event", "type", evt.Type, "item", evt.Item.ID, "kind", evt.Item.Kind, "subscribers", len(handlers))
	for _, handler := range handlers {
		switch evt.Type {
		case models.CatalogItemAdded:
			handler.OnItemAdded(evt.Item)
		case models.CatalogItemRemoved:
			handler.OnItemRemoved(evt.Item)
		case models.CatalogItemUpdated:
			handler.OnItemUpdated(evt.Item)
		default:
			h.log.Warn("ignoring catalog event of unknown type", "type", evt.Type)
			return
		}
	}
}

// PublishPlayback delivers a saved user-data state to every subscriber.
func (h *Hub) PublishPlayback(evt models.PlaybackEvent) {
	h.playback.Add(1)
	for _, handler := range h.snapshot() {
		handler.OnPlaybackStateSaved(evt.Item, evt.UserID, evt.State)
	}
}

type Stats struct {
	Subscribers    int    `json:"subscribers"`
	CatalogEvents  uint64 `json:"catalogEvents"`
	PlaybackEvents uint64 `json:"playbackEvents"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.handlers)
	h.mu.RUnlock()
	return Stats{Subscribers: n, CatalogEvents: h.catalog.Load(), PlaybackEvents: h.playback.Load()}
}
