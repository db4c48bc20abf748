package realtime

import (
	"sync"

	"livefeed/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livefeed_realtime_connected_clients",
		Help: "The current number of connected realtime subscribers",
	})

	broadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livefeed_realtime_events_total",
		Help: "The total number of change events broadcast to subscribers",
	}, []string{"action"})

	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livefeed_realtime_dropped_events_total",
		Help: "The total number of events dropped because a client channel was full",
	})
)

// Hub fans post change events out to all currently connected subscribers.
// Make it sync
type Hub struct {
	sync.RWMutex
	clients map[string]chan models.PostEvent
}

// Constructor
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]chan models.PostEvent, 10000),
	}
}

// Broadcast delivers the event to every connected client without blocking
// the caller. Slow clients get events dropped, not queued.
func (h *Hub) Broadcast(event models.PostEvent) {
	h.RLock()
	defer h.RUnlock()

	action := event.Actions
	if action == "" {
		action = event.Action
	}
	broadcastEvents.WithLabelValues(action).Inc()

	for id, client := range h.clients {
		select {
		case client <- event: // Non-blocking send
		default:
			droppedEvents.Inc()
			log.Warnf("Client channel full, skipping event for client: %v", id)
		}
	}
}

// Function to add a client to the hub
func (h *Hub) AddClient(key string, client chan models.PostEvent) {
	h.Lock()
	defer h.Unlock()
	h.clients[key] = client
	connectedClients.Set(float64(len(h.clients)))
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(h.clients),
	}).Info("Adding client to hub")
}

// Function to remove a client from the hub
func (h *Hub) RemoveClient(key string) {
	h.Lock()
	defer h.Unlock()

	if client, ok := h.clients[key]; ok { // Check if the client exists
		close(client)          // Safely close the channel
		delete(h.clients, key) // Remove from the map
	}

	connectedClients.Set(float64(len(h.clients)))
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(h.clients),
	}).Info("Removed client from hub")
}

func (h *Hub) Shutdown() {
	log.Info("Shutting down hub")
	h.Lock()
	defer h.Unlock()
	for key, client := range h.clients {
		close(client)
		delete(h.clients, key)
	}
	connectedClients.Set(0)
}
