// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// Broadcaster fans events out to connections. Delivery to one connection
// never blocks or fails delivery to another.
type Broadcaster interface {
	SendTo(connID string, event string, data interface{}) error
	BroadcastToConns(connIDs []string, event string, data interface{})
	BroadcastToAll(event string, data interface{})
}

// Hub delivers through the live sessions of a session.Manager.
type Hub struct {
	sessionManager *session.Manager
}

func NewHub(sessionManager *session.Manager) *Hub {
	return &Hub{sessionManager: sessionManager}
}

func (h *Hub) SendTo(connID string, event string, data interface{}) error {
	s, exists := h.sessionManager.Get(connID)
	if !exists {
		return ErrSessionNotFound
	}
	return s.Send(event, 0, data)
}

func (h *Hub) BroadcastToConns(connIDs []string, event string, data interface{}) {
	for _, connID := range connIDs {
		if err := h.SendTo(connID, event, data); err != nil {
			logger.Log.Debugw("broadcast skipped", "conn", connID, "event", event, "error", err)
		}
	}
}

func (h *Hub) BroadcastToAll(event string, data interface{}) {
	for _, s := range h.sessionManager.All() {
		if err := s.Send(event, 0, data); err != nil {
			logger.Log.Debugw("broadcast skipped", "conn", s.ID, "event", event, "error", err)
		}
	}
}
