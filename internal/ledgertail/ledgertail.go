// Package ledgertail provides an in-process publish-subscribe fan-out of
// ledger events, for callers (a UI, an audit dashboard) that want to react
// live to PUBLISH/UPDATE/REVOKE/GRANT events instead of polling state_of.
// It is generalized from the prototype's configuration-change SSE hub, with
// the payload swapped from "config key changed" to "ledger event appended".
package ledgertail

import (
	"sync"

	"go.uber.org/zap"

	"github.com/apscustody/labcustody/internal/ledger"
)

// Hub fans ledger events out to subscribers. Its subscriber map has its own
// mutex, independent of the ledger's writer lock, so a stalled subscriber
// can never block an append.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[chan ledger.Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{log: log, clients: make(map[chan ledger.Event]struct{})}
}

// Broadcast fans ev out to every subscriber with a non-blocking send; a
// slow subscriber is dropped from this broadcast, never blocked on.
func (h *Hub) Broadcast(ev ledger.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.log.Warnw("ledgertail subscriber slow, dropping event", "reportId", ev.ReportID, "type", ev.Type)
		}
	}
}

// Subscribe registers a new subscriber channel and returns an unsubscribe
// function.
func (h *Hub) Subscribe() (<-chan ledger.Event, func()) {
	ch := make(chan ledger.Event, 16)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	}
	return ch, unsub
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Pump subscribes to l and forwards every event to h.Broadcast until done
// is closed. Intended to be run once, in its own goroutine, bridging the
// ledger's own Subscribe fan-out into this hub's subscriber set.
func Pump(l *ledger.Ledger, h *Hub, done <-chan struct{}) {
	ch, unsubscribe := l.Subscribe()
	defer unsubscribe()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(ev)
		case <-done:
			return
		}
	}
}
