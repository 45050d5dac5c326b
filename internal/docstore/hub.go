package docstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
)

// subscriptionBuffer is how many notifications a slow subscriber may lag by
// before further ones are dropped. Notifications are hints, so a dropped one
// only delays a re-read.
const subscriptionBuffer = 64

// Hub fans change notifications out to subscribers.
type Hub struct {
	log *zap.SugaredLogger

	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscription
}

// NewHub returns an empty Hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{log: log, subs: make(map[uint64]*subscription)}
}

// Subscribe registers for changes to table matching filter. The
// subscription ends when Cancel is called or ctx is done.
func (h *Hub) Subscribe(ctx context.Context, table string, filter domain.Filter) domain.Subscription {
	s := &subscription{
		hub:    h,
		table:  table,
		filter: filter,
		ch:     make(chan domain.Change, subscriptionBuffer),
	}
	h.mu.Lock()
	s.id = h.next
	h.next++
	h.subs[s.id] = s
	h.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Cancel)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s
}

// Publish delivers c to every matching subscriber without blocking.
func (h *Hub) Publish(c domain.Change) {
	h.mu.Lock()
	targets := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.table == c.Table && (c.Kind == domain.ChangeDelete || matches(c.Data, s.filter)) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		if !s.deliver(c) {
			h.log.Warnf("dropped %s notification for %s/%s: subscriber is behind", c.Kind, c.Table, c.ID)
		}
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

type subscription struct {
	hub    *Hub
	id     uint64
	table  string
	filter domain.Filter
	ch     chan domain.Change

	mu     sync.Mutex
	closed bool
	stop   func() bool
}

func (s *subscription) C() <-chan domain.Change { return s.ch }

// Cancel unregisters the subscription and closes C. Once Cancel returns no
// further value is sent. It is safe to call more than once.
func (s *subscription) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	stop := s.stop
	s.mu.Unlock()

	s.hub.remove(s.id)
	if stop != nil {
		stop()
	}
}

// deliver reports false only when the buffer was full.
func (s *subscription) deliver(c domain.Change) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- c:
		return true
	default:
		return false
	}
}
