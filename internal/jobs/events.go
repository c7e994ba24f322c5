package jobs

import (
	"sort"
	"sync"
)

// EventType names the broadcast classes the UI consumes.
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one broadcast update. Every event carries the job id and kind
// so consumers can drop updates from jobs they have already moved past.
type Event struct {
	Type     EventType `json:"-"`
	JobID    int64     `json:"jobId"`
	Kind     Kind      `json:"kind"`
	Fraction float64   `json:"fraction,omitempty"`
	Outcome  Outcome   `json:"outcome,omitempty"`
	Output   string    `json:"outputPath,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Hub fans job events out to subscribers.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for every future event and returns a disposer
// that removes the registration. Calling the disposer more than once is
// harmless.
func (h *Hub) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish delivers evt to every subscriber registered at call time.
// Callbacks run outside the hub lock, in subscription order, so a
// subscriber may subscribe or dispose from within its callback.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}
