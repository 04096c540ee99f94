package realtime

import (
	"fmt"
	"sync"
	"time"
)

// Reservation event priorities. A cancel racing a create within the window
// is presentation noise from the undo path, not a real state change.
var eventPriority = map[string]int{
	"created":    3,
	"reinstated": 3,
	"updated":    2,
	"cancelled":  1,
}

type suppressorEntry struct {
	priority int
	at       time.Time
}

// suppressor drops lower-priority reservation events that arrive within one
// second of a higher-priority event for the same reservation key.
type suppressor struct {
	mu     sync.Mutex
	seen   map[string]suppressorEntry
	ttl    time.Duration
	window time.Duration
	now    func() time.Time
}

func newSuppressor() *suppressor {
	return &suppressor{
		seen:   make(map[string]suppressorEntry),
		ttl:    2 * time.Second,
		window: time.Second,
		now:    time.Now,
	}
}

// collisionKey identifies a reservation across its events: the row id when
// present, otherwise the customer/date/time triple.
func collisionKey(data map[string]any) string {
	if id, ok := data["reservation_id"]; ok && id != nil {
		return fmt.Sprintf("id:%v", id)
	}
	return fmt.Sprintf("%v|%v|%v", data["wa_id"], data["gregorian_date"], data["time_slot_24h"])
}

// Allow reports whether the event should be broadcast. Non-reservation
// events always pass.
func (s *suppressor) Allow(eventType string, data map[string]any) bool {
	priority, reservationEvent := eventPriority[eventType]
	if !reservationEvent || data == nil {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.seen {
		if now.Sub(e.at) > s.ttl {
			delete(s.seen, k)
		}
	}

	key := collisionKey(data)
	if prev, ok := s.seen[key]; ok && now.Sub(prev.at) <= s.window && prev.priority > priority {
		return false
	}
	s.seen[key] = suppressorEntry{priority: priority, at: now}
	return true
}
