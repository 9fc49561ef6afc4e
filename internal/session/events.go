package session

import (
	"robotfleet/internal/robotapi"
)

// EventKind identifies what changed.
type EventKind string

const (
	EventPositions EventKind = "positions"
	EventAutoRun   EventKind = "auto-run"
	EventError     EventKind = "error"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 16

// Event is a change notification. Only the fields matching Kind are set.
type Event struct {
	Kind        EventKind
	Positions   robotapi.PositionSet
	AutoRunning bool
	Err         error
}

// Subscribe returns a channel of events and a func that cancels the
// subscription. A subscriber that falls behind misses events.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Session) publish(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
