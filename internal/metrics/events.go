package metrics

import (
	"sync"
	"time"

	"github.com/wormy/server/config"
)

// Event is one admin-visible log entry.
type Event struct {
	Ts     time.Time `json:"ts"`
	Kind   string    `json:"kind"`
	RoomID string    `json:"roomId,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// EventLog is a capped ring of recent events with fan-out to live
// subscribers (admin WS). Writes are serialized by a coarse lock;
// reads copy.
type EventLog struct {
	mu      sync.Mutex
	entries []Event
	next    int
	full    bool

	subs map[chan Event]struct{}
}

// NewEventLog creates an event log holding the most recent
// config.EventLogSize entries.
func NewEventLog() *EventLog {
	return &EventLog{
		entries: make([]Event, config.EventLogSize),
		subs:    make(map[chan Event]struct{}),
	}
}

// Append records an event and pushes it to subscribers. Slow subscribers
// miss events rather than block the writer.
func (l *EventLog) Append(ev Event) {
	l.mu.Lock()
	l.entries[l.next] = ev
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	for ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	l.mu.Unlock()
}

// Recent returns the stored events, oldest first.
func (l *EventLog) Recent() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]Event, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Event, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// Subscribe registers a live event channel. The returned cancel func
// removes and closes it.
func (l *EventLog) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	return ch, func() {
		l.mu.Lock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
}
