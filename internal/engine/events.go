package engine

import (
	"log/slog"
	"sync"
)

// Event is a notable occurrence in the nest.
type Event struct {
	Seq         uint64         `json:"seq"`
	Tick        uint64         `json:"tick"`
	Time        string         `json:"time"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "disaster", "colony", "season", "command", "save"
	Meta        map[string]any `json:"meta,omitempty"`
}

// eventLog keeps the most recent events and fans new ones out to
// subscribers. Slow subscribers miss events rather than stall the loop.
type eventLog struct {
	mu     sync.Mutex
	ring   []Event
	start  int
	size   int
	seq    uint64
	subs   map[int]chan Event
	nextID int
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{
		ring: make([]Event, max(capacity, 1)),
		subs: make(map[int]chan Event),
	}
}

func (l *eventLog) emit(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e.Seq = l.seq
	if l.size < len(l.ring) {
		l.ring[(l.start+l.size)%len(l.ring)] = e
		l.size++
	} else {
		l.ring[l.start] = e
		l.start = (l.start + 1) % len(l.ring)
	}
	for id, ch := range l.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("event dropped for slow subscriber", "sub_id", id, "seq", e.Seq)
		}
	}
	return e
}

// recent returns up to limit events, oldest first. limit <= 0 returns all.
func (l *eventLog) recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	skip := l.size - n
	for i := range out {
		out[i] = l.ring[(l.start+skip+i)%len(l.ring)]
	}
	return out
}

func (l *eventLog) subscribe(buffer int) (int, <-chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	ch := make(chan Event, max(buffer, 1))
	l.subs[l.nextID] = ch
	return l.nextID, ch
}

func (l *eventLog) unsubscribe(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.subs[id]; ok {
		delete(l.subs, id)
		close(ch)
	}
}

func (l *eventLog) lastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// restore seeds the log with saved events and continues their numbering.
func (l *eventLog) restore(events []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start, l.size = 0, 0
	if len(events) > len(l.ring) {
		events = events[len(events)-len(l.ring):]
	}
	for _, e := range events {
		l.ring[l.size] = e
		l.size++
		l.seq = max(l.seq, e.Seq)
	}
}
