package macro

import "sync"

// Log is an ordered, append-only sequence of events. Times are kept
// non-decreasing: an event appended with an earlier time than its
// predecessor is moved up to the predecessor's time.
//
// Log is safe for concurrent use; readers get copies.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

// NewLog creates a log holding events. The slice is copied and its times
// are normalised to be non-decreasing.
func NewLog(events ...Event) *Log {
	l := &Log{events: make([]Event, 0, len(events))}
	for _, e := range events {
		l.appendLocked(e)
	}
	return l
}

// Append adds an event to the end of the log and returns the event as
// stored.
func (l *Log) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(e)
}

func (l *Log) appendLocked(e Event) Event {
	if n := len(l.events); n > 0 {
		if prev := l.events[n-1].Offset(); e.Offset() < prev {
			e = e.WithOffset(prev)
		}
	}
	if e.Offset() < 0 {
		e = e.WithOffset(0)
	}
	l.events = append(l.events, e)
	return e
}

// Reset removes every event.
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

// Replace swaps the content of the log for events.
func (l *Log) Replace(events []Event) {
	fresh := NewLog(events...)
	l.mu.Lock()
	l.events = fresh.events
	l.mu.Unlock()
}

// Len returns the number of events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Events returns a copy of the events.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Duration returns the time between the first and the last event in
// seconds.
func (l *Log) Duration() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return 0
	}
	return l.events[len(l.events)-1].Offset() - l.events[0].Offset()
}

// Counts returns the number of events per kind.
func (l *Log) Counts() map[Kind]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[Kind]int, len(kindNames))
	for _, e := range l.events {
		counts[e.Kind()]++
	}
	return counts
}
