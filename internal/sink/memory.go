package sink

import (
	"strings"
	"sync"
)

const defaultMemoryCap = 512

// MemorySink keeps the most recent events in a ring for the HTTP surface
// when no database is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = defaultMemoryCap
	}
	return &MemorySink{events: make([]Event, capacity)}
}

func (s *MemorySink) Append(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = evt
	s.next++
	if s.next == len(s.events) {
		s.next = 0
		s.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first, optionally filtered by
// symbol.
func (s *MemorySink) Recent(symbol string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.next
	if s.full {
		size = len(s.events)
	}
	out := make([]Event, 0, limit)
	for i := 1; i <= size && len(out) < limit; i++ {
		idx := s.next - i
		if idx < 0 {
			idx += len(s.events)
		}
		evt := s.events[idx]
		if symbol != "" && evt.Symbol != symbol {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

func (s *MemorySink) Close() error { return nil }
