package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// It captures everything a run emits and lets callers query the history
// afterwards, which is how the engine tests assert on claim conflicts,
// aborts, and commits without scraping log output.
//
// All events are held in memory; long-running production pipelines should
// prefer LogEmitter or OTelEmitter.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events []Event
}

// HistoryFilter selects events from a BufferedEmitter. All set fields must
// match (AND logic); zero values match everything.
type HistoryFilter struct {
	Step string // filter by step name (empty = any)
	Key  string // filter by output key (empty = any)
	Msg  string // filter by event message (empty = any)
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{}
}

// Emit stores the event. Safe for concurrent use.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// History returns a copy of all captured events in emission order.
func (b *BufferedEmitter) History() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// HistoryWithFilter returns the captured events matching the filter, in
// emission order.
func (b *BufferedEmitter) HistoryWithFilter(filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := []Event{}
	for _, event := range b.events {
		if filter.Step != "" && event.Step != filter.Step {
			continue
		}
		if filter.Key != "" && event.Key != filter.Key {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		out = append(out, event)
	}
	return out
}

// Count returns how many captured events match the filter.
func (b *BufferedEmitter) Count(filter HistoryFilter) int {
	return len(b.HistoryWithFilter(filter))
}

// Clear drops all captured events.
func (b *BufferedEmitter) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
