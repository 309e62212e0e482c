package calendar

import "sort"

// Store maps event ids to events (masters and standalone events
// alike). It is exclusively owned by one expansion engine; all reads
// return copies, never live references into store state, and the
// owner serializes access, so the store carries no locking of its own.
type Store struct {
	events map[string]Event
}

// NewStore creates an empty event store.
func NewStore() *Store {
	return &Store{events: make(map[string]Event)}
}

// Put creates or replaces an event after validating it.
func (s *Store) Put(e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.events[e.ID] = e.Clone()
	return nil
}

// Get returns a copy of the event with the given id.
func (s *Store) Get(id string) (Event, bool) {
	e, ok := s.events[id]
	if !ok {
		return Event{}, false
	}
	return e.Clone(), true
}

// Remove deletes the event, returning the removed value. Removing an
// unknown id is a no-op reported through the bool.
func (s *Store) Remove(id string) (Event, bool) {
	e, ok := s.events[id]
	if !ok {
		return Event{}, false
	}
	delete(s.events, id)
	return e, true
}

// List returns a snapshot of all events ordered by start, then id.
func (s *Store) List() []Event {
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	return len(s.events)
}
