package state

import (
	"sync"

	"wifi-rtt-sync/internal/models"
)

// DisplayState holds the current presentation list. Writes replace the
// whole value, so readers never observe a half-merged list. The workflow
// is the single writer; any number of observers read or subscribe.
type DisplayState struct {
	mu      sync.RWMutex
	entries []models.DisplayEntry
	subs    map[int]chan []models.DisplayEntry
	nextSub int
}

func NewDisplayState() *DisplayState {
	return &DisplayState{
		entries: []models.DisplayEntry{},
		subs:    make(map[int]chan []models.DisplayEntry),
	}
}

// Get returns a copy of the current entry list. Before the first publish
// this is an empty list, never nil.
func (s *DisplayState) Get() []models.DisplayEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.DisplayEntry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Set replaces the current value and fans it out to all subscribers.
// A subscriber that is not keeping up misses intermediate values; it can
// always call Get for the latest one.
func (s *DisplayState) Set(entries []models.DisplayEntry) {
	stored := make([]models.DisplayEntry, len(entries))
	copy(stored, entries)

	s.mu.Lock()
	s.entries = stored
	subs := make([]chan []models.DisplayEntry, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		update := make([]models.DisplayEntry, len(stored))
		copy(update, stored)
		select {
		case ch <- update:
		default:
		}
	}
}

// Subscribe registers an observer channel. The returned cancel func
// removes the subscription and closes the channel.
func (s *DisplayState) Subscribe() (<-chan []models.DisplayEntry, func()) {
	ch := make(chan []models.DisplayEntry, 16)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}

	return ch, cancel
}
