// Package selection holds the user's chosen titles for one browse session.
package selection

import (
	"sort"
	"sync"

	"osusume/pkg/models"
)

// Set is an ordered collection of records, unique by ID, in insertion order.
// It is safe for concurrent use. Observers run after the lock is released.
type Set struct {
	mu       sync.Mutex
	items    []models.Anime
	onChange []func([]models.Anime)
}

func New() *Set {
	return &Set{}
}

// OnChange registers fn to receive the new contents after every mutation.
func (s *Set) OnChange(fn func([]models.Anime)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Toggle removes rec if a record with the same ID is present, otherwise
// appends it. It returns the new contents.
func (s *Set) Toggle(rec models.Anime) []models.Anime {
	s.mu.Lock()
	if i := s.indexOf(rec.ID); i >= 0 {
		s.items = append(s.items[:i:i], s.items[i+1:]...)
	} else {
		s.items = append(s.items, rec)
	}
	snap, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return snap
}

// Clear empties the set.
func (s *Set) Clear() []models.Anime {
	s.mu.Lock()
	s.items = nil
	snap, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return snap
}

// RemoveAt drops the records at the given ordinal positions. Positions out of
// range or repeated are ignored. Observers are notified once.
func (s *Set) RemoveAt(positions ...int) []models.Anime {
	s.mu.Lock()
	s.removeLocked(positions)
	snap, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return snap
}

// RemoveIDs drops the records with the given ids in one mutation. Ids not in
// the set are ignored.
func (s *Set) RemoveIDs(ids ...int64) []models.Anime {
	s.mu.Lock()
	s.removeLocked(s.positionsLocked(ids))
	snap, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snap)
	return snap
}

func (s *Set) removeLocked(positions []int) {
	drop := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		if p >= 0 && p < len(s.items) {
			drop[p] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := make([]models.Anime, 0, len(s.items)-len(drop))
	for i, it := range s.items {
		if _, ok := drop[i]; !ok {
			kept = append(kept, it)
		}
	}
	s.items = kept
}

// Items returns a copy of the contents in insertion order.
func (s *Set) Items() []models.Anime {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, _ := s.snapshotLocked()
	return snap
}

func (s *Set) IDs() []int64 {
	return models.AnimeIDs(s.Items())
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Set) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

// positionsLocked returns the sorted ordinal positions of the ids present.
func (s *Set) positionsLocked(ids []int64) []int {
	var out []int
	for _, id := range ids {
		if i := s.indexOf(id); i >= 0 {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

func (s *Set) indexOf(id int64) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Set) snapshotLocked() ([]models.Anime, []func([]models.Anime)) {
	snap := make([]models.Anime, len(s.items))
	copy(snap, s.items)
	observers := make([]func([]models.Anime), len(s.onChange))
	copy(observers, s.onChange)
	return snap, observers
}

func notify(observers []func([]models.Anime), snap []models.Anime) {
	for _, fn := range observers {
		fn(snap)
	}
}
