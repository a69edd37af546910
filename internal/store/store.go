// Package store holds the in-memory message set for one open chat session.
// It is the only shared mutable state in the engine: the sync loop and the
// mutation coordinator both write to it, so every entry point takes the lock.
package store

import (
	"iter"
	"slices"
	"sync"
	"time"

	"campuschat/internal/domain"
)

// Filter selects messages for a View projection. A nil Filter matches all.
type Filter func(domain.Message) bool

// Store is an id-keyed, timestamp-ordered set of messages with a monotonic
// sync watermark. Deleted messages stay in the set (soft delete) so repeated
// syncs cannot resurrect them.
type Store struct {
	mu        sync.Mutex
	records   []domain.Message
	byID      map[int64]int
	watermark time.Time
}

func New() *Store {
	return &Store{byID: make(map[int64]int)}
}

// Merge upserts a batch of messages. Unseen ids are inserted; seen ids have
// their record overwritten in place, which is how edits and deletes arriving
// through sync propagate. Returns the number of newly seen ids.
func (s *Store) Merge(incoming []domain.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, msg := range incoming {
		msg.Pending = false
		if idx, ok := s.byID[msg.ID]; ok {
			s.records[idx] = msg
			continue
		}
		s.byID[msg.ID] = len(s.records)
		s.records = append(s.records, msg)
		added++
	}
	return added
}

// AdvanceWatermark raises the watermark to t if t is later. The watermark
// never regresses.
func (s *Store) AdvanceWatermark(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.watermark) {
		s.watermark = t
	}
}

// Watermark returns the highest timestamp merged so far; zero means no
// baseline has been established yet.
func (s *Store) Watermark() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// InitWatermark establishes the incremental baseline after an empty initial
// fetch. It is a no-op once any watermark exists.
func (s *Store) InitWatermark(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watermark.IsZero() {
		s.watermark = t
	}
}

// Insert adds a single locally created record. The id must be unseen;
// returns false otherwise.
func (s *Store) Insert(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	s.byID[msg.ID] = len(s.records)
	s.records = append(s.records, msg)
	return true
}

// ReplaceTentative swaps the record at localID for the server's
// authoritative copy, which may carry a different id. The slot is reused so
// no duplicate appears; ordering is reconstructed by timestamp at view time.
func (s *Store) ReplaceTentative(localID int64, serverCopy domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[localID]
	if !ok {
		return false
	}
	serverCopy.Pending = false
	delete(s.byID, localID)
	// The server may already have delivered its copy through a sync tick; in
	// that case drop the tentative slot instead of duplicating the id.
	if dup, seen := s.byID[serverCopy.ID]; seen {
		s.records[dup] = serverCopy
		s.removeAt(idx)
		return true
	}
	s.records[idx] = serverCopy
	s.byID[serverCopy.ID] = idx
	return true
}

// RemoveTentative discards a tentative record after a failed send. The store
// is restored to its pre-send state.
func (s *Store) RemoveTentative(localID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[localID]
	if !ok {
		return false
	}
	delete(s.byID, localID)
	s.removeAt(idx)
	return true
}

// removeAt deletes records[idx] and repairs the index. Caller holds the lock.
func (s *Store) removeAt(idx int) {
	s.records = slices.Delete(s.records, idx, idx+1)
	for id, i := range s.byID {
		if i > idx {
			s.byID[id] = i - 1
		}
	}
}

// MarkDeleted flips the soft-delete flag on a record, in both directions so
// a failed remote delete can be rolled back.
func (s *Store) MarkDeleted(id int64, deleted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	s.records[idx].IsDeleted = deleted
	return true
}

// Get returns the record with the given id.
func (s *Store) Get(id int64) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	return s.records[idx], true
}

// Len returns the number of records, deleted ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// View yields non-deleted messages matching the filter, ordered by timestamp
// with ties broken by ascending id. The projection is recomputed on every
// call; it is restartable and reflects edits made since the last call.
func (s *Store) View(filter Filter) iter.Seq[domain.Message] {
	return func(yield func(domain.Message) bool) {
		s.mu.Lock()
		out := make([]domain.Message, 0, len(s.records))
		for _, msg := range s.records {
			if msg.IsDeleted {
				continue
			}
			if filter != nil && !filter(msg) {
				continue
			}
			out = append(out, msg)
		}
		s.mu.Unlock()

		slices.SortFunc(out, func(a, b domain.Message) int {
			if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
				return c
			}
			if a.ID < b.ID {
				return -1
			}
			if a.ID > b.ID {
				return 1
			}
			return 0
		})
		for _, msg := range out {
			if !yield(msg) {
				return
			}
		}
	}
}
