// Package inbox derives the grouped conversation view from the session
// store. Volumes are bounded by organization size, so the index is
// recomputed from scratch on demand rather than maintained incrementally.
package inbox

import (
	"slices"

	"campuschat/internal/domain"
	"campuschat/internal/store"
)

// Conversation is one inbox row: the bucket key plus its most recent
// non-deleted message.
type Conversation struct {
	// CounterpartID is the other party's id, or domain.BroadcastID for the
	// announcements bucket.
	CounterpartID int64
	// CounterpartName is resolved from the directory when available,
	// otherwise the representative's sender-name snapshot.
	CounterpartName string
	Latest          domain.Message
	Unread          int
}

// Index computes inbox views for one viewer.
type Index struct {
	store     *store.Store
	directory domain.Directory
	viewerID  int64
}

func New(st *store.Store, dir domain.Directory, viewerID int64) *Index {
	return &Index{store: st, directory: dir, viewerID: viewerID}
}

// Conversations groups all non-deleted messages into per-counterpart and
// broadcast buckets and returns them most-recent-first. The broadcast bucket
// competes on timestamp like any other; nothing is pinned.
func (ix *Index) Conversations() []Conversation {
	buckets := make(map[int64]*Conversation)
	for msg := range ix.store.View(nil) {
		key := msg.Counterpart(ix.viewerID)
		conv, ok := buckets[key]
		if !ok {
			conv = &Conversation{CounterpartID: key}
			buckets[key] = conv
		}
		// View yields in ascending timestamp order with deterministic
		// tie-break, so the last message seen is the representative.
		conv.Latest = msg
		if msg.SenderID != ix.viewerID && !msg.IsRead {
			conv.Unread++
		}
	}

	out := make([]Conversation, 0, len(buckets))
	for _, conv := range buckets {
		conv.CounterpartName = ix.resolveName(*conv)
		out = append(out, *conv)
	}
	slices.SortFunc(out, func(a, b Conversation) int {
		if c := b.Latest.Timestamp.Compare(a.Latest.Timestamp); c != 0 {
			return c
		}
		// Deterministic order for equal representative timestamps.
		if b.Latest.ID != a.Latest.ID {
			if b.Latest.ID > a.Latest.ID {
				return 1
			}
			return -1
		}
		return 0
	})
	return out
}

// Thread returns the ordered messages of one bucket, oldest first.
func (ix *Index) Thread(counterpartID int64) []domain.Message {
	var out []domain.Message
	for msg := range ix.store.View(func(m domain.Message) bool {
		return m.Counterpart(ix.viewerID) == counterpartID
	}) {
		out = append(out, msg)
	}
	return out
}

// Unread counts messages across all buckets that the viewer has not read:
// authored by someone else, unread, not deleted.
func (ix *Index) Unread() int {
	n := 0
	for msg := range ix.store.View(nil) {
		if msg.SenderID != ix.viewerID && !msg.IsRead {
			n++
		}
	}
	return n
}

func (ix *Index) resolveName(conv Conversation) string {
	if conv.CounterpartID == domain.BroadcastID {
		return "Everyone"
	}
	if ix.directory != nil {
		if contact, ok := ix.directory.Resolve(conv.CounterpartID); ok {
			return contact.Name
		}
	}
	if conv.Latest.SenderID == conv.CounterpartID {
		return conv.Latest.SenderName
	}
	return ""
}
