package domain

import "time"

// Reserved identifiers. Real directory members always have positive ids.
const (
	// BroadcastID as a receiver means "every current directory member".
	BroadcastID int64 = 0
	// AssistantID is the synthetic sender id used for automated replies.
	AssistantID int64 = -1
)

// Message is one chat message as held in the session store. Timestamps are
// server-assigned on acceptance; tentative records carry a local instant
// until reconciled.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"senderId"`
	SenderName  string    `json:"senderName"`
	ReceiverID  int64     `json:"receiverId"`
	Text        string    `json:"text"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"isRead"`
	IsEdited    bool      `json:"isEdited"`
	IsDeleted   bool      `json:"isDeleted"`

	// Pending marks a locally created record that has not been confirmed by
	// the server yet. Never serialized.
	Pending bool `json:"-"`
}

// Broadcast reports whether the message is addressed to all members rather
// than one counterpart.
func (m Message) Broadcast() bool { return m.ReceiverID == BroadcastID }

// Counterpart returns the other party of a direct message relative to the
// viewer. For broadcast messages it returns BroadcastID.
func (m Message) Counterpart(viewer int64) int64 {
	if m.Broadcast() {
		return BroadcastID
	}
	if m.SenderID == viewer {
		return m.ReceiverID
	}
	return m.SenderID
}

// Draft is the outbound payload for a send. ClientRef is a per-attempt UUID
// so the server can deduplicate a resubmitted draft.
type Draft struct {
	ClientRef   string   `json:"clientRef"`
	SenderID    int64    `json:"senderId"`
	SenderName  string   `json:"senderName"`
	ReceiverID  int64    `json:"receiverId"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

// Contact is one directory entry: read-only input supplied by the
// surrounding application, never mutated by this subsystem.
type Contact struct {
	ID     int64  `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}
