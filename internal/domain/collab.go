package domain

import (
	"context"
	"time"
)

// MessageAPI is the backend message endpoint. FetchSince with a zero time
// requests the full history for the viewer.
type MessageAPI interface {
	FetchSince(ctx context.Context, viewerID int64, viewerRole string, since time.Time) ([]Message, error)
	Send(ctx context.Context, draft Draft) (Message, error)
	Edit(ctx context.Context, msg Message) (Message, error)
	Delete(ctx context.Context, msg Message) error
}

// Uploader stores raw attachment payloads and returns durable references in
// the same order. The engine only ever handles the references afterwards.
type Uploader interface {
	Put(ctx context.Context, blobs [][]byte) ([]string, error)
}

// Directory resolves counterpart ids to display metadata. Implementations
// are read-only from the engine's point of view.
type Directory interface {
	Resolve(id int64) (Contact, bool)
	List() []Contact
}

// ReplyGenerator produces automated reply text for a prompt. Errors are
// always swallowed by the caller; generation must never block a send.
type ReplyGenerator interface {
	Generate(ctx context.Context, prompt, contextLabel string) (string, error)
}
