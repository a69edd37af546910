// Package mutate implements the optimistic write path: local changes are
// applied to the session store before the network round trip and reconciled
// with the server's authoritative copy, or rolled back on failure.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"campuschat/internal/bus"
	"campuschat/internal/domain"
	"campuschat/internal/metrics"
	"campuschat/internal/store"
)

// Config configures a coordinator for one viewer session.
type Config struct {
	ViewerID   int64
	ViewerName string
	Logger     *slog.Logger
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Coordinator issues send/edit/delete mutations. Write failures surface to
// the caller; sync and side-effect failures never do.
type Coordinator struct {
	api      domain.MessageAPI
	store    *store.Store
	uploader domain.Uploader
	events   *bus.EventBus
	kick     func()

	viewerID   int64
	viewerName string
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex // serializes local id allocation
}

// New creates a coordinator. kick is called after every mutation outcome so
// an out-of-band sync tick picks up peer edits; it may be nil in tests.
func New(api domain.MessageAPI, st *store.Store, uploader domain.Uploader, events *bus.EventBus, kick func(), cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if kick == nil {
		kick = func() {}
	}
	return &Coordinator{
		api:        api,
		store:      st,
		uploader:   uploader,
		events:     events,
		kick:       kick,
		viewerID:   cfg.ViewerID,
		viewerName: cfg.ViewerName,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// Send delivers a new message from the viewer. Raw attachment payloads are
// handed to the upload collaborator first; only the returned references
// travel in the draft.
func (c *Coordinator) Send(ctx context.Context, text string, receiverID int64, blobs [][]byte) (domain.Message, error) {
	return c.SendAs(ctx, c.viewerID, c.viewerName, text, receiverID, blobs)
}

// SendAs is Send with an explicit author; the auto-reply path uses it to
// deliver messages authored by the synthetic assistant id.
func (c *Coordinator) SendAs(ctx context.Context, senderID int64, senderName string, text string, receiverID int64, blobs [][]byte) (domain.Message, error) {
	defer c.kick()
	metrics.SendsTotal.Inc()

	localID := c.insertTentative(domain.Message{
		SenderID:   senderID,
		SenderName: senderName,
		ReceiverID: receiverID,
		Text:       text,
	})

	refs, err := c.uploadAll(ctx, blobs)
	if err != nil {
		c.rollback(localID, err)
		return domain.Message{}, fmt.Errorf("upload attachments: %w", err)
	}

	saved, err := c.api.Send(ctx, domain.Draft{
		ClientRef:   uuid.NewString(),
		SenderID:    senderID,
		SenderName:  senderName,
		ReceiverID:  receiverID,
		Text:        text,
		Attachments: refs,
	})
	if err != nil {
		c.rollback(localID, err)
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}

	c.reconcile(localID, saved)
	return saved, nil
}

// Edit rewrites the text of an existing message. The tentative copy carries
// a fresh local id; reconciliation collapses it back onto the server record.
func (c *Coordinator) Edit(ctx context.Context, id int64, newText string) (domain.Message, error) {
	orig, ok := c.store.Get(id)
	if !ok {
		return domain.Message{}, fmt.Errorf("edit message %d: not in session store", id)
	}

	defer c.kick()
	metrics.SendsTotal.Inc()

	tent := orig
	tent.Text = newText
	tent.IsEdited = true
	localID := c.insertTentative(tent)
	// Hide the original while the round trip is in flight so the thread
	// shows one copy, not the old text next to the tentative one.
	c.store.MarkDeleted(id, true)

	payload := orig
	payload.Text = newText
	payload.IsEdited = true
	saved, err := c.api.Edit(ctx, payload)
	if err != nil {
		c.rollback(localID, err)
		c.store.MarkDeleted(id, orig.IsDeleted)
		return domain.Message{}, fmt.Errorf("edit message %d: %w", id, err)
	}

	c.reconcile(localID, saved)
	return saved, nil
}

// Delete soft-deletes a message: the record is hidden locally right away and
// unhidden again if the remote delete fails.
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	orig, ok := c.store.Get(id)
	if !ok {
		return fmt.Errorf("delete message %d: not in session store", id)
	}

	defer c.kick()

	c.store.MarkDeleted(id, true)
	c.events.Emit(bus.Event{Type: bus.EventStoreChanged, Payload: map[string]any{"deleted": id}})

	payload := orig
	payload.IsDeleted = true
	if err := c.api.Delete(ctx, payload); err != nil {
		c.store.MarkDeleted(id, false)
		metrics.SendFailures.Inc()
		c.events.Emit(bus.Event{Type: bus.EventSendFailed, Payload: map[string]any{"id": id, "err": err.Error()}})
		c.logger.Warn("delete rolled back", "id", id, "err", err)
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	return nil
}

// insertTentative assigns a millisecond-clock local id and puts the pending
// record in the store so the UI reflects it before any network round trip.
func (c *Coordinator) insertTentative(msg domain.Message) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg.Timestamp = c.now()
	msg.Pending = true
	localID := msg.Timestamp.UnixMilli()
	for {
		msg.ID = localID
		if c.store.Insert(msg) {
			break
		}
		// Two mutations inside the same millisecond: bump until free.
		localID++
	}
	c.events.Emit(bus.Event{Type: bus.EventStoreChanged, Payload: map[string]any{"tentative": localID}})
	return localID
}

func (c *Coordinator) uploadAll(ctx context.Context, blobs [][]byte) ([]string, error) {
	if len(blobs) == 0 {
		return nil, nil
	}
	if c.uploader == nil {
		return nil, fmt.Errorf("no upload collaborator configured")
	}
	return c.uploader.Put(ctx, blobs)
}

func (c *Coordinator) reconcile(localID int64, saved domain.Message) {
	c.store.ReplaceTentative(localID, saved)
	c.events.Emit(bus.Event{Type: bus.EventStoreChanged, Payload: map[string]any{"confirmed": saved.ID}})
}

func (c *Coordinator) rollback(localID int64, cause error) {
	c.store.RemoveTentative(localID)
	metrics.SendFailures.Inc()
	c.events.Emit(bus.Event{Type: bus.EventSendFailed, Payload: map[string]any{"tentative": localID, "err": cause.Error()}})
	c.logger.Warn("mutation rolled back", "tentative", localID, "err", cause)
}
