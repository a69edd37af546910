// Package session owns the per-open-panel state of the messaging engine.
// Everything — store, watermark, sync loop — is constructed fresh when a
// panel opens and discarded when it closes, so reopening always resyncs the
// full history instead of resuming from stale state.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"campuschat/internal/autoreply"
	"campuschat/internal/bus"
	"campuschat/internal/domain"
	"campuschat/internal/inbox"
	"campuschat/internal/metrics"
	"campuschat/internal/mutate"
	"campuschat/internal/store"
	"campuschat/internal/syncer"
	"campuschat/internal/transport"
)

// Config configures one chat session.
type Config struct {
	ViewerID     int64
	ViewerName   string
	ViewerRole   string
	PollInterval time.Duration

	// Auto-reply side effect; leaving Phrase empty disables it.
	ReplyPhrase   string
	AssistantName string
	ReplyTimeout  time.Duration

	// PushURL, when set, additionally feeds the store from the websocket
	// push channel. Polling still runs; the merge contract makes the two
	// sources safe to combine.
	PushURL string

	Logger *slog.Logger
}

// Session is one open chat panel. All mutating entry points go through the
// store's single mutex, so the sync loop and UI calls may race freely.
type Session struct {
	store   *store.Store
	index   *inbox.Index
	coord   *mutate.Coordinator
	loop    *syncer.Loop
	trigger *autoreply.Trigger
	events  *bus.EventBus
	logger  *slog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open constructs the session and starts its sync loop. generator may be nil
// to disable automated replies; uploader may be nil when the deployment has
// no attachment storage.
func Open(api domain.MessageAPI, uploader domain.Uploader, dir domain.Directory, generator domain.ReplyGenerator, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("viewer", cfg.ViewerID)

	events := bus.New(logger)
	st := store.New()

	loop := syncer.New(api, st, events, syncer.Config{
		ViewerID:   cfg.ViewerID,
		ViewerRole: cfg.ViewerRole,
		Interval:   cfg.PollInterval,
		Logger:     logger,
	})
	coord := mutate.New(api, st, uploader, events, loop.Kick, mutate.Config{
		ViewerID:   cfg.ViewerID,
		ViewerName: cfg.ViewerName,
		Logger:     logger,
	})
	trigger := autoreply.New(generator, coord, events, autoreply.Config{
		Phrase:        cfg.ReplyPhrase,
		AssistantName: cfg.AssistantName,
		Timeout:       cfg.ReplyTimeout,
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:   st,
		index:   inbox.New(st, dir, cfg.ViewerID),
		coord:   coord,
		loop:    loop,
		trigger: trigger,
		events:  events,
		logger:  logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		loop.Run(ctx)
	}()

	if cfg.PushURL != "" {
		push := transport.NewPushSyncer(cfg.PushURL, st, events, logger)
		go func() {
			if err := push.Run(ctx); err != nil {
				logger.Warn("push channel stopped, polling continues", "err", err)
			}
		}()
	}

	metrics.OpenSessions.Inc()
	logger.Info("chat session opened")
	return s
}

// Send delivers a message from the viewer and, when it qualifies, fires the
// auto-reply side effect. The side effect never influences the returned
// result.
func (s *Session) Send(ctx context.Context, text string, receiverID int64, blobs [][]byte) (domain.Message, error) {
	saved, err := s.coord.Send(ctx, text, receiverID, blobs)
	if err != nil {
		return domain.Message{}, err
	}
	s.trigger.Observe(saved)
	return saved, nil
}

func (s *Session) Edit(ctx context.Context, id int64, newText string) (domain.Message, error) {
	return s.coord.Edit(ctx, id, newText)
}

func (s *Session) Delete(ctx context.Context, id int64) error {
	return s.coord.Delete(ctx, id)
}

// Conversations returns the inbox rows, most recent first.
func (s *Session) Conversations() []inbox.Conversation {
	return s.index.Conversations()
}

// Thread returns one bucket's messages, oldest first.
func (s *Session) Thread(counterpartID int64) []domain.Message {
	return s.index.Thread(counterpartID)
}

// Unread returns the viewer's total unread count.
func (s *Session) Unread() int {
	return s.index.Unread()
}

// Events exposes the notification bus for the UI layer.
func (s *Session) Events() *bus.EventBus {
	return s.events
}

// Sync schedules one out-of-band incremental poll.
func (s *Session) Sync() {
	s.loop.Kick()
}

// Close cancels the sync loop and discards all in-memory state. In-flight
// mutations are not cancelled; their results land in a store nobody reads
// anymore. Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		metrics.OpenSessions.Dec()
		s.events.Emit(bus.Event{Type: bus.EventSessionClosed})
		s.logger.Info("chat session closed")
	})
}
