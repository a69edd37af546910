// Package syncer runs the fixed-interval poll loop that keeps a session's
// message store converged with the backend.
package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"campuschat/internal/bus"
	"campuschat/internal/domain"
	"campuschat/internal/metrics"
	"campuschat/internal/store"
)

const defaultInterval = 5 * time.Second

// Config configures a sync loop.
type Config struct {
	ViewerID   int64
	ViewerRole string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Loop polls the backend for messages newer than the store's watermark and
// merges them. At most one poll is in flight at a time; a tick that fires
// while a poll is outstanding is skipped, never queued.
type Loop struct {
	api        domain.MessageAPI
	store      *store.Store
	events     *bus.EventBus
	viewerID   int64
	viewerRole string
	interval   time.Duration
	logger     *slog.Logger

	busy atomic.Bool
	kick chan struct{}
}

func New(api domain.MessageAPI, st *store.Store, events *bus.EventBus, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		api:        api,
		store:      st,
		events:     events,
		viewerID:   cfg.ViewerID,
		viewerRole: cfg.ViewerRole,
		interval:   cfg.Interval,
		logger:     cfg.Logger,
		kick:       make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled. The first poll requests the entire
// history (zero-time sentinel); every later poll is incremental from the
// watermark.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("sync loop started", "interval", l.interval, "viewer", l.viewerID)

	l.poll(ctx, time.Time{}, true)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sync loop closed", "viewer", l.viewerID)
			return
		case <-l.kick:
			l.poll(ctx, l.store.Watermark(), false)
		case <-ticker.C:
			l.poll(ctx, l.store.Watermark(), false)
		}
	}
}

// Kick schedules one out-of-band incremental poll. It does not reset the
// periodic timer and coalesces with an already pending kick.
func (l *Loop) Kick() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// poll fetches, merges and advances the watermark. Failures are logged and
// swallowed; the next tick retries naturally.
func (l *Loop) poll(ctx context.Context, since time.Time, initial bool) {
	if !l.busy.CompareAndSwap(false, true) {
		l.logger.Debug("poll still in flight, skipping tick")
		return
	}
	defer l.busy.Store(false)

	start := time.Now()
	metrics.PollsTotal.Inc()
	msgs, err := l.api.FetchSince(ctx, l.viewerID, l.viewerRole, since)
	metrics.PollLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollErrorsTotal.Inc()
		l.logger.Warn("poll failed", "since", since, "err", err)
		return
	}

	if len(msgs) == 0 {
		if initial {
			// Empty history: establish a baseline so the next incremental
			// poll does not refetch everything forever.
			l.store.InitWatermark(time.Now())
		}
		return
	}

	added := l.store.Merge(msgs)
	metrics.MessagesMerged.Add(int64(added))

	maxTS := msgs[0].Timestamp
	for _, m := range msgs[1:] {
		if m.Timestamp.After(maxTS) {
			maxTS = m.Timestamp
		}
	}
	l.store.AdvanceWatermark(maxTS)

	l.events.Emit(bus.Event{
		Type:    bus.EventStoreChanged,
		Payload: map[string]any{"added": added, "merged": len(msgs)},
	})
	l.logger.Debug("poll merged", "fetched", len(msgs), "added", added, "watermark", maxTS)
}
