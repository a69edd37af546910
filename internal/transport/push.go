package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"campuschat/internal/bus"
	"campuschat/internal/domain"
	"campuschat/internal/metrics"
	"campuschat/internal/store"
)

// PushSyncer is the server-push alternative to the poll loop. It feeds
// incoming frames through the same merge/watermark contract, so the store
// and inbox stay agnostic of how messages arrive.
type PushSyncer struct {
	url    string
	store  *store.Store
	events *bus.EventBus
	logger *slog.Logger
}

func NewPushSyncer(url string, st *store.Store, events *bus.EventBus, logger *slog.Logger) *PushSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushSyncer{url: url, store: st, events: events, logger: logger}
}

// Run connects and consumes message frames until ctx is cancelled or the
// connection drops. A cancelled context is a clean shutdown, not an error.
func (p *PushSyncer) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	p.logger.Info("push channel connected", "url", p.url)
	for {
		var msg domain.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read push frame: %w", err)
		}

		added := p.store.Merge([]domain.Message{msg})
		p.store.AdvanceWatermark(msg.Timestamp)
		metrics.MessagesMerged.Add(int64(added))
		p.events.Emit(bus.Event{
			Type:    bus.EventStoreChanged,
			Payload: map[string]any{"added": added, "merged": 1},
		})
	}
}
