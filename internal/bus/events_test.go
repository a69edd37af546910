package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := New(testLogger())

	var received int32
	eb.On(EventStoreChanged, func(e Event) {
		atomic.AddInt32(&received, 1)
	})

	eb.Emit(Event{Type: EventStoreChanged, Payload: map[string]any{"added": 2}})

	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("expected 1 event received, got %d", received)
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := New(testLogger())

	var count int32
	eb.On("*", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: EventStoreChanged})
	eb.Emit(Event{Type: EventSendFailed})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_Off(t *testing.T) {
	eb := New(testLogger())

	var count int32
	id := eb.On(EventStoreChanged, func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: EventStoreChanged})
	eb.Off(EventStoreChanged, id)
	eb.Emit(Event{Type: EventStoreChanged})

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected 1 after unsubscribe, got %d", count)
	}
}

func TestEventBus_IDsUniqueAfterUnsubscribe(t *testing.T) {
	eb := New(testLogger())

	var first, second int32
	id1 := eb.On(EventStoreChanged, func(e Event) { atomic.AddInt32(&first, 1) })
	eb.Off(EventStoreChanged, id1)

	id2 := eb.On(EventStoreChanged, func(e Event) { atomic.AddInt32(&first, 1) })
	id3 := eb.On(EventStoreChanged, func(e Event) { atomic.AddInt32(&second, 1) })
	if id2 == id1 || id3 == id1 || id3 == id2 {
		t.Fatalf("handler ids collide: %q %q %q", id1, id2, id3)
	}

	// Removing the re-registered handler must not take out its neighbour.
	eb.Off(EventStoreChanged, id2)
	eb.Emit(Event{Type: EventStoreChanged})

	if atomic.LoadInt32(&first) != 0 {
		t.Error("unsubscribed handler still ran")
	}
	if atomic.LoadInt32(&second) != 1 {
		t.Errorf("surviving handler ran %d times, want 1", second)
	}
}

func TestEventBus_PanicIsolated(t *testing.T) {
	eb := New(testLogger())

	var after int32
	eb.On(EventSendFailed, func(e Event) { panic("boom") })
	eb.On(EventSendFailed, func(e Event) { atomic.AddInt32(&after, 1) })

	eb.Emit(Event{Type: EventSendFailed})

	if atomic.LoadInt32(&after) != 1 {
		t.Error("handler after panicking one did not run")
	}
}
