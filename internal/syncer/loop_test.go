package syncer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"campuschat/internal/bus"
	"campuschat/internal/domain"
	"campuschat/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeAPI records fetch calls and serves scripted batches.
type fakeAPI struct {
	mu      sync.Mutex
	sinces  []time.Time
	batches [][]domain.Message
	errs    []error
	block   chan struct{} // when set, FetchSince waits on it
}

func (f *fakeAPI) FetchSince(ctx context.Context, viewerID int64, role string, since time.Time) ([]domain.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)
	call := len(f.sinces) - 1
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	if call < len(f.batches) {
		return f.batches[call], nil
	}
	return nil, nil
}

func (f *fakeAPI) Send(ctx context.Context, d domain.Draft) (domain.Message, error) {
	return domain.Message{}, errors.New("not implemented")
}
func (f *fakeAPI) Edit(ctx context.Context, m domain.Message) (domain.Message, error) {
	return domain.Message{}, errors.New("not implemented")
}
func (f *fakeAPI) Delete(ctx context.Context, m domain.Message) error {
	return errors.New("not implemented")
}

func (f *fakeAPI) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.sinces...)
}

func msgAt(id int64, t time.Time) domain.Message {
	return domain.Message{ID: id, SenderID: 2, ReceiverID: 1, Text: "hi", Timestamp: t}
}

func newLoop(api domain.MessageAPI, st *store.Store) *Loop {
	return New(api, st, bus.New(testLogger()), Config{
		ViewerID:   1,
		ViewerRole: "teacher",
		Interval:   20 * time.Millisecond,
		Logger:     testLogger(),
	})
}

func TestInitialFetch_FullHistoryAdvancesWatermark(t *testing.T) {
	t1 := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	api := &fakeAPI{batches: [][]domain.Message{{msgAt(1, t2), msgAt(2, t1)}}}
	st := store.New()
	l := newLoop(api, st)

	l.poll(context.Background(), time.Time{}, true)

	calls := api.calls()
	if len(calls) != 1 || !calls[0].IsZero() {
		t.Fatalf("initial fetch since = %v, want zero sentinel", calls)
	}
	if got := st.Watermark(); !got.Equal(t2) {
		t.Fatalf("watermark = %v, want %v", got, t2)
	}
	if st.Len() != 2 {
		t.Fatalf("store has %d records, want 2", st.Len())
	}
}

func TestInitialFetch_EmptyHistoryInitializesBaseline(t *testing.T) {
	api := &fakeAPI{}
	st := store.New()
	l := newLoop(api, st)

	before := time.Now()
	l.poll(context.Background(), time.Time{}, true)

	wm := st.Watermark()
	if wm.IsZero() {
		t.Fatal("watermark not initialized after empty full fetch")
	}
	if wm.Before(before) {
		t.Fatalf("baseline %v predates the fetch", wm)
	}
}

func TestIncrementalPoll_UsesWatermarkAndIsNoOpWhenEmpty(t *testing.T) {
	t1 := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	api := &fakeAPI{batches: [][]domain.Message{{msgAt(1, t1)}, nil}}
	st := store.New()
	l := newLoop(api, st)

	l.poll(context.Background(), time.Time{}, true)
	l.poll(context.Background(), st.Watermark(), false)

	calls := api.calls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if !calls[1].Equal(t1) {
		t.Fatalf("incremental since = %v, want %v", calls[1], t1)
	}
	if got := st.Watermark(); !got.Equal(t1) {
		t.Fatalf("empty tick moved the watermark to %v", got)
	}
}

func TestPoll_ErrorSwallowedLoopContinues(t *testing.T) {
	t1 := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		errs:    []error{errors.New("gateway timeout"), nil},
		batches: [][]domain.Message{nil, {msgAt(1, t1)}},
	}
	st := store.New()
	l := newLoop(api, st)

	l.poll(context.Background(), time.Time{}, true)
	if st.Len() != 0 {
		t.Fatal("failed poll must not touch the store")
	}

	l.poll(context.Background(), time.Time{}, true)
	if st.Len() != 1 {
		t.Fatal("next poll after a failure did not merge")
	}
}

func TestPoll_BusyFlagSkipsConcurrentPoll(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	st := store.New()
	l := newLoop(api, st)

	done := make(chan struct{})
	go func() {
		l.poll(context.Background(), time.Time{}, false)
		close(done)
	}()

	// Wait for the first poll to be in flight, then attempt a second.
	time.Sleep(10 * time.Millisecond)
	l.poll(context.Background(), time.Time{}, false)

	close(api.block)
	<-done

	if got := len(api.calls()); got != 1 {
		t.Fatalf("got %d fetches, want 1 (second poll must be skipped)", got)
	}
}

func TestRun_KickTriggersOutOfBandPoll(t *testing.T) {
	api := &fakeAPI{}
	st := store.New()
	l := New(api, st, bus.New(testLogger()), Config{
		ViewerID: 1,
		Interval: time.Hour, // ticker must not fire during the test
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	waitFor(t, func() bool { return len(api.calls()) == 1 })
	l.Kick()
	waitFor(t, func() bool { return len(api.calls()) == 2 })
}

func TestRun_CancelStopsPolling(t *testing.T) {
	api := &fakeAPI{}
	st := store.New()
	l := newLoop(api, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return len(api.calls()) >= 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}

	n := len(api.calls())
	time.Sleep(60 * time.Millisecond)
	if got := len(api.calls()); got != n {
		t.Fatalf("loop polled after close: %d -> %d", n, got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
