package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

func msg(user int64, text string) transport.Message {
	return transport.Message{ChatID: user, FromID: user, Text: text}
}

func waitIdle(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestMessagesOfOneUserAreSerialized(t *testing.T) {
	t.Parallel()
	var (
		mu       sync.Mutex
		order    []string
		inFlight atomic.Int32
		overlap  atomic.Bool
	)
	h := func(ctx context.Context, req *Request) error {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		order = append(order, req.Message.Text)
		mu.Unlock()
		inFlight.Add(-1)
		return nil
	}
	m := NewManager(Config{}, h, logx.Nop())
	for _, s := range []string{"m1", "m2", "m3"} {
		m.Enqueue(7, msg(7, s))
	}
	waitIdle(t, m)

	if overlap.Load() {
		t.Fatal("handler invocations overlapped for one user")
	}
	if len(order) != 3 || order[0] != "m1" || order[1] != "m2" || order[2] != "m3" {
		t.Fatalf("order = %v", order)
	}
}

func TestDifferentUsersDrainConcurrently(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan int64, 2)
	h := func(ctx context.Context, req *Request) error {
		started <- req.Session.UserID()
		<-release
		return nil
	}
	m := NewManager(Config{}, h, logx.Nop())
	m.Enqueue(1, msg(1, "a"))
	m.Enqueue(2, msg(2, "b"))

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatal("second user blocked behind the first")
		}
	}
	close(release)
	waitIdle(t, m)
}

func TestFailureClearsStateNotifiesAndContinues(t *testing.T) {
	t.Parallel()
	var handled []string
	h := func(ctx context.Context, req *Request) error {
		handled = append(handled, req.Message.Text)
		switch req.Message.Text {
		case "set":
			req.Session.SetState("wizard")
		case "fail":
			return errors.New("storage down")
		case "panic":
			panic("boom")
		}
		return nil
	}
	var notified []error
	var nmu sync.Mutex
	m := NewManager(Config{}, h, logx.Nop(), WithErrorNotifier(func(ctx context.Context, msg transport.Message, err error) {
		nmu.Lock()
		notified = append(notified, err)
		nmu.Unlock()
	}))

	m.Enqueue(9, msg(9, "set"))
	m.Enqueue(9, msg(9, "fail"))
	m.Enqueue(9, msg(9, "set"))
	m.Enqueue(9, msg(9, "panic"))
	m.Enqueue(9, msg(9, "after"))
	waitIdle(t, m)

	if len(handled) != 5 || handled[4] != "after" {
		t.Fatalf("handled = %v", handled)
	}
	if len(notified) != 2 {
		t.Fatalf("notified %d times, want 2", len(notified))
	}
	if !errors.Is(notified[1], errPanic) {
		t.Fatalf("panic not surfaced as errPanic: %v", notified[1])
	}
	if st := m.State(9); st != nil {
		t.Fatalf("state = %v, want cleared", st)
	}
}

func TestHandlerTimeoutApplies(t *testing.T) {
	t.Parallel()
	got := make(chan error, 1)
	h := func(ctx context.Context, req *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}
	m := NewManager(Config{HandlerTimeout: 20 * time.Millisecond}, h, logx.Nop(), WithErrorNotifier(func(ctx context.Context, msg transport.Message, err error) {
		got <- err
	}))
	m.Enqueue(1, msg(1, "slow"))
	select {
	case err := <-got:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not bounded by the timeout")
	}
	waitIdle(t, m)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	t.Parallel()
	var now atomic.Int64
	now.Store(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	m := NewManager(Config{Timeout: 30 * time.Minute}, func(ctx context.Context, req *Request) error {
		req.Session.SetState("menu")
		return nil
	}, logx.Nop(), WithClock(clock))

	m.Enqueue(1, msg(1, "hi"))
	waitIdle(t, m)
	if st := m.Stats(); st.Sessions != 1 || st.WithState != 1 {
		t.Fatalf("Stats = %+v", st)
	}

	now.Add(int64(29 * time.Minute))
	if n := m.Sweep(); n != 0 {
		t.Fatalf("evicted %d sessions before timeout", n)
	}
	now.Add(int64(2 * time.Minute))
	if n := m.Sweep(); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if m.State(1) != nil {
		t.Fatal("state survived eviction")
	}
}
