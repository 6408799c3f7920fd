package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "wirdbot/pkg/logx"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestErrorCancelsWhenEnabled(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))
	s.Go0("blocker", func(ctx context.Context) { <-ctx.Done() })
	s.Go("failer", func(context.Context) error { return errors.New("boom") })

	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "failer: boom") {
		t.Fatalf("err=%v", err)
	}
	if s.Context().Err() == nil {
		t.Fatal("context not canceled")
	}
}

func TestPanicIsRecorded(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithLogger(logx.Nop()))
	s.Go0("panicky", func(context.Context) { panic("kaboom") })
	_ = s.Wait(waitCtx(t))

	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 || snap.Active != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if !strings.Contains(snap.FirstError, "kaboom") {
		t.Fatalf("first error=%q", snap.FirstError)
	}
}

func TestGoRestartRetriesUntilCanceled(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithLogger(logx.Nop()))
	var runs atomic.Int32
	s.GoRestart("flaky", time.Millisecond, 5*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return errors.New("transient")
	})

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if runs.Load() < 3 {
		t.Fatalf("runs=%d", runs.Load())
	}
	for _, g := range s.Snapshot().Goroutines {
		if g.Name == "flaky" && g.Restarts != 2 {
			t.Fatalf("restarts=%d", g.Restarts)
		}
	}
}
