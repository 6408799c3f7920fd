package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestFanoutAndUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Publish(b, TypeDelivery, 3)
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeDelivery || e.Data != 3 || e.Time.IsZero() {
				t.Fatalf("event=%+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	Publish(b, TypeConfigReloaded, nil)
	if e := <-c; e.Type != TypeConfigReloaded {
		t.Fatalf("event=%+v", e)
	}
	Publish(nil, TypeDelivery, nil)
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "x", Data: i})
	}
	if e := <-ch; e.Data != 0 {
		t.Fatalf("kept %v, want the first event", e.Data)
	}
}

func TestRecentWraps(t *testing.T) {
	t.Parallel()
	r := NewRecent(3)
	for i := 0; i < 5; i++ {
		r.Add(Event{Data: i})
	}
	got := r.List()
	if len(got) != 3 || got[0].Data != 2 || got[2].Data != 4 {
		t.Fatalf("list=%+v", got)
	}
}

func TestRecentRun(t *testing.T) {
	t.Parallel()
	b := New()
	r := NewRecent(10)
	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan Event, 1)
	done := make(chan struct{})
	go func() {
		r.Run(ctx, b, func(e Event) {
			select {
			case seen <- e:
			default:
			}
		})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		Publish(b, TypeGroupSeen, int64(-1))
		select {
		case <-seen:
			cancel()
			<-done
			if len(r.List()) == 0 {
				t.Fatal("nothing recorded")
			}
			return
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("recorder never saw an event")
		}
	}
}
