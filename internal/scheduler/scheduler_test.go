package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"wirdbot/internal/content"
	"wirdbot/internal/i18n"
	"wirdbot/internal/model"
	"wirdbot/internal/storage"
	"wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

type fakePages struct {
	missing map[int]bool
}

func (f fakePages) Page(n int) (transport.Media, error) {
	if f.missing[n] {
		return transport.Media{}, fmt.Errorf("%w: %d", content.ErrMissing, n)
	}
	return transport.Media{Path: fmt.Sprintf("/pages/%d.jpg", n)}, nil
}

type sent struct {
	chatID  int64
	path    string
	caption string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	failAt int // fail the n-th call (1-based), 0 never
}

func (f *fakeSender) SendMedia(ctx context.Context, to transport.ChatTarget, m transport.Media, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return transport.MessageRef{}, errors.New("telegram: bad gateway")
	}
	f.sent = append(f.sent, sent{chatID: to.ChatID, path: m.Path, caption: caption})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// gatedStore holds the first GetTarget until release is closed and can fail
// ListActiveTargets on demand.
type gatedStore struct {
	*storage.Memory
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	mu       sync.Mutex
	listFail error
}

func (g *gatedStore) GetTarget(ctx context.Context, id int64) (model.Target, error) {
	if g.release != nil {
		first := false
		g.once.Do(func() { first = true })
		if first {
			close(g.entered)
			<-g.release
		}
	}
	return g.Memory.GetTarget(ctx, id)
}

func (g *gatedStore) ListActiveTargets(ctx context.Context) ([]model.Target, error) {
	g.mu.Lock()
	err := g.listFail
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.Memory.ListActiveTargets(ctx)
}

func (g *gatedStore) failList(err error) {
	g.mu.Lock()
	g.listFail = err
	g.mu.Unlock()
}

func daily(h, m int) model.Schedule { return model.Schedule{Hour: h, Minute: m} }

func newTarget(t *testing.T, st storage.Store, id int64, page, pps int, active bool, scheds ...model.Schedule) model.Target {
	t.Helper()
	kind := model.KindGroup
	if id > 0 {
		kind = model.KindSubscription
	}
	tg := model.NewTarget(kind, id, 7, "t")
	tg.CurrentPage = page
	tg.PagesPerSend = pps
	tg.IsActive = active
	tg.Schedules = scheds
	if err := st.CreateTarget(context.Background(), tg); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return tg
}

func newService(st storage.Store, out Sender, pages content.Source) *Service {
	s := New(Config{Enabled: true, Timezone: "UTC"}, st, out, pages, i18n.MustLoad(), logx.Nop(), nil)
	s.quote = func() string { return "quote" }
	return s
}

func TestDeliver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		page, pps int
		missing   map[int]bool
		failAt    int
		wantSent  int
		wantPage  int
		wantStop  StopReason
	}{
		{name: "full run", page: 10, pps: 3, wantSent: 3, wantPage: 13},
		{name: "clamped at last page", page: 602, pps: 5, wantSent: 3, wantPage: 605, wantStop: StopComplete},
		{name: "already complete", page: 605, pps: 5, wantSent: 0, wantPage: 605, wantStop: StopComplete},
		{name: "missing content", page: 10, pps: 3, missing: map[int]bool{11: true}, wantSent: 1, wantPage: 11, wantStop: StopMissing},
		{name: "first page missing", page: 10, pps: 3, missing: map[int]bool{10: true}, wantSent: 0, wantPage: 10, wantStop: StopMissing},
		{name: "send failure", page: 1, pps: 4, failAt: 3, wantSent: 2, wantPage: 3, wantStop: StopSend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := storage.NewMemory()
			out := &fakeSender{failAt: tt.failAt}
			s := newService(st, out, fakePages{missing: tt.missing})
			tg := newTarget(t, st, -100, tt.page, tt.pps, true, daily(6, 0))

			rep := s.Deliver(context.Background(), tg)
			if rep.Sent != tt.wantSent {
				t.Fatalf("sent=%d want %d", rep.Sent, tt.wantSent)
			}
			if rep.Stopped != tt.wantStop {
				t.Fatalf("stopped=%q want %q", rep.Stopped, tt.wantStop)
			}
			if out.count() != tt.wantSent {
				t.Fatalf("transport saw %d sends, want %d", out.count(), tt.wantSent)
			}
			got, err := st.GetTarget(context.Background(), tg.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.CurrentPage != tt.wantPage {
				t.Fatalf("stored page=%d want %d", got.CurrentPage, tt.wantPage)
			}
			if rep.Persisted != (tt.wantSent > 0) {
				t.Fatalf("persisted=%v", rep.Persisted)
			}
		})
	}
}

func TestDeliverCaptionAndOrder(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	out := &fakeSender{}
	s := newService(st, out, fakePages{})
	tg := newTarget(t, st, -5, 40, 2, true, daily(6, 0))

	s.Deliver(context.Background(), tg)

	want := []sent{
		{chatID: -5, path: "/pages/40.jpg", caption: "📖 Page 40\n\nquote"},
		{chatID: -5, path: "/pages/41.jpg", caption: "📖 Page 41\n\nquote"},
	}
	if !slices.Equal(out.sent, want) {
		t.Fatalf("sent=%+v", out.sent)
	}
}

func TestDeliverWithoutQuotes(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	out := &fakeSender{}
	s := newService(st, out, fakePages{})
	s.cfg.NoQuotes = true
	tg := newTarget(t, st, -6, 12, 1, true, daily(6, 0))

	s.Deliver(context.Background(), tg)
	if out.count() != 1 || out.sent[0].caption != "📖 Page 12" {
		t.Fatalf("sent=%+v", out.sent)
	}
}

func TestDeliverCaptionUsesOwnerLanguage(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	if err := st.SetUserLanguage(context.Background(), 7, model.LangFrench); err != nil {
		t.Fatal(err)
	}
	out := &fakeSender{}
	s := newService(st, out, fakePages{})
	tg := newTarget(t, st, 7, 3, 1, true, daily(6, 0))

	s.Deliver(context.Background(), tg)

	want := i18n.MustLoad().T(model.LangFrench, "pageCaption", 3) + "\n\nquote"
	if out.count() != 1 || out.sent[0].caption != want {
		t.Fatalf("caption=%q want %q", out.sent[0].caption, want)
	}
}

func TestDeliverCanceledBetweenPages(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	out := &fakeSender{}
	s := newService(st, out, fakePages{})
	s.cfg.PageDelay = time.Hour
	tg := newTarget(t, st, -9, 1, 3, true, daily(6, 0))

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	rep := s.Deliver(ctx, tg)
	if rep.Sent != 1 || rep.Stopped != StopCanceled {
		t.Fatalf("report=%+v", rep)
	}
	got, _ := st.GetTarget(context.Background(), tg.ID)
	if got.CurrentPage != 2 {
		t.Fatalf("stored page=%d want 2", got.CurrentPage)
	}
}

func TestReloadIsIdempotent(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	newTarget(t, st, -1, 1, 1, true, daily(6, 0), daily(18, 30))
	newTarget(t, st, 7, 1, 1, true, daily(5, 15))
	newTarget(t, st, -2, 1, 1, false, daily(7, 0))

	s := newService(st, &fakeSender{}, fakePages{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	first := s.Keys()
	for i := 0; i < 3; i++ {
		n, err := s.Reload(context.Background())
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if n != 3 {
			t.Fatalf("reload %d registered %d want 3", i, n)
		}
	}
	want := []string{"-1_0", "-1_1", "7_0"}
	if !slices.Equal(first, want) || !slices.Equal(s.Keys(), want) {
		t.Fatalf("keys first=%v now=%v want %v", first, s.Keys(), want)
	}
}

func TestReloadTracksScheduleRemoval(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	newTarget(t, st, -1, 1, 1, true, daily(6, 0), daily(12, 0), daily(18, 0))

	s := newService(st, &fakeSender{}, fakePages{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	if _, err := st.UpdateTarget(context.Background(), -1, model.TargetPatch{Schedules: []model.Schedule{daily(6, 0), daily(18, 0)}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	n, err := s.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n != 2 {
		t.Fatalf("registered %d want 2", n)
	}

	paused := false
	if _, err := st.UpdateTarget(context.Background(), -1, model.TargetPatch{IsActive: &paused}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if n, _ := s.Reload(context.Background()); n != 0 {
		t.Fatalf("paused target still has %d triggers", n)
	}
}

func TestConcurrentReloads(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	for i := int64(1); i <= 5; i++ {
		newTarget(t, st, -i, 1, 1, true, daily(int(i), 0))
	}
	s := newService(st, &fakeSender{}, fakePages{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Reload(context.Background()); err != nil {
				t.Errorf("reload: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := len(s.Snapshot().Triggers); got != 5 {
		t.Fatalf("triggers=%d want 5", got)
	}
}

func TestFireSkipsInactiveAndDeleted(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	newTarget(t, st, -3, 1, 2, false, daily(6, 0))
	out := &fakeSender{}
	s := newService(st, out, fakePages{})

	s.fire(-3)
	s.fire(-404)
	if out.count() != 0 {
		t.Fatalf("sent %d pages for skipped targets", out.count())
	}
}

func TestFireUsesStoredPosition(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	tg := newTarget(t, st, -3, 1, 2, true, daily(6, 0))
	page := 100
	if _, err := st.UpdateTarget(context.Background(), tg.ID, model.TargetPatch{CurrentPage: &page}); err != nil {
		t.Fatal(err)
	}
	out := &fakeSender{}
	s := newService(st, out, fakePages{})

	s.fire(tg.ID)
	if out.count() != 2 || out.sent[0].path != "/pages/100.jpg" {
		t.Fatalf("sent=%+v", out.sent)
	}
}

func TestReloadBeforeStart(t *testing.T) {
	t.Parallel()
	s := newService(storage.NewMemory(), &fakeSender{}, fakePages{})
	if _, err := s.Reload(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err=%v want ErrNotRunning", err)
	}
	s.cfg.Enabled = false
	if n, err := s.Reload(context.Background()); err != nil || n != 0 {
		t.Fatalf("disabled reload n=%d err=%v", n, err)
	}
}

func TestApplyTimezoneRestarts(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	newTarget(t, st, -1, 1, 1, true, daily(6, 0))
	s := newService(st, &fakeSender{}, fakePages{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	if err := s.Apply(context.Background(), Config{Enabled: true, Timezone: "Asia/Riyadh"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.Snapshot()
	if snap.Timezone != "Asia/Riyadh" || len(snap.Triggers) != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
	next := snap.Triggers[0].Next.In(time.FixedZone("AST", 3*3600))
	if next.Hour() != 6 || next.Minute() != 0 {
		t.Fatalf("next fire %v not at 06:00 Riyadh", next)
	}
}

func TestApplyTimezoneDuringDelivery(t *testing.T) {
	t.Parallel()
	st := &gatedStore{Memory: storage.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	tg := newTarget(t, st.Memory, -1, 1, 2, true, daily(6, 0))
	out := &fakeSender{}
	s := newService(st, out, fakePages{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	s.mu.Lock()
	s.c.Schedule(cron.Every(time.Second), cron.FuncJob(func() { s.fire(tg.ID) }))
	s.mu.Unlock()

	select {
	case <-st.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	applied := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		applied <- s.Apply(ctx, Config{Enabled: true, Timezone: "Asia/Riyadh"})
	}()
	time.Sleep(50 * time.Millisecond)
	close(st.release)

	select {
	case err := <-applied:
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("Apply blocked behind the running delivery")
	}
	if out.count() != 2 {
		t.Fatalf("running delivery sent %d pages, want 2", out.count())
	}
	if got := s.Snapshot().Timezone; got != "Asia/Riyadh" {
		t.Fatalf("timezone=%s", got)
	}
	if got := s.Keys(); !slices.Equal(got, []string{"-1_0"}) {
		t.Fatalf("keys=%v", got)
	}
}

func TestReloadFailureKeepsTriggers(t *testing.T) {
	t.Parallel()
	st := &gatedStore{Memory: storage.NewMemory()}
	newTarget(t, st.Memory, -100, 1, 1, true, daily(6, 0), daily(18, 30))
	s := newService(st, &fakeSender{}, fakePages{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	want := []string{"-100_0", "-100_1"}
	if got := s.Keys(); !slices.Equal(got, want) {
		t.Fatalf("keys=%v", got)
	}

	st.failList(errors.New("db down"))
	if _, err := s.Reload(context.Background()); err == nil {
		t.Fatal("reload succeeded with a failing store")
	}
	if got := s.Keys(); !slices.Equal(got, want) {
		t.Fatalf("after failed reload keys=%v want %v", got, want)
	}
	if n := len(s.c.Entries()); n != 2 {
		t.Fatalf("cron entries=%d want 2", n)
	}

	st.failList(nil)
	if n, err := s.Reload(context.Background()); err != nil || n != 2 {
		t.Fatalf("reload n=%d err=%v", n, err)
	}
}
