package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wirdbot/internal/eventbus"
	"wirdbot/internal/metrics"
	"wirdbot/internal/scheduler"
	"wirdbot/internal/session"
	logx "wirdbot/pkg/logx"
)

type fakeStore struct{ err error }

func (f fakeStore) Ping(context.Context) error { return f.err }

type fakeScheduler struct {
	reloads int
	err     error
}

func (f *fakeScheduler) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Enabled: true, Running: true, Timezone: "UTC", Triggers: []scheduler.TriggerInfo{{Key: "-1_0", TargetID: -1, Spec: "0 6 * * *"}}}
}

func (f *fakeScheduler) Reload(context.Context) (int, error) {
	f.reloads++
	return 3, f.err
}

type fakeSessions struct{}

func (fakeSessions) Stats() session.Stats { return session.Stats{Sessions: 2, Queued: 1} }

func newTestServer(t *testing.T, cfg Config, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg, deps, logx.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "store up", want: http.StatusOK},
		{name: "store down", err: errors.New("database is closed"), want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, Config{Token: "secret"}, Deps{Store: fakeStore{err: tt.err}})
			// healthz stays public even with a token configured
			resp, _ := get(t, srv.URL+"/healthz", "")
			if resp.StatusCode != tt.want {
				t.Fatalf("status=%d want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestStatusRequiresToken(t *testing.T) {
	t.Parallel()
	rec := eventbus.NewRecent(4)
	rec.Add(eventbus.Event{Type: eventbus.TypeTriggersReloaded, Time: time.Now()})
	srv := newTestServer(t, Config{Token: "secret"}, Deps{
		Scheduler: &fakeScheduler{},
		Sessions:  fakeSessions{},
		Events:    rec,
		Version:   "test",
	})

	if resp, _ := get(t, srv.URL+"/status", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", resp.StatusCode)
	}
	if resp, _ := get(t, srv.URL+"/status", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: status=%d", resp.StatusCode)
	}
	resp, body := get(t, srv.URL+"/status?token=secret", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}

	var st status
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Version != "test" || st.Scheduler == nil || len(st.Scheduler.Triggers) != 1 {
		t.Fatalf("status=%+v", st)
	}
	if st.Sessions == nil || st.Sessions.Sessions != 2 || len(st.Events) != 1 {
		t.Fatalf("status=%+v", st)
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	sch := &fakeScheduler{}
	srv := newTestServer(t, Config{}, Deps{Scheduler: sch})

	resp, err := http.Post(srv.URL+"/reload", "application/json", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]int
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK || out["triggers"] != 3 || sch.reloads != 1 {
		t.Fatalf("status=%d out=%v reloads=%d", resp.StatusCode, out, sch.reloads)
	}

	if resp, _ := get(t, srv.URL+"/reload", ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /reload status=%d", resp.StatusCode)
	}
}

func TestReloadFailure(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, Config{}, Deps{Scheduler: &fakeScheduler{err: errors.New("db down")}})
	resp, err := http.Post(srv.URL+"/reload", "application/json", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	metrics.Transition("main_menu")
	srv := newTestServer(t, Config{}, Deps{})
	resp, body := get(t, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "wirdbot_transitions_total") {
		t.Fatalf("status=%d body=%.200s", resp.StatusCode, body)
	}
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	off := newTestServer(t, Config{}, Deps{})
	if resp, _ := get(t, off.URL+"/debug/pprof/", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("pprof off: status=%d", resp.StatusCode)
	}
	on := newTestServer(t, Config{Pprof: true}, Deps{})
	if resp, _ := get(t, on.URL+"/debug/pprof/", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof on: status=%d", resp.StatusCode)
	}
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Start(ctx)

	var addr string
	for addr == "" {
		select {
		case <-ctx.Done():
			t.Fatal("server never listened")
		case <-time.After(10 * time.Millisecond):
			addr = s.Addr()
		}
	}
	if resp, _ := get(t, "http://"+addr+"/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	s.Stop(ctx)
	if s.Supervisor() != nil || s.Addr() != "" {
		t.Fatal("service still running after Stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:8088": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":8088":          false,
		"0.0.0.0:8088":   false,
		"bad":            false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q)=%v want %v", addr, got, want)
		}
	}
}
