package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wirdbot/internal/eventbus"
	"wirdbot/internal/metrics"
	rtsup "wirdbot/internal/runtime/supervisor"
	"wirdbot/internal/scheduler"
	"wirdbot/internal/session"
	logx "wirdbot/pkg/logx"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Scheduler interface {
	Snapshot() scheduler.Snapshot
	Reload(ctx context.Context) (int, error)
}

type Sessions interface {
	Stats() session.Stats
}

// Deps are the read-only views the endpoints expose. Nil fields are omitted.
type Deps struct {
	Store      Pinger
	Scheduler  Scheduler
	Sessions   Sessions
	Events     *eventbus.Recent
	Supervisor func() rtsup.Snapshot
	Version    string
}

type status struct {
	Version    string              `json:"version,omitempty"`
	Uptime     string              `json:"uptime"`
	Scheduler  *scheduler.Snapshot `json:"scheduler,omitempty"`
	Sessions   *session.Stats      `json:"sessions,omitempty"`
	Supervisor *rtsup.Snapshot     `json:"supervisor,omitempty"`
	Events     []eventbus.Event    `json:"events,omitempty"`
}

// Handler builds the router. Exposed for tests and embedding.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			metrics.Write(w)
		})
		r.Post("/reload", s.handleReload)
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.log.Warn("health check failed", logx.Err(err))
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := status{Version: s.deps.Version, Uptime: time.Since(s.started).Round(time.Second).String()}
	if s.deps.Scheduler != nil {
		snap := s.deps.Scheduler.Snapshot()
		st.Scheduler = &snap
	}
	if s.deps.Sessions != nil {
		stats := s.deps.Sessions.Stats()
		st.Sessions = &stats
	}
	if s.deps.Supervisor != nil {
		snap := s.deps.Supervisor()
		st.Supervisor = &snap
	}
	if s.deps.Events != nil {
		st.Events = s.deps.Events.List()
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not configured"})
		return
	}
	n, err := s.deps.Scheduler.Reload(r.Context())
	if err != nil {
		s.log.Warn("manual reload failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("manual reload", logx.Int("triggers", n))
	writeJSON(w, http.StatusOK, map[string]int{"triggers": n})
}

func (s *Service) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Req(middleware.GetReqID(r.Context())),
			logx.Duration("took", time.Since(start)),
		)
	})
}

// bearerAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
// An empty token disables auth.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
					got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
				}
			}
			if got != tok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
