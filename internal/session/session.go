// Package session serializes message handling per user and holds the
// ephemeral conversation state between messages.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

type Config struct {
	Timeout        time.Duration // idle eviction threshold; default 30m
	SweepInterval  time.Duration // default 10m
	HandlerTimeout time.Duration // per message; 0 disables
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	return c
}

// Request is one queued message handed to the handler.
type Request struct {
	ReqID   string
	Message transport.Message
	Session *Session
	Logger  logx.Logger
}

// ErrorNotifier tells the user their message failed. It is called after
// the session state has been cleared.
type ErrorNotifier func(ctx context.Context, msg transport.Message, err error)

// Session is one user's state and pending queue.
type Session struct {
	userID int64

	mu           sync.Mutex
	state        any
	queue        []transport.Message
	processing   bool
	lastActivity time.Time
	now          func() time.Time
}

func (s *Session) UserID() int64 { return s.userID }

func (s *Session) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(v any) {
	s.mu.Lock()
	s.state = v
	s.lastActivity = s.now()
	s.mu.Unlock()
}

func (s *Session) ClearState() { s.SetState(nil) }

type Manager struct {
	log     logx.Logger
	handler HandlerFunc
	notify  ErrorNotifier
	now     func() time.Time

	cfgMu sync.RWMutex
	cfg   Config

	baseMu sync.RWMutex
	base   context.Context

	mu       sync.Mutex
	sessions map[int64]*Session
	wg       sync.WaitGroup
}

type Option func(*Manager)

func WithErrorNotifier(f ErrorNotifier) Option { return func(m *Manager) { m.notify = f } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(cfg Config, h HandlerFunc, log logx.Logger, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		log:      log.With(logx.String("comp", "session")),
		cfg:      cfg.withDefaults(),
		base:     context.Background(),
		now:      time.Now,
		sessions: map[int64]*Session{},
	}
	for _, o := range opts {
		o(m)
	}
	m.handler = Chain(h,
		MWRequestLog(m.log),
		MWPanicRecover(m.log),
		MWTimeout(func() time.Duration { return m.config().HandlerTimeout }),
	)
	return m
}

func (m *Manager) config() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// Apply swaps timeouts at runtime.
func (m *Manager) Apply(cfg Config) {
	m.cfgMu.Lock()
	m.cfg = cfg.withDefaults()
	m.cfgMu.Unlock()
}

func (m *Manager) ctx() context.Context {
	m.baseMu.RLock()
	defer m.baseMu.RUnlock()
	return m.base
}

// Enqueue appends msg to the user's queue and starts a drain if none is running.
func (m *Manager) Enqueue(userID int64, msg transport.Message) {
	m.mu.Lock()
	s := m.sessions[userID]
	if s == nil {
		s = &Session{userID: userID, now: m.now, lastActivity: m.now()}
		m.sessions[userID] = s
	}
	// Held across the session lock so a sweep cannot evict s in between.
	s.mu.Lock()
	m.mu.Unlock()

	s.queue = append(s.queue, msg)
	s.lastActivity = m.now()
	start := !s.processing
	if start {
		s.processing = true
		m.wg.Add(1)
	}
	s.mu.Unlock()

	if start {
		go m.drain(s)
	}
}

func (m *Manager) drain(s *Session) {
	defer m.wg.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.processing = false
			s.lastActivity = m.now()
			s.mu.Unlock()
			return
		}
		msg := s.queue[0]
		s.queue[0] = transport.Message{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		m.process(s, msg)
	}
}

func (m *Manager) process(s *Session, msg transport.Message) {
	ctx := m.ctx()
	req := &Request{
		ReqID:   uuid.NewString(),
		Message: msg,
		Session: s,
	}
	req.Logger = m.log.With(logx.User(s.userID), logx.Req(req.ReqID))

	err := m.handler(ctx, req)
	if err == nil {
		return
	}
	s.ClearState()
	if m.notify != nil {
		nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		m.notify(nctx, msg, err)
		cancel()
	}
}

// Get returns the live session for userID, if any.
func (m *Manager) Get(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// State is a convenience accessor; nil when the user has no session.
func (m *Manager) State(userID int64) any {
	if s, ok := m.Get(userID); ok {
		return s.State()
	}
	return nil
}

func (m *Manager) SetState(userID int64, v any) {
	m.mu.Lock()
	s := m.sessions[userID]
	if s == nil {
		s = &Session{userID: userID, now: m.now, lastActivity: m.now()}
		m.sessions[userID] = s
	}
	m.mu.Unlock()
	s.SetState(v)
}

func (m *Manager) ClearState(userID int64) {
	if s, ok := m.Get(userID); ok {
		s.ClearState()
	}
}

// Sweep evicts idle sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	timeout := m.config().Timeout
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := !s.processing && len(s.queue) == 0 && now.Sub(s.lastActivity) > timeout
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps on the configured interval until ctx is done. Drains started
// after Run use ctx as their parent context.
func (m *Manager) Run(ctx context.Context) {
	m.baseMu.Lock()
	m.base = ctx
	m.baseMu.Unlock()

	interval := m.config().SweepInterval
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.log.Debug("sessions evicted", logx.Int("count", n))
			}
			if next := m.config().SweepInterval; next != interval {
				interval = next
				t.Reset(interval)
			}
		}
	}
}

// Wait blocks until every running drain finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Stats struct {
	Sessions   int `json:"sessions"`
	WithState  int `json:"with_state"`
	Processing int `json:"processing"`
	Queued     int `json:"queued"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	st := Stats{Sessions: len(list)}
	for _, s := range list {
		s.mu.Lock()
		if s.state != nil {
			st.WithState++
		}
		if s.processing {
			st.Processing++
		}
		st.Queued += len(s.queue)
		s.mu.Unlock()
	}
	return st
}
