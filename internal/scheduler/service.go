package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"wirdbot/internal/content"
	"wirdbot/internal/eventbus"
	"wirdbot/internal/metrics"
	logx "wirdbot/pkg/logx"
)

// ErrNotRunning is returned by Reload before Start or after Stop.
var ErrNotRunning = errors.New("scheduler not running")

func New(cfg Config, store Store, out Sender, pages content.Source, tr Translator, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log.Comp("scheduler"),
		store:    store,
		out:      out,
		pages:    pages,
		tr:       tr,
		bus:      bus,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		triggers: map[string]*trigger{},
		quote:    content.RandomQuote,
		sleep:    sleepCtx,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config. A timezone change on a running scheduler rebuilds
// cron in the new location and re-registers every trigger. Deliveries still
// running on the old cron are awaited after the lock is released, bounded by
// ctx.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || oldTZ == newTZ {
		s.mu.Unlock()
		return nil
	}
	old := s.c
	stopped := old.Stop()
	s.startCronLocked()
	_, err := s.reloadLocked(ctx)
	s.mu.Unlock()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("timezone switch: old deliveries still running")
	}
	return err
}

// Start builds cron, registers the active targets and starts firing.
// ctx bounds the deliveries started by cron; cancel it to abort in-flight runs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}
	s.base = ctx
	s.startCronLocked()
	n, err := s.reloadLocked(ctx)
	if err != nil {
		return err
	}
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("triggers", n))
	return nil
}

// Stop stops firing and waits for running deliveries, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.triggers = map[string]*trigger{}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("stop timed out with deliveries in flight")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Reload drops every trigger and registers one per (active target, schedule).
// The whole sequence runs under the service mutex, so concurrent reloads
// serialize and never observe a half-built registry.
func (s *Service) Reload(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		if !s.cfg.Enabled {
			return 0, nil
		}
		return 0, ErrNotRunning
	}
	return s.reloadLocked(ctx)
}

func (s *Service) startCronLocked() {
	loc := s.loadLocationLocked()
	s.loc = loc
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.triggers = map[string]*trigger{}
	s.c.Start()
}

func (s *Service) reloadLocked(ctx context.Context) (int, error) {
	// Read first: a failed read keeps the current registry.
	targets, err := s.store.ListActiveTargets(ctx)
	if err != nil {
		metrics.Reload(false, len(s.triggers))
		return 0, fmt.Errorf("list active targets: %w", err)
	}

	for key, tr := range s.triggers {
		s.c.Remove(tr.entryID)
		delete(s.triggers, key)
	}

	n := 0
	for _, t := range targets {
		for i, sc := range t.Schedules {
			key := fmt.Sprintf("%d_%d", t.ID, i)
			spec := sc.Cron()
			id := t.ID
			entryID, err := s.c.AddFunc(spec, func() { s.fire(id) })
			if err != nil {
				s.log.Warn("skip invalid schedule", logx.String("key", key), logx.String("spec", spec), logx.Err(err))
				continue
			}
			s.triggers[key] = &trigger{key: key, targetID: t.ID, kind: t.Kind, spec: spec, entryID: entryID}
			n++
		}
	}
	s.lastReload = time.Now()
	metrics.Reload(true, n)
	eventbus.Publish(s.bus, eventbus.TypeTriggersReloaded, map[string]int{"targets": len(targets), "triggers": n})
	s.log.Debug("triggers rebuilt", logx.Int("targets", len(targets)), logx.Int("triggers", n))
	return n, nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}

// Keys returns the registered trigger keys in sorted order.
func (s *Service) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.triggers))
	for k := range s.triggers {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// cronLogger routes cron's own messages (panics, skips) into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
