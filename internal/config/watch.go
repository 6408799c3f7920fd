package config

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "wirdbot/pkg/logx"
)

var errWatcherClosed = errors.New("watcher channels closed")

// Watch reloads the config whenever its file changes, until ctx ends. The
// parent directory is watched so editors that save by rename are seen. A
// broken watcher is recreated after a jittered backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	db := &debouncer{wait: m.debounce, fn: func() { m.reloadAndLog(ctx) }}
	defer db.stop()
	bo := &backoff{base: 250 * time.Millisecond, max: 5 * time.Second}

	for {
		err := m.watchOnce(ctx, dir, file, db.trigger, bo.reset)
		if ctx.Err() != nil {
			return nil
		}
		wait := bo.next()
		m.log.Warn("config watcher stopped; restarting",
			logx.String("dir", dir),
			logx.Err(err),
			logx.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (m *ConfigManager) watchOnce(ctx context.Context, dir, file string, changed, healthy func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	healthy()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			switch {
			case errors.Is(err, fsnotify.ErrEventOverflow):
				// Events were lost; reread once.
				m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
				changed()
			case errors.Is(err, fsnotify.ErrClosed):
				return err
			case err != nil:
				m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))
			}
		}
	}
}

func (m *ConfigManager) reloadAndLog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	published, err := m.reload(ctx)
	switch {
	case err != nil:
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
	case published:
		m.log.Debug("config published", logx.String("path", m.path))
	default:
		m.log.Debug("config unchanged", logx.String("path", m.path))
	}
}

// debouncer runs fn once after a quiet period following the last trigger.
// Editors often write a file in several steps.
type debouncer struct {
	wait time.Duration
	fn   func()

	mu sync.Mutex
	t  *time.Timer
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
	d.t = time.AfterFunc(d.wait, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
}

type backoff struct {
	base, max time.Duration
	cur       time.Duration
}

func (b *backoff) reset() { b.cur = 0 }

// next returns the current delay plus up to 50% jitter and doubles it.
func (b *backoff) next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.base
	}
	wait := b.cur + rand.N(b.cur/2+1)
	b.cur = min(b.cur*2, b.max)
	return wait
}
