package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wirdbot/internal/model"
)

// Memory is a process-local Store. State is lost on restart.
type Memory struct {
	mu      sync.RWMutex
	users   map[int64]model.User
	targets map[int64]model.Target
	groups  map[int64]model.Group
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		users:   map[int64]model.User{},
		targets: map[int64]model.Target{},
		groups:  map[int64]model.Group{},
	}
}

var errClosed = errors.New("store closed")

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed
	}
	return ctx.Err()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) SetUserLanguage(_ context.Context, id int64, lang model.Language) error {
	if !lang.Valid() {
		return invalid(fmt.Errorf("language %q", lang))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		u = model.User{ID: id, CreatedAt: time.Now()}
	}
	u.Language = lang
	m.users[id] = u
	return nil
}

func (m *Memory) GetTarget(_ context.Context, id int64) (model.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return model.Target{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) ListTargetsByOwner(_ context.Context, owner int64, kind model.Kind) ([]model.Target, error) {
	return m.filter(func(t model.Target) bool { return t.OwnerID == owner && t.Kind == kind }, func(a, b model.Target) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}), nil
}

func (m *Memory) ListActiveTargets(_ context.Context) ([]model.Target, error) {
	return m.filter(func(t model.Target) bool { return t.IsActive }, func(a, b model.Target) bool { return a.ID < b.ID }), nil
}

func (m *Memory) filter(keep func(model.Target) bool, less func(a, b model.Target) bool) []model.Target {
	m.mu.RLock()
	var out []model.Target
	for _, t := range m.targets {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (m *Memory) CreateTarget(_ context.Context, t model.Target) error {
	if err := t.Validate(); err != nil {
		return invalid(err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[t.ID]; ok {
		return ErrAlreadyExists
	}
	m.targets[t.ID] = t.Clone()
	return nil
}

func (m *Memory) UpdateTarget(_ context.Context, id int64, p model.TargetPatch) (model.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.targets[id]
	if !ok {
		return model.Target{}, ErrNotFound
	}
	if p.Empty() {
		return cur.Clone(), nil
	}
	next := p.Apply(cur)
	if err := next.Validate(); err != nil {
		return model.Target{}, invalid(err)
	}
	m.targets[id] = next
	return next.Clone(), nil
}

func (m *Memory) DeleteTarget(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return ErrNotFound
	}
	delete(m.targets, id)
	return nil
}

func (m *Memory) RememberGroup(_ context.Context, g model.Group) error {
	if g.ChatID == 0 {
		return invalid(errors.New("group chat id required"))
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	m.groups[g.ChatID] = g
	m.mu.Unlock()
	return nil
}

func (m *Memory) ForgetGroup(_ context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.groups, chatID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListGroups(_ context.Context) ([]model.Group, error) {
	m.mu.RLock()
	out := make([]model.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ChatID < out[j].ChatID
	})
	return out, nil
}
