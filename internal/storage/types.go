package storage

import (
	"context"
	"errors"
	"time"

	"wirdbot/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid record")
)

// Config configures storage.
//
// Driver values: "sqlite" (default), "postgres", "memory".
type Config struct {
	Driver      string
	Path        string        // sqlite only
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the conversation engine, the
// scheduler and the app.
type Store interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
	SetUserLanguage(ctx context.Context, id int64, lang model.Language) error

	GetTarget(ctx context.Context, id int64) (model.Target, error)
	ListTargetsByOwner(ctx context.Context, owner int64, kind model.Kind) ([]model.Target, error)
	ListActiveTargets(ctx context.Context) ([]model.Target, error)
	CreateTarget(ctx context.Context, t model.Target) error
	UpdateTarget(ctx context.Context, id int64, p model.TargetPatch) (model.Target, error)
	DeleteTarget(ctx context.Context, id int64) error

	RememberGroup(ctx context.Context, g model.Group) error
	ForgetGroup(ctx context.Context, chatID int64) error
	ListGroups(ctx context.Context) ([]model.Group, error)

	Ping(ctx context.Context) error
	Close() error
}

func invalid(err error) error {
	return errors.Join(ErrInvalid, err)
}
