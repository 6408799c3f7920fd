package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wirdbot/internal/content"
	"wirdbot/internal/eventbus"
	"wirdbot/internal/model"
	"wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

// Config controls trigger registration and delivery pacing.
type Config struct {
	Enabled         bool
	Timezone        string        // IANA TZ, e.g. "Africa/Casablanca"; empty means Local
	PageDelay       time.Duration // pause between two pages of the same run
	DeliveryTimeout time.Duration // upper bound for one run, 0 disables
	NoQuotes        bool          // omit the random quote under page captions
}

// Store is the slice of storage the scheduler needs.
type Store interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetTarget(ctx context.Context, id int64) (model.Target, error)
	ListActiveTargets(ctx context.Context) ([]model.Target, error)
	UpdateTarget(ctx context.Context, id int64, p model.TargetPatch) (model.Target, error)
}

// Sender uploads one page.
type Sender interface {
	SendMedia(ctx context.Context, to transport.ChatTarget, media transport.Media, caption string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Translator renders the page caption.
type Translator interface {
	T(lang model.Language, key string, args ...any) string
}

// StopReason says why a run sent fewer pages than requested.
type StopReason string

const (
	StopNone     StopReason = ""
	StopComplete StopReason = "complete"
	StopMissing  StopReason = "missing_content"
	StopSend     StopReason = "send_failed"
	StopCanceled StopReason = "canceled"
)

// Report describes one delivery run.
type Report struct {
	TargetID  int64         `json:"target_id"`
	Kind      model.Kind    `json:"kind"`
	FromPage  int           `json:"from_page"`
	Sent      int           `json:"sent"`
	NextPage  int           `json:"next_page"`
	Stopped   StopReason    `json:"stopped,omitempty"`
	Err       error         `json:"-"`
	Took      time.Duration `json:"took"`
	Persisted bool          `json:"persisted"`
}

type trigger struct {
	key      string // "<targetID>_<index>"
	targetID int64
	kind     model.Kind
	spec     string
	entryID  cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	store  Store
	out    Sender
	pages  content.Source
	tr     Translator
	bus    eventbus.Bus
	parser cron.Parser

	c        *cron.Cron
	loc      *time.Location
	base     context.Context
	triggers map[string]*trigger

	lastReload time.Time
	quote      func() string
	sleep      func(ctx context.Context, d time.Duration) error
}

// TriggerInfo is one registered cron entry.
type TriggerInfo struct {
	Key      string    `json:"key"`
	TargetID int64     `json:"target_id"`
	Kind     string    `json:"kind"`
	Spec     string    `json:"spec"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev"`
}

type Snapshot struct {
	Enabled    bool          `json:"enabled"`
	Running    bool          `json:"running"`
	Timezone   string        `json:"timezone"`
	LastReload time.Time     `json:"last_reload"`
	Triggers   []TriggerInfo `json:"triggers"`
}
