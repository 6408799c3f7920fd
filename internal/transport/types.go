package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateGroup   UpdateKind = "group"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
	Group   *GroupEvent
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
	At           time.Time
}

type GroupEventKind string

const (
	// GroupSeen is emitted whenever the bot observes a group it belongs to
	// (added to it, a message in it, a title change).
	GroupSeen GroupEventKind = "seen"
	// GroupLeft is emitted when the bot is removed from a group.
	GroupLeft GroupEventKind = "left"
)

type GroupEvent struct {
	Kind   GroupEventKind
	ChatID int64
	Title  string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Media references a local file to upload.
type Media struct {
	Path string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, media Media, caption string, opt *SendOptions) (MessageRef, error)

	// IsMember reports whether userID currently belongs to the group chatID.
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
}
