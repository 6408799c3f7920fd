package app

import (
	"context"
	"time"

	"wirdbot/internal/eventbus"
	"wirdbot/internal/model"
	"wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

type enqueuer interface {
	Enqueue(userID int64, msg transport.Message)
}

type groupRegistry interface {
	RememberGroup(ctx context.Context, g model.Group) error
	ForgetGroup(ctx context.Context, chatID int64) error
}

// dispatcher routes inbound updates: private messages to the per-user
// session queue, group events to the known-group registry.
type dispatcher struct {
	sessions enqueuer
	groups   groupRegistry
	bus      eventbus.Bus
	log      logx.Logger
}

func (d *dispatcher) run(ctx context.Context, in <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up := <-in:
			d.handle(ctx, up)
		}
	}
}

func (d *dispatcher) handle(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		msg := up.Message
		if msg == nil || msg.FromID == 0 || msg.IsGroup {
			return
		}
		d.sessions.Enqueue(msg.FromID, *msg)
	case transport.UpdateGroup:
		ev := up.Group
		if ev == nil || ev.ChatID == 0 {
			return
		}
		gctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		switch ev.Kind {
		case transport.GroupSeen:
			err := d.groups.RememberGroup(gctx, model.Group{ChatID: ev.ChatID, Title: ev.Title, UpdatedAt: time.Now()})
			if err != nil {
				d.log.Warn("remember group failed", logx.Chat(ev.ChatID), logx.Err(err))
				return
			}
			eventbus.Publish(d.bus, eventbus.TypeGroupSeen, ev)
		case transport.GroupLeft:
			if err := d.groups.ForgetGroup(gctx, ev.ChatID); err != nil {
				d.log.Warn("forget group failed", logx.Chat(ev.ChatID), logx.Err(err))
				return
			}
			d.log.Info("bot left group", logx.Chat(ev.ChatID), logx.String("title", ev.Title))
			eventbus.Publish(d.bus, eventbus.TypeGroupLeft, ev)
		}
	}
}
