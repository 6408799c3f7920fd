// Package membership answers which known groups a user belongs to.
//
// The Bot API cannot enumerate a bot's chats, so candidates come from the
// registry of groups the bot has observed, filtered by a live membership
// lookup per group. Telegram user ids are exact, so no approximate
// identity matching is involved.
package membership

import (
	"context"
	"fmt"
	"time"

	"wirdbot/internal/model"
	logx "wirdbot/pkg/logx"
)

// Registry lists observed groups.
type Registry interface {
	ListGroups(ctx context.Context) ([]model.Group, error)
}

// Checker performs the live membership lookup.
type Checker interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
}

type Service struct {
	reg     Registry
	checker Checker
	log     logx.Logger
	// per-group lookup bound so one slow chat does not stall the list
	lookupTimeout time.Duration
}

func New(reg Registry, checker Checker, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		reg:           reg,
		checker:       checker,
		log:           log.With(logx.String("comp", "membership")),
		lookupTimeout: 5 * time.Second,
	}
}

// ListGroupsForCaller returns registered groups the user is a member of.
// Groups whose lookup fails are skipped and logged.
func (s *Service) ListGroupsForCaller(ctx context.Context, userID int64) ([]model.Group, error) {
	all, err := s.reg.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list known groups: %w", err)
	}
	out := make([]model.Group, 0, len(all))
	for _, g := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
		ok, err := s.checker.IsMember(lctx, g.ChatID, userID)
		cancel()
		if err != nil {
			s.log.Debug("membership lookup failed", logx.Chat(g.ChatID), logx.Err(err))
			continue
		}
		if ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Service) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	return s.checker.IsMember(ctx, groupID, userID)
}
