package conversation

import (
	"context"
	"fmt"

	"wirdbot/internal/metrics"
	"wirdbot/internal/model"
	"wirdbot/internal/session"
	"wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

// Sender delivers replies.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Handler adapts the engine to the session queue: it runs one message,
// stores the next state, rebuilds triggers when asked and sends replies.
func (e *Engine) Handler(out Sender) session.HandlerFunc {
	return func(ctx context.Context, req *session.Request) error {
		st, _ := req.Session.State().(State)
		in := Input{
			UserID:   req.Session.UserID(),
			Username: req.Message.FromUsername,
			Text:     req.Message.Text,
		}
		res, err := e.Handle(ctx, in, st)
		if err != nil {
			return err
		}

		if res.Next == nil {
			req.Session.ClearState()
		} else {
			req.Session.SetState(res.Next)
		}
		metrics.Transition(StateName(res.Next))
		req.Logger.Debug("transition",
			logx.String("from", StateName(st)),
			logx.String("to", StateName(res.Next)),
		)

		if res.Reload && e.reload != nil {
			// The mutation is already persisted; a failed rebuild is picked
			// up by the next successful one.
			if n, err := e.reload.Reload(ctx); err != nil {
				req.Logger.Warn("trigger reload failed", logx.Err(err))
			} else {
				req.Logger.Debug("triggers reloaded", logx.Int("count", n))
			}
		}

		to := transport.ChatTarget{ChatID: req.Message.ChatID}
		for _, text := range res.Replies {
			if _, err := out.SendText(ctx, to, text, nil); err != nil {
				return fmt.Errorf("send reply: %w", err)
			}
		}
		return nil
	}
}

// ErrorNotifier sends the generic failure notice in the user's language.
func (e *Engine) ErrorNotifier(out Sender) session.ErrorNotifier {
	return func(ctx context.Context, msg transport.Message, cause error) {
		lang := model.DefaultLanguage
		if u, err := e.store.GetUser(ctx, msg.FromID); err == nil && u.Language.Valid() {
			lang = u.Language
		}
		if _, err := out.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID}, e.tr.T(lang, "error"), nil); err != nil {
			e.log.Warn("error notice not delivered", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		}
	}
}
