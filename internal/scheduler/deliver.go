package scheduler

import (
	"context"
	"errors"
	"time"

	"wirdbot/internal/content"
	"wirdbot/internal/eventbus"
	"wirdbot/internal/metrics"
	"wirdbot/internal/model"
	"wirdbot/internal/storage"
	"wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

// fire is the cron callback. The target is re-read so edits made since the
// last reload (pause, page jump) are honored.
func (s *Service) fire(targetID int64) {
	s.mu.Lock()
	ctx := s.base
	timeout := s.cfg.DeliveryTimeout
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := s.log.With(logx.Target(targetID))
	t, err := s.store.GetTarget(ctx, targetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Debug("trigger for deleted target")
			return
		}
		log.Warn("load target failed", logx.Err(err))
		return
	}
	if !t.IsActive {
		log.Debug("trigger for paused target")
		return
	}
	s.Deliver(ctx, t)
}

// Deliver sends up to PagesPerSend pages starting at CurrentPage and then
// persists the advanced position. A run stops early past the last page, on
// missing content, on a send failure or when ctx ends.
func (s *Service) Deliver(ctx context.Context, t model.Target) Report {
	start := time.Now()
	s.mu.Lock()
	delay := s.cfg.PageDelay
	noQuotes := s.cfg.NoQuotes
	s.mu.Unlock()

	rep := Report{TargetID: t.ID, Kind: t.Kind, FromPage: t.CurrentPage, NextPage: t.CurrentPage}
	log := s.log.With(logx.Target(t.ID), logx.String("kind", string(t.Kind)))
	lang := s.captionLanguage(ctx, t)
	to := transport.ChatTarget{ChatID: t.ID}

	if t.Complete() {
		rep.Stopped = StopComplete
	}
	for i := 0; i < t.PagesPerSend && rep.Stopped == StopNone; i++ {
		page := t.CurrentPage + i
		if page > model.MaxPage {
			rep.Stopped = StopComplete
			break
		}
		if i > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				rep.Stopped, rep.Err = StopCanceled, err
				break
			}
		}
		media, err := s.pages.Page(page)
		if err != nil {
			rep.Stopped, rep.Err = StopMissing, err
			if !errors.Is(err, content.ErrMissing) {
				log.Warn("resolve page failed", logx.Page(page), logx.Err(err))
			} else {
				log.Warn("page content missing", logx.Page(page))
			}
			break
		}
		caption := s.tr.T(lang, "pageCaption", page)
		if !noQuotes {
			if q := s.quote(); q != "" {
				caption += "\n\n" + q
			}
		}
		_, err = s.out.SendMedia(ctx, to, media, caption, nil)
		metrics.Send("media", err)
		if err != nil {
			rep.Stopped, rep.Err = StopSend, err
			log.Warn("send page failed", logx.Page(page), logx.Err(err))
			break
		}
		rep.Sent++
	}

	if rep.Sent > 0 {
		next := t.CurrentPage + rep.Sent
		// Persist on a fresh context: pages already went out even if ctx ended.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		_, err := s.store.UpdateTarget(pctx, t.ID, model.TargetPatch{CurrentPage: &next})
		cancel()
		if err != nil {
			log.Error("persist position failed", logx.Int("next", next), logx.Err(err))
			if rep.Err == nil {
				rep.Err = err
			}
		} else {
			rep.NextPage = next
			rep.Persisted = true
		}
	}
	rep.Took = time.Since(start)

	outcome := "ok"
	switch {
	case rep.Sent == 0 && rep.Stopped == StopComplete:
		outcome = "complete"
	case rep.Err != nil:
		outcome = "partial"
		if rep.Sent == 0 {
			outcome = "error"
		}
	}
	metrics.Delivery(string(t.Kind), outcome, rep.Sent, rep.Took)
	eventbus.Publish(s.bus, eventbus.TypeDelivery, rep)
	log.Info("delivery finished",
		logx.Int("from", rep.FromPage),
		logx.Int("sent", rep.Sent),
		logx.Int("next", rep.NextPage),
		logx.String("stopped", string(rep.Stopped)),
		logx.Duration("took", rep.Took),
	)
	return rep
}

func (s *Service) captionLanguage(ctx context.Context, t model.Target) model.Language {
	u, err := s.store.GetUser(ctx, t.OwnerID)
	if err != nil || u.Language == "" {
		return model.DefaultLanguage
	}
	return u.Language
}
