package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "wirdbot/internal/runtime/supervisor"
	kit "wirdbot/internal/transport"
	logx "wirdbot/pkg/logx"
)

// Config is the runtime config of the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRate caps outbound API calls per second across all chats.
	SendRate  float64
	SendBurst int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool
	limiter *rate.Limiter

	// sup owns adapter internal goroutines (poll loop, drop logger, stop watcher).
	// It is created on Start() and cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower than the Telegram poll loop.
	droppedUpdates uint64
}

var _ kit.Adapter = (*Adapter)(nil)

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil || m.Sender == nil {
			return nil
		}
		if isGroup(m.Chat) {
			a.groupSeen(m.Chat, m.Chat.Title)
			return nil
		}
		if m.Chat.Type != tele.ChatPrivate {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				At:           m.Time(),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnAddedToGroup, func(c tele.Context) error {
		if ch := c.Chat(); ch != nil {
			a.groupSeen(ch, ch.Title)
		}
		return nil
	})

	a.bot.Handle(tele.OnNewGroupTitle, func(c tele.Context) error {
		m := c.Message()
		if m != nil && m.Chat != nil {
			a.groupSeen(m.Chat, m.NewGroupTitle)
		}
		return nil
	})

	a.bot.Handle(tele.OnUserLeft, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil || m.UserLeft == nil || a.bot.Me == nil {
			return nil
		}
		if m.UserLeft.ID == a.bot.Me.ID {
			a.groupLeft(m.Chat)
		}
		return nil
	})

	// my_chat_member covers promotions, kicks and supergroup adds that the
	// service-message handlers above can miss.
	a.bot.Handle(tele.OnMyChatMember, func(c tele.Context) error {
		upd := c.ChatMember()
		if upd == nil || upd.Chat == nil || upd.NewChatMember == nil || !isGroup(upd.Chat) {
			return nil
		}
		switch upd.NewChatMember.Role {
		case tele.Left, tele.Kicked:
			a.groupLeft(upd.Chat)
		default:
			a.groupSeen(upd.Chat, upd.Chat.Title)
		}
		return nil
	})
}

func isGroup(ch *tele.Chat) bool {
	return ch.Type == tele.ChatGroup || ch.Type == tele.ChatSuperGroup
}

func (a *Adapter) groupSeen(ch *tele.Chat, title string) {
	if strings.TrimSpace(title) == "" {
		title = ch.Title
	}
	a.sendUpdate(kit.Update{Kind: kit.UpdateGroup, Group: &kit.GroupEvent{Kind: kit.GroupSeen, ChatID: ch.ID, Title: title}})
}

func (a *Adapter) groupLeft(ch *tele.Chat) {
	a.sendUpdate(kit.Update{Kind: kit.UpdateGroup, Group: &kit.GroupEvent{Kind: kit.GroupLeft, ChatID: ch.ID, Title: ch.Title}})
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout, AllowedUpdates: []string{"message", "my_chat_member"}},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.Comp("telegram.adapter"), bot: b, limiter: newLimiter(cfg)}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func newLimiter(cfg Config) *rate.Limiter {
	rps := cfg.SendRate
	if rps <= 0 {
		rps = 25
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = int(rps)
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// SetSendRate adjusts the outbound limiter in place.
func (a *Adapter) SetSendRate(rps float64, burst int) {
	l := newLimiter(Config{SendRate: rps, SendBurst: burst})
	a.limiter.SetLimit(l.Limit())
	a.limiter.SetBurst(l.Burst())
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	report := func() {
		if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() blocks until Stop(); a return while the context is
	// still live is treated as a failure and restarted with backoff.
	sup.GoRestart("telebot.poll", 500*time.Millisecond, 10*time.Second, func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return c.Err()
	})
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.droppedUpdates)))
	if sup != nil {
		sup.Cancel()
	}
	go a.bot.Stop()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	if sup == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

const (
	telegramTextLimit    = 4000
	telegramCaptionLimit = 1024
)

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := a.limiter.Wait(ctx); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendMedia uploads a local image with a caption.
func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, media kit.Media, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if strings.TrimSpace(media.Path) == "" {
		return kit.MessageRef{}, errors.New("media path is empty")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	photo := &tele.Photo{File: tele.FromDisk(media.Path), Caption: truncateRunes(caption, telegramCaptionLimit)}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, photo, &tele.SendOptions{
		ParseMode: opt.ParseMode,
		ThreadID:  to.ThreadID,
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// IsMember asks Telegram whether userID is currently in chatID.
func (a *Adapter) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return false, err
	}
	m, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		if notMemberError(err) {
			return false, nil
		}
		return false, err
	}
	return memberStatus(m.Role, m.Member), nil
}

// notMemberError reports lookup failures that mean "not in this chat".
// telebot has a sentinel for a missing chat only; a user who never joined
// comes back as a plain 400.
func notMemberError(err error) bool {
	if errors.Is(err, tele.ErrChatNotFound) {
		return true
	}
	var terr *tele.Error
	if !errors.As(err, &terr) || terr.Code != 400 {
		return false
	}
	desc := strings.ToLower(terr.Description)
	return strings.Contains(desc, "user not found") || strings.Contains(desc, "participant_id_invalid")
}

func memberStatus(role tele.MemberStatus, restrictedMember bool) bool {
	switch role {
	case tele.Creator, tele.Administrator, tele.Member:
		return true
	case tele.Restricted:
		return restrictedMember
	default:
		return false
	}
}

func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
