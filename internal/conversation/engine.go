// Package conversation implements the menu and wizard state machine that
// users drive by sending plain text messages.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wirdbot/internal/model"
	"wirdbot/internal/storage"
	logx "wirdbot/pkg/logx"
)

// Store is the persistence the engine needs.
type Store interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
	SetUserLanguage(ctx context.Context, id int64, lang model.Language) error
	GetTarget(ctx context.Context, id int64) (model.Target, error)
	ListTargetsByOwner(ctx context.Context, owner int64, kind model.Kind) ([]model.Target, error)
	CreateTarget(ctx context.Context, t model.Target) error
	UpdateTarget(ctx context.Context, id int64, p model.TargetPatch) (model.Target, error)
	DeleteTarget(ctx context.Context, id int64) error
}

// Groups answers which groups a user may link.
type Groups interface {
	ListGroupsForCaller(ctx context.Context, userID int64) ([]model.Group, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
}

// Reloader rebuilds delivery triggers after a schedule-affecting change.
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

type Translator interface {
	T(lang model.Language, key string, args ...any) string
}

// Input is one inbound message as seen by the engine.
type Input struct {
	UserID   int64
	Username string
	Text     string
}

// Result is the outcome of one message: the next state, the replies to
// send in order and whether triggers must be rebuilt.
type Result struct {
	Next    State
	Replies []string
	Reload  bool
}

type Engine struct {
	store  Store
	groups Groups
	reload Reloader
	tr     Translator
	log    logx.Logger
}

func NewEngine(store Store, groups Groups, reload Reloader, tr Translator, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:  store,
		groups: groups,
		reload: reload,
		tr:     tr,
		log:    log.With(logx.String("comp", "conversation")),
	}
}

// turn carries per-message context through the state handlers.
type turn struct {
	ctx   context.Context
	in    Input
	text  string // trimmed
	token string // trimmed, lower-cased
	lang  model.Language
	known bool
}

func reply(next State, msgs ...string) Result {
	return Result{Next: next, Replies: msgs}
}

// Handle advances st by one message. Validation problems are answered in
// place; storage and membership failures are returned.
func (e *Engine) Handle(ctx context.Context, in Input, st State) (Result, error) {
	tn := &turn{
		ctx:   ctx,
		in:    in,
		text:  strings.TrimSpace(in.Text),
		lang:  model.DefaultLanguage,
		known: true,
	}
	tn.token = strings.ToLower(tn.text)

	u, err := e.store.GetUser(ctx, in.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		tn.known = false
	case err != nil:
		return Result{}, fmt.Errorf("load user: %w", err)
	default:
		if u.Language.Valid() {
			tn.lang = u.Language
		}
	}

	if isNavigation(tn.token) {
		return e.navigate(tn, st)
	}

	switch s := st.(type) {
	case nil:
		return e.idle(tn)
	case SelectingLanguage:
		return e.selectLanguage(tn)
	case MainMenu:
		return e.mainMenu(tn)
	case LinkSelecting:
		return e.linkSelect(tn, s)
	case Wizard:
		return e.wizard(tn, s)
	case WizardConfirm:
		return e.wizardConfirm(tn, s)
	case MyTargetsSelecting:
		return e.myTargetsSelect(tn, s)
	case SettingsMenu:
		return e.settingsMenu(tn, s)
	case SettingsInput:
		return e.settingsInput(tn, s)
	case RemoveScheduleSelecting:
		return e.removeSchedule(tn, s)
	case DeleteConfirm:
		return e.deleteConfirm(tn, s)
	case EditConfirm:
		return e.editConfirm(tn, s)
	case SubscribePrompt:
		return e.subscribePrompt(tn)
	default:
		return Result{}, fmt.Errorf("unhandled state %T", st)
	}
}

var navTokens = map[string]bool{"menu": true, "cancel": true, "back": true, "home": true}

func isNavigation(token string) bool { return navTokens[token] }

// navigate handles the global tokens before any state parsing.
func (e *Engine) navigate(tn *turn, st State) (Result, error) {
	if tn.token == "back" {
		switch s := st.(type) {
		case settingsScoped:
			id, kind := s.target()
			return e.openSettings(tn, id, kind)
		case SettingsMenu:
			if s.Kind == model.KindGroup {
				return e.openMyTargets(tn)
			}
		}
	}
	return e.home(tn), nil
}

// home shows the main menu, or language selection for a new user.
func (e *Engine) home(tn *turn) Result {
	if !tn.known {
		return reply(SelectingLanguage{}, e.tr.T(tn.lang, "selectLanguage"))
	}
	return reply(MainMenu{}, e.tr.T(tn.lang, "menu"))
}

func (e *Engine) idle(tn *turn) (Result, error) {
	switch tn.token {
	case "language", "lang", "/language", "/lang":
		return reply(SelectingLanguage{}, e.tr.T(tn.lang, "selectLanguage")), nil
	}
	return e.home(tn), nil
}

func (e *Engine) selectLanguage(tn *turn) (Result, error) {
	var lang model.Language
	for i, l := range model.Languages {
		if tn.text == fmt.Sprint(i+1) {
			lang = l
		}
	}
	if lang == "" {
		return reply(SelectingLanguage{}, e.tr.T(tn.lang, "invalidLanguage")), nil
	}
	if err := e.store.SetUserLanguage(tn.ctx, tn.in.UserID, lang); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	return reply(MainMenu{}, e.tr.T(lang, "languageSet"), e.tr.T(lang, "menu")), nil
}

func (e *Engine) mainMenu(tn *turn) (Result, error) {
	switch tn.text {
	case "1":
		return e.openLink(tn)
	case "2":
		return e.openMyTargets(tn)
	case "3":
		return e.openSubscription(tn)
	case "4":
		return reply(nil, e.tr.T(tn.lang, "help")), nil
	case "5":
		return reply(SelectingLanguage{}, e.tr.T(tn.lang, "selectLanguage")), nil
	}
	return reply(MainMenu{}, e.tr.T(tn.lang, "invalidOption"), e.tr.T(tn.lang, "menu")), nil
}

// withNav appends the navigation hint to a prompt.
func (e *Engine) withNav(lang model.Language, msg string) string {
	hint := e.tr.T(lang, "navigationHint")
	if strings.Contains(msg, hint) {
		return msg
	}
	return msg + "\n\n" + hint
}

// index returns the 0-based position selected by an exact 1-based index.
func index(text string, n int) (int, bool) {
	for i := 0; i < n; i++ {
		if text == fmt.Sprint(i+1) {
			return i, true
		}
	}
	return 0, false
}

func isYes(token string) bool {
	switch token {
	case "1", "yes", "y", "oui", "نعم":
		return true
	}
	return false
}

func isNo(token string) bool {
	switch token {
	case "2", "no", "n", "non", "لا":
		return true
	}
	return false
}
