package conversation

import (
	"strconv"

	"wirdbot/internal/model"
)

// A subscription is the user's private target; its id is the user id,
// which is also the private chat id.
func (e *Engine) openSubscription(tn *turn) (Result, error) {
	_, ok, err := e.loadTarget(tn, tn.in.UserID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return reply(SubscribePrompt{}, e.tr.T(tn.lang, "subscribePrompt")), nil
	}
	return e.openSettings(tn, tn.in.UserID, model.KindSubscription)
}

func (e *Engine) subscribePrompt(tn *turn) (Result, error) {
	switch tn.text {
	case "1":
		_, ok, err := e.loadTarget(tn, tn.in.UserID)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return e.openSettings(tn, tn.in.UserID, model.KindSubscription)
		}
		name := "@" + tn.in.Username
		if tn.in.Username == "" {
			name = strconv.FormatInt(tn.in.UserID, 10)
		}
		draft := model.NewTarget(model.KindSubscription, tn.in.UserID, tn.in.UserID, name)
		return e.startWizard(tn, draft), nil
	case "2":
		return e.home(tn), nil
	}
	return reply(SubscribePrompt{}, e.tr.T(tn.lang, "invalidOption"), e.tr.T(tn.lang, "subscribePrompt")), nil
}
