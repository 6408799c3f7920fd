package conversation

import (
	"errors"
	"fmt"

	"wirdbot/internal/model"
	"wirdbot/internal/storage"
)

func (e *Engine) startWizard(tn *turn, draft model.Target) Result {
	w := Wizard{Step: StepPage, Draft: draft}
	return reply(w, e.wizardPrompt(tn.lang, w))
}

func (e *Engine) wizardPrompt(lang model.Language, w Wizard) string {
	var head, prompt string
	switch w.Step {
	case StepPage:
		head = e.tr.T(lang, "wizardStepPage", w.Draft.Name)
		prompt = e.tr.T(lang, "wizardPagePrompt")
	case StepPagesPerSend:
		head = e.tr.T(lang, "wizardStepPagesPerSend", w.Draft.CurrentPage)
		prompt = e.tr.T(lang, "wizardPagesPerSendPrompt")
	case StepSchedule:
		head = e.tr.T(lang, "wizardStepSchedule", w.Draft.PagesPerSend)
		prompt = e.tr.T(lang, "wizardSchedulePrompt")
	case StepActivate:
		head = e.tr.T(lang, "wizardStepActivate")
		prompt = e.tr.T(lang, "wizardActivatePrompt")
	}
	progress := e.tr.T(lang, "wizardProgress", int(w.Step), wizardSteps)
	return e.withNav(lang, head+"\n\n"+progress+"\n\n"+prompt)
}

func (e *Engine) wizard(tn *turn, w Wizard) (Result, error) {
	d := w.Draft.Clone()
	switch w.Step {
	case StepPage:
		n, err := model.ParsePage(tn.text)
		if err != nil {
			return reply(w, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidPage"))), nil
		}
		d.CurrentPage = n
	case StepPagesPerSend:
		n, err := model.ParsePagesPerSend(tn.text)
		if err != nil {
			return reply(w, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidPagesPerSend"))), nil
		}
		d.PagesPerSend = n
	case StepSchedule:
		s, err := model.ParseTime(tn.text)
		if err != nil {
			return reply(w, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidTime"))), nil
		}
		d.Schedules = []model.Schedule{s}
	case StepActivate:
		switch {
		case isYes(tn.token):
			d.IsActive = true
		case isNo(tn.token):
			d.IsActive = false
		default:
			return reply(w, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidActivateOption"))), nil
		}
		return reply(WizardConfirm{Draft: d}, e.wizardPreview(tn.lang, d)), nil
	default:
		return Result{}, fmt.Errorf("unknown wizard step %d", w.Step)
	}
	next := Wizard{Step: w.Step + 1, Draft: d}
	return reply(next, e.wizardPrompt(tn.lang, next)), nil
}

func (e *Engine) wizardConfirm(tn *turn, s WizardConfirm) (Result, error) {
	switch tn.text {
	case "1":
		err := e.store.CreateTarget(tn.ctx, s.Draft)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return reply(nil, e.tr.T(tn.lang, "alreadyLinked")), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("create target: %w", err)
		}
		msg := e.tr.T(tn.lang, "targetLinked", s.Draft.Name)
		if s.Draft.Kind == model.KindSubscription {
			msg = e.tr.T(tn.lang, "subscribed")
		}
		return Result{Next: nil, Replies: []string{msg}, Reload: true}, nil
	case "2":
		d := s.Draft
		return e.startWizard(tn, model.NewTarget(d.Kind, d.ID, d.OwnerID, d.Name)), nil
	case "3":
		return reply(nil, e.tr.T(tn.lang, "wizardCancelled")), nil
	}
	return reply(s, e.tr.T(tn.lang, "invalidOption"), e.wizardPreview(tn.lang, s.Draft)), nil
}
