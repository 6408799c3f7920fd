package conversation

import (
	"errors"
	"fmt"
	"strings"

	"wirdbot/internal/model"
	"wirdbot/internal/storage"
)

func (e *Engine) openMyTargets(tn *turn) (Result, error) {
	list, err := e.store.ListTargetsByOwner(tn.ctx, tn.in.UserID, model.KindGroup)
	if err != nil {
		return Result{}, fmt.Errorf("list targets: %w", err)
	}
	if len(list) == 0 {
		return reply(nil, e.tr.T(tn.lang, "noGroups")), nil
	}
	ids := make([]int64, 0, len(list))
	var b strings.Builder
	b.WriteString(e.tr.T(tn.lang, "yourGroups", len(list)))
	for i, t := range list {
		ids = append(ids, t.ID)
		mark := "✅"
		if !t.IsActive {
			mark = "⏸️"
		}
		fmt.Fprintf(&b, "\n%d. %s %s\n   📄 %d · ⏰ %s", i+1, mark, t.Name, t.CurrentPage, model.FormatSchedules(t.Schedules))
	}
	b.WriteString("\n\n")
	b.WriteString(e.tr.T(tn.lang, "selectGroup", len(list)))
	return reply(MyTargetsSelecting{TargetIDs: ids}, e.withNav(tn.lang, b.String())), nil
}

func (e *Engine) myTargetsSelect(tn *turn, s MyTargetsSelecting) (Result, error) {
	i, ok := index(tn.text, len(s.TargetIDs))
	if !ok {
		return reply(s, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidOption"))), nil
	}
	return e.openSettings(tn, s.TargetIDs[i], model.KindGroup)
}

// loadTarget fetches a fresh copy; found is false when it was deleted.
func (e *Engine) loadTarget(tn *turn, id int64) (model.Target, bool, error) {
	t, err := e.store.GetTarget(tn.ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Target{}, false, nil
	}
	if err != nil {
		return model.Target{}, false, fmt.Errorf("load target: %w", err)
	}
	return t, true, nil
}

func (e *Engine) gone(tn *turn) Result {
	return reply(nil, e.tr.T(tn.lang, "targetGone"))
}

func (e *Engine) openSettings(tn *turn, id int64, kind model.Kind) (Result, error) {
	t, ok, err := e.loadTarget(tn, id)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return e.gone(tn), nil
	}
	return reply(SettingsMenu{TargetID: t.ID, Kind: t.Kind}, e.settingsOverview(tn.lang, t)), nil
}

func (e *Engine) settingsMenu(tn *turn, s SettingsMenu) (Result, error) {
	if tn.text == "7" {
		if s.Kind == model.KindGroup {
			return e.openMyTargets(tn)
		}
		return e.home(tn), nil
	}

	t, ok, err := e.loadTarget(tn, s.TargetID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return e.gone(tn), nil
	}

	switch tn.text {
	case "1":
		return reply(SettingsInput{TargetID: t.ID, Kind: t.Kind, Field: FieldPage}, e.withNav(tn.lang, e.tr.T(tn.lang, "setPagePrompt"))), nil
	case "2":
		return reply(SettingsInput{TargetID: t.ID, Kind: t.Kind, Field: FieldAddSchedule}, e.withNav(tn.lang, e.tr.T(tn.lang, "addSchedulePrompt"))), nil
	case "3":
		if len(t.Schedules) <= 1 {
			return reply(s, e.tr.T(tn.lang, "cannotRemoveLast")), nil
		}
		var b strings.Builder
		b.WriteString(e.tr.T(tn.lang, "removeSchedulePrompt"))
		for i, sc := range t.Schedules {
			fmt.Fprintf(&b, "\n%d. %s", i+1, sc.Format())
		}
		next := RemoveScheduleSelecting{TargetID: t.ID, Kind: t.Kind, Schedules: append([]model.Schedule(nil), t.Schedules...)}
		return reply(next, e.withNav(tn.lang, b.String())), nil
	case "4":
		return reply(SettingsInput{TargetID: t.ID, Kind: t.Kind, Field: FieldPagesPerSend}, e.withNav(tn.lang, e.tr.T(tn.lang, "setPagesPerSendPrompt"))), nil
	case "5":
		active := !t.IsActive
		if _, err := e.store.UpdateTarget(tn.ctx, t.ID, model.TargetPatch{IsActive: &active}); err != nil {
			return e.updateFailed(tn, err)
		}
		key := "paused"
		if active {
			key = "activated"
		}
		return Result{Replies: []string{e.tr.T(tn.lang, key)}, Reload: true}, nil
	case "6":
		msg := e.tr.T(tn.lang, "deleteConfirm", t.Name)
		if t.Kind == model.KindSubscription {
			msg = e.tr.T(tn.lang, "unsubscribeConfirm")
		}
		return reply(DeleteConfirm{TargetID: t.ID, Kind: t.Kind}, msg), nil
	}
	return reply(s, e.tr.T(tn.lang, "invalidOption"), e.settingsOverview(tn.lang, t)), nil
}

// updateFailed maps a write error: a vanished target is a stale reference,
// anything else is returned.
func (e *Engine) updateFailed(tn *turn, err error) (Result, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return e.gone(tn), nil
	}
	return Result{}, fmt.Errorf("update target: %w", err)
}

func (e *Engine) settingsInput(tn *turn, s SettingsInput) (Result, error) {
	t, ok, err := e.loadTarget(tn, s.TargetID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return e.gone(tn), nil
	}

	switch s.Field {
	case FieldPage:
		n, err := model.ParsePage(tn.text)
		if err != nil {
			return reply(s, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidPage"))), nil
		}
		next := EditConfirm{TargetID: t.ID, Kind: t.Kind, Field: FieldPage, Old: t.CurrentPage, New: n}
		return reply(next, e.editPreview(tn.lang, t, next)), nil
	case FieldPagesPerSend:
		n, err := model.ParsePagesPerSend(tn.text)
		if err != nil {
			return reply(s, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidPagesPerSend"))), nil
		}
		next := EditConfirm{TargetID: t.ID, Kind: t.Kind, Field: FieldPagesPerSend, Old: t.PagesPerSend, New: n}
		return reply(next, e.editPreview(tn.lang, t, next)), nil
	case FieldAddSchedule:
		sc, err := model.ParseTime(tn.text)
		if err != nil {
			return reply(s, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidTime"))), nil
		}
		if model.HasSchedule(t.Schedules, sc) {
			return reply(s, e.withNav(tn.lang, e.tr.T(tn.lang, "scheduleExists", sc.Format()))), nil
		}
		list := append(append([]model.Schedule(nil), t.Schedules...), sc)
		if _, err := e.store.UpdateTarget(tn.ctx, t.ID, model.TargetPatch{Schedules: list}); err != nil {
			return e.updateFailed(tn, err)
		}
		return Result{Replies: []string{e.tr.T(tn.lang, "scheduleAdded", sc.Format())}, Reload: true}, nil
	}
	return Result{}, fmt.Errorf("unknown settings field %d", s.Field)
}

func (e *Engine) removeSchedule(tn *turn, s RemoveScheduleSelecting) (Result, error) {
	i, ok := index(tn.text, len(s.Schedules))
	if !ok {
		return reply(s, e.withNav(tn.lang, e.tr.T(tn.lang, "invalidOption"))), nil
	}
	victim := s.Schedules[i]

	t, found, err := e.loadTarget(tn, s.TargetID)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return e.gone(tn), nil
	}
	if len(t.Schedules) <= 1 {
		return reply(SettingsMenu{TargetID: t.ID, Kind: t.Kind}, e.tr.T(tn.lang, "cannotRemoveLast")), nil
	}

	kept := make([]model.Schedule, 0, len(t.Schedules))
	removed := false
	for _, sc := range t.Schedules {
		if !removed && sc == victim {
			removed = true
			continue
		}
		kept = append(kept, sc)
	}
	if !removed {
		// The list changed since it was shown.
		return reply(SettingsMenu{TargetID: t.ID, Kind: t.Kind}, e.settingsOverview(tn.lang, t)), nil
	}
	if _, err := e.store.UpdateTarget(tn.ctx, t.ID, model.TargetPatch{Schedules: kept}); err != nil {
		return e.updateFailed(tn, err)
	}
	return Result{Replies: []string{e.tr.T(tn.lang, "scheduleRemoved", victim.Format())}, Reload: true}, nil
}

func (e *Engine) deleteConfirm(tn *turn, s DeleteConfirm) (Result, error) {
	switch tn.text {
	case "1":
		t, ok, err := e.loadTarget(tn, s.TargetID)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return e.gone(tn), nil
		}
		if err := e.store.DeleteTarget(tn.ctx, s.TargetID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return e.gone(tn), nil
			}
			return Result{}, fmt.Errorf("delete target: %w", err)
		}
		msg := e.tr.T(tn.lang, "targetDeleted", t.Name)
		if t.Kind == model.KindSubscription {
			msg = e.tr.T(tn.lang, "unsubscribed")
		}
		return Result{Replies: []string{msg}, Reload: true}, nil
	case "2":
		return reply(nil, e.tr.T(tn.lang, "deleteCancelled")), nil
	}
	return reply(s, e.tr.T(tn.lang, "invalidOption")), nil
}

func (e *Engine) editConfirm(tn *turn, s EditConfirm) (Result, error) {
	switch tn.text {
	case "1":
		var p model.TargetPatch
		v := s.New
		switch s.Field {
		case FieldPage:
			p.CurrentPage = &v
		case FieldPagesPerSend:
			p.PagesPerSend = &v
		default:
			return Result{}, fmt.Errorf("field %d is not confirmable", s.Field)
		}
		if _, err := e.store.UpdateTarget(tn.ctx, s.TargetID, p); err != nil {
			return e.updateFailed(tn, err)
		}
		return Result{Replies: []string{e.tr.T(tn.lang, "editApplied")}, Reload: true}, nil
	case "2":
		return reply(nil, e.tr.T(tn.lang, "editCancelled")), nil
	}
	return reply(s, e.tr.T(tn.lang, "invalidOption"), e.tr.T(tn.lang, "confirmInstructions")), nil
}
