package conversation

import (
	"strconv"
	"strings"

	"wirdbot/internal/model"
)

const rule = "━━━━━━━━━━━━━━━━━━"

func (e *Engine) status(lang model.Language, active bool) string {
	if active {
		return e.tr.T(lang, "statusActive")
	}
	return e.tr.T(lang, "statusPaused")
}

func (e *Engine) nextSend(lang model.Language, page, pps int) string {
	from, to, ok := model.NextSend(page, pps)
	switch {
	case !ok:
		return e.tr.T(lang, "nextSendComplete")
	case from == to:
		return e.tr.T(lang, "nextSendSingle", from)
	default:
		return e.tr.T(lang, "nextSendMultiple", from, to)
	}
}

// settingsOverview renders a target's configuration followed by its menu.
func (e *Engine) settingsOverview(lang model.Language, t model.Target) string {
	lines := make([]string, 0, 10)
	if t.Kind == model.KindSubscription {
		lines = append(lines, e.tr.T(lang, "mySubscription"))
	} else {
		lines = append(lines, e.tr.T(lang, "configure", t.Name))
	}
	lines = append(lines,
		"",
		e.tr.T(lang, "currentPage", t.CurrentPage),
		e.tr.T(lang, "pagesPerSendLine", t.PagesPerSend),
		e.tr.T(lang, "schedules", len(t.Schedules), model.FormatSchedules(t.Schedules)),
		e.tr.T(lang, "status", e.status(lang, t.IsActive)),
		e.nextSend(lang, t.CurrentPage, t.PagesPerSend),
		"",
	)
	if t.Kind == model.KindSubscription {
		lines = append(lines, e.tr.T(lang, "subscriptionSettingsMenu"))
	} else {
		lines = append(lines, e.tr.T(lang, "settingsMenu"))
	}
	return e.withNav(lang, strings.Join(lines, "\n"))
}

func (e *Engine) wizardPreview(lang model.Language, d model.Target) string {
	im := model.CalculateImpact(d.CurrentPage, d.PagesPerSend, len(d.Schedules))
	lines := []string{
		e.tr.T(lang, "wizardPreviewHeader", d.Name),
		"",
		e.tr.T(lang, "configSummary"),
		rule,
		e.tr.T(lang, "summaryPage", d.CurrentPage),
		e.tr.T(lang, "summaryPagesPerSend", d.PagesPerSend),
		e.tr.T(lang, "summarySchedules", model.FormatSchedules(d.Schedules)),
		e.tr.T(lang, "summaryStatus", e.status(lang, d.IsActive)),
		"",
		e.tr.T(lang, "impactHeader"),
		e.tr.T(lang, "impactDaily", im.PagesPerDay),
		e.tr.T(lang, "impactCompletion", im.DaysToComplete),
		e.tr.T(lang, "impactProgress", im.CompletionPercentage),
		e.nextSend(lang, d.CurrentPage, d.PagesPerSend),
		"",
		e.tr.T(lang, "wizardConfirmInstructions"),
	}
	return strings.Join(lines, "\n")
}

// editPreview shows old and new values of a single field plus the
// projected impact of the new value.
func (e *Engine) editPreview(lang model.Language, t model.Target, c EditConfirm) string {
	page, pps := t.CurrentPage, t.PagesPerSend
	if c.Field == FieldPage {
		page = c.New
	} else {
		pps = c.New
	}
	im := model.CalculateImpact(page, pps, len(t.Schedules))

	name := t.Name
	if t.Kind == model.KindSubscription {
		name = e.tr.T(lang, "mySubscription")
	}
	lines := []string{
		e.tr.T(lang, "previewHeader"),
		"",
		e.tr.T(lang, "previewTarget", name),
		e.tr.T(lang, "previewSetting", e.tr.T(lang, c.Field.key())),
		e.tr.T(lang, "previewCurrent", strconv.Itoa(c.Old)),
		e.tr.T(lang, "previewNew", strconv.Itoa(c.New)),
		"",
		e.tr.T(lang, "impactHeader"),
	}
	if c.Field == FieldPage {
		lines = append(lines, e.tr.T(lang, "impactPageChange", c.Old, c.New))
	} else {
		remaining := model.MaxPage - t.CurrentPage + 1
		oldDays := model.DaysToComplete(remaining, c.Old*len(t.Schedules))
		lines = append(lines, e.tr.T(lang, "impactPagesPerSend", c.Old, c.New, oldDays, im.DaysToComplete))
	}
	lines = append(lines,
		e.tr.T(lang, "impactCompletion", im.DaysToComplete),
		e.nextSend(lang, page, pps),
		"",
		e.tr.T(lang, "confirmInstructions"),
	)
	return strings.Join(lines, "\n")
}
