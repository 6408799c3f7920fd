package conversation

import (
	"errors"
	"fmt"
	"strings"

	"wirdbot/internal/model"
	"wirdbot/internal/storage"
)

func (e *Engine) openLink(tn *turn) (Result, error) {
	cands, err := e.groups.ListGroupsForCaller(tn.ctx, tn.in.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("list groups: %w", err)
	}
	if len(cands) == 0 {
		return reply(nil, e.tr.T(tn.lang, "noCandidateGroups")), nil
	}
	return reply(LinkSelecting{Candidates: cands}, e.renderCandidates(tn.lang, e.tr.T(tn.lang, "linkSelectHeader"), cands)), nil
}

func (e *Engine) renderCandidates(lang model.Language, header string, cands []model.Group) string {
	var b strings.Builder
	b.WriteString(header)
	for i, g := range cands {
		fmt.Fprintf(&b, "\n%d. %s", i+1, g.Title)
	}
	b.WriteString("\n\n")
	b.WriteString(e.tr.T(lang, "linkSelectHint"))
	return e.withNav(lang, b.String())
}

// matchGroups selects candidates by exact 1-based index, then by exact
// case-insensitive name, then by case-insensitive substring.
func matchGroups(cands []model.Group, text string) []model.Group {
	if i, ok := index(text, len(cands)); ok {
		return []model.Group{cands[i]}
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}
	for _, g := range cands {
		if strings.EqualFold(strings.TrimSpace(g.Title), needle) {
			return []model.Group{g}
		}
	}
	var out []model.Group
	for _, g := range cands {
		if strings.Contains(strings.ToLower(g.Title), needle) {
			out = append(out, g)
		}
	}
	return out
}

func (e *Engine) linkSelect(tn *turn, s LinkSelecting) (Result, error) {
	matches := matchGroups(s.Candidates, tn.text)
	switch len(matches) {
	case 0:
		return reply(s, e.withNav(tn.lang, e.tr.T(tn.lang, "groupNotFound", tn.text))), nil
	case 1:
		return e.linkGroup(tn, matches[0])
	default:
		header := e.tr.T(tn.lang, "multipleMatches", len(matches))
		return reply(LinkSelecting{Candidates: matches}, e.renderCandidates(tn.lang, header, matches)), nil
	}
}

// linkGroup re-checks membership and existing links before the wizard;
// the candidate list may be stale.
func (e *Engine) linkGroup(tn *turn, g model.Group) (Result, error) {
	ok, err := e.groups.IsMember(tn.ctx, g.ChatID, tn.in.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return reply(nil, e.tr.T(tn.lang, "notMember")), nil
	}
	_, err = e.store.GetTarget(tn.ctx, g.ChatID)
	switch {
	case err == nil:
		return reply(nil, e.tr.T(tn.lang, "alreadyLinked")), nil
	case !errors.Is(err, storage.ErrNotFound):
		return Result{}, fmt.Errorf("load target: %w", err)
	}
	draft := model.NewTarget(model.KindGroup, g.ChatID, tn.in.UserID, g.Title)
	return e.startWizard(tn, draft), nil
}
