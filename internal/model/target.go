package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxPage is the last deliverable page. CurrentPage == MaxPage+1 means complete.
	MaxPage         = 604
	MaxPagesPerSend = 50
)

var (
	ErrInvalidPage         = errors.New("page out of range")
	ErrInvalidPagesPerSend = errors.New("pages per send out of range")
	ErrNoSchedules         = errors.New("target has no schedules")
)

type Kind string

const (
	KindGroup        Kind = "group"
	KindSubscription Kind = "subscription"
)

func (k Kind) Valid() bool { return k == KindGroup || k == KindSubscription }

// Target is a destination receiving scheduled pages: a linked group or a
// user's private subscription (ID == OwnerID).
type Target struct {
	ID           int64
	Kind         Kind
	OwnerID      int64
	Name         string
	CurrentPage  int
	PagesPerSend int
	Schedules    []Schedule
	IsActive     bool
	CreatedAt    time.Time
}

// NewTarget returns a target with the default wizard settings.
func NewTarget(kind Kind, id, owner int64, name string) Target {
	return Target{
		ID:           id,
		Kind:         kind,
		OwnerID:      owner,
		Name:         name,
		CurrentPage:  1,
		PagesPerSend: 1,
		IsActive:     true,
	}
}

// Complete reports whether every page has been delivered.
func (t Target) Complete() bool { return t.CurrentPage > MaxPage }

// Validate is called on every write path.
func (t Target) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", t.Kind)
	}
	// MaxPage+1 is the persisted "complete" marker.
	if t.CurrentPage < 1 || t.CurrentPage > MaxPage+1 {
		return fmt.Errorf("%w: %d", ErrInvalidPage, t.CurrentPage)
	}
	if t.PagesPerSend < 1 || t.PagesPerSend > MaxPagesPerSend {
		return fmt.Errorf("%w: %d", ErrInvalidPagesPerSend, t.PagesPerSend)
	}
	if len(t.Schedules) == 0 {
		return ErrNoSchedules
	}
	for _, s := range t.Schedules {
		if !s.Valid() {
			return fmt.Errorf("%w: %d:%d", ErrInvalidTime, s.Hour, s.Minute)
		}
	}
	return nil
}

// Clone returns a copy that does not share the schedules slice.
func (t Target) Clone() Target {
	t.Schedules = append([]Schedule(nil), t.Schedules...)
	return t
}

// TargetPatch carries a partial update. Nil fields are left unchanged.
type TargetPatch struct {
	Name         *string
	CurrentPage  *int
	PagesPerSend *int
	Schedules    []Schedule
	IsActive     *bool
}

func (p TargetPatch) Empty() bool {
	return p.Name == nil && p.CurrentPage == nil && p.PagesPerSend == nil && p.Schedules == nil && p.IsActive == nil
}

// Apply returns t with the patch applied. The result is not validated.
func (p TargetPatch) Apply(t Target) Target {
	t = t.Clone()
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.CurrentPage != nil {
		t.CurrentPage = *p.CurrentPage
	}
	if p.PagesPerSend != nil {
		t.PagesPerSend = *p.PagesPerSend
	}
	if p.Schedules != nil {
		t.Schedules = append([]Schedule(nil), p.Schedules...)
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	return t
}

// ParsePage parses a user supplied page number in [1, MaxPage].
func ParsePage(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > MaxPage {
		return 0, ErrInvalidPage
	}
	return n, nil
}

// ParsePagesPerSend parses a user supplied burst size in [1, MaxPagesPerSend].
func ParsePagesPerSend(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > MaxPagesPerSend {
		return 0, ErrInvalidPagesPerSend
	}
	return n, nil
}

type Language string

const (
	LangEnglish Language = "en"
	LangFrench  Language = "fr"
	LangArabic  Language = "ar"

	DefaultLanguage = LangEnglish
)

// Languages is the menu order used by language selection.
var Languages = []Language{LangEnglish, LangFrench, LangArabic}

func (l Language) Valid() bool {
	for _, x := range Languages {
		if x == l {
			return true
		}
	}
	return false
}

type User struct {
	ID        int64
	Language  Language
	CreatedAt time.Time
}

// Group is a chat the bot has observed itself in.
type Group struct {
	ChatID    int64
	Title     string
	UpdatedAt time.Time
}
