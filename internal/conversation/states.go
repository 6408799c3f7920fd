package conversation

import "wirdbot/internal/model"

// State is the per-user conversation position. A nil State is Idle.
// The set of implementations is closed to this package.
type State interface {
	Name() string
	sealed()
}

// StateName returns a stable label for logs and metrics.
func StateName(s State) string {
	if s == nil {
		return "idle"
	}
	return s.Name()
}

type SelectingLanguage struct{}

type MainMenu struct{}

// LinkSelecting holds the candidate groups last shown to the user.
type LinkSelecting struct {
	Candidates []model.Group
}

type WizardStep int

const (
	StepPage WizardStep = iota + 1
	StepPagesPerSend
	StepSchedule
	StepActivate
)

// wizardSteps is the number of input steps shown in the progress line.
const wizardSteps = 4

func (s WizardStep) String() string {
	switch s {
	case StepPage:
		return "page"
	case StepPagesPerSend:
		return "pages_per_send"
	case StepSchedule:
		return "schedule"
	case StepActivate:
		return "activate"
	default:
		return "unknown"
	}
}

// Wizard collects a new target one field at a time.
type Wizard struct {
	Step  WizardStep
	Draft model.Target
}

// WizardConfirm shows the assembled draft before it is persisted.
type WizardConfirm struct {
	Draft model.Target
}

// MyTargetsSelecting holds the ids listed to the user, in display order.
type MyTargetsSelecting struct {
	TargetIDs []int64
}

type SettingsMenu struct {
	TargetID int64
	Kind     model.Kind
}

type Field int

const (
	FieldPage Field = iota + 1
	FieldPagesPerSend
	FieldAddSchedule
)

func (f Field) key() string {
	switch f {
	case FieldPage:
		return "field_current_page"
	case FieldPagesPerSend:
		return "field_pages_per_send"
	default:
		return ""
	}
}

// SettingsInput waits for the value of a single settings field.
type SettingsInput struct {
	TargetID int64
	Kind     model.Kind
	Field    Field
}

type RemoveScheduleSelecting struct {
	TargetID  int64
	Kind      model.Kind
	Schedules []model.Schedule
}

type DeleteConfirm struct {
	TargetID int64
	Kind     model.Kind
}

// EditConfirm previews a single integer field change.
type EditConfirm struct {
	TargetID int64
	Kind     model.Kind
	Field    Field
	Old, New int
}

type SubscribePrompt struct{}

func (SelectingLanguage) Name() string       { return "selecting_language" }
func (MainMenu) Name() string                { return "main_menu" }
func (LinkSelecting) Name() string           { return "link_selecting" }
func (w Wizard) Name() string                { return "wizard_" + w.Step.String() }
func (WizardConfirm) Name() string           { return "wizard_confirm" }
func (MyTargetsSelecting) Name() string      { return "my_targets_selecting" }
func (SettingsMenu) Name() string            { return "settings_menu" }
func (SettingsInput) Name() string           { return "settings_input" }
func (RemoveScheduleSelecting) Name() string { return "remove_schedule" }
func (DeleteConfirm) Name() string           { return "delete_confirm" }
func (EditConfirm) Name() string             { return "edit_confirm" }
func (SubscribePrompt) Name() string         { return "subscribe_prompt" }

func (SelectingLanguage) sealed()       {}
func (MainMenu) sealed()                {}
func (LinkSelecting) sealed()           {}
func (Wizard) sealed()                  {}
func (WizardConfirm) sealed()           {}
func (MyTargetsSelecting) sealed()      {}
func (SettingsMenu) sealed()            {}
func (SettingsInput) sealed()           {}
func (RemoveScheduleSelecting) sealed() {}
func (DeleteConfirm) sealed()           {}
func (EditConfirm) sealed()             {}
func (SubscribePrompt) sealed()         {}

// settingsScoped is implemented by the sub-steps of a target's settings
// menu; "back" returns to that menu.
type settingsScoped interface {
	target() (int64, model.Kind)
}

func (s SettingsInput) target() (int64, model.Kind)           { return s.TargetID, s.Kind }
func (s RemoveScheduleSelecting) target() (int64, model.Kind) { return s.TargetID, s.Kind }
func (s DeleteConfirm) target() (int64, model.Kind)           { return s.TargetID, s.Kind }
func (s EditConfirm) target() (int64, model.Kind)             { return s.TargetID, s.Kind }
