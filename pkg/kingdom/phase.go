package kingdom

import (
	"errors"
	"fmt"
)

// PhaseID names a phase of the kingdom turn.
type PhaseID string

const (
	PhaseUpkeep   PhaseID = "upkeep"
	PhaseCommerce PhaseID = "commerce"
	PhaseActivity PhaseID = "activity"
	PhaseEvent    PhaseID = "event"
)

// StepDef declares one completion gate within a phase. Manual steps only
// complete through an explicit external action; the controller may complete
// the rest itself once it determines no user action is required.
type StepDef struct {
	Name   string `json:"name"`
	Manual bool   `json:"manual,omitempty"`
}

// PhaseDef declares a phase as an ordered list of steps.
type PhaseDef struct {
	ID    PhaseID   `json:"id"`
	Steps []StepDef `json:"steps"`
}

// DefaultPhases returns the standard four-phase kingdom turn.
func DefaultPhases() []PhaseDef {
	return []PhaseDef{
		{ID: PhaseUpkeep, Steps: []StepDef{
			{Name: "gain-fame"},
			{Name: "apply-continuous-effects"},
			{Name: "collect-resources"},
			{Name: "pay-consumption"},
		}},
		{ID: PhaseCommerce, Steps: []StepDef{
			{Name: "collect-taxes", Manual: true},
			{Name: "trade-commodities"},
		}},
		{ID: PhaseActivity, Steps: []StepDef{
			{Name: "perform-activities", Manual: true},
		}},
		{ID: PhaseEvent, Steps: []StepDef{
			{Name: "check-event"},
			{Name: "resolve-event", Manual: true},
		}},
	}
}

// Step is a StepDef plus its completion flag for the active phase.
type Step struct {
	Name      string `json:"name"`
	Manual    bool   `json:"manual,omitempty"`
	Completed bool   `json:"completed"`
}

// PendingCheck is phase-scoped ephemeral data: the most recent check roll
// and the DC it was made against, stamped with the turn that produced it.
type PendingCheck struct {
	RecordID string `json:"record_id,omitempty"`
	Skill    string `json:"skill,omitempty"`
	Roll     int    `json:"roll"`
	Modifier int    `json:"modifier"`
	DC       int    `json:"dc"`
	Turn     int    `json:"turn"`
}

// TurnState tracks the turn counter, the active phase, its step array, and
// phase-scoped ephemeral data. Steps are re-created each time a phase is
// entered; ephemera are discarded on phase exit.
type TurnState struct {
	Turn  int     `json:"turn"`
	Phase PhaseID `json:"phase"`
	Steps []Step  `json:"steps"`

	PendingEventID string         `json:"pending_event_id,omitempty"`
	PendingCheck   *PendingCheck  `json:"pending_check,omitempty"`
	RerollsUsed    map[string]int `json:"rerolls_used,omitempty"`
}

// ErrStepIndex indicates a step index outside the active phase's step array.
var ErrStepIndex = errors.New("step index out of range")

// EnterPhase installs a fresh step array for the phase being entered and
// discards the previous phase's ephemeral data.
func (ts *TurnState) EnterPhase(def PhaseDef) {
	ts.Phase = def.ID
	ts.Steps = make([]Step, len(def.Steps))
	for i, sd := range def.Steps {
		ts.Steps[i] = Step{Name: sd.Name, Manual: sd.Manual}
	}
	ts.PendingEventID = ""
	ts.PendingCheck = nil
}

// CompleteStep marks a step complete and reports whether the whole phase
// is now complete. The caller decides whether and when to advance.
func (ts *TurnState) CompleteStep(i int) (phaseComplete bool, err error) {
	if i < 0 || i >= len(ts.Steps) {
		return false, fmt.Errorf("%w: %d of %d", ErrStepIndex, i, len(ts.Steps))
	}
	ts.Steps[i].Completed = true
	return ts.PhaseComplete(), nil
}

// UncompleteStep clears a step's completion flag. Used by undo.
func (ts *TurnState) UncompleteStep(i int) error {
	if i < 0 || i >= len(ts.Steps) {
		return fmt.Errorf("%w: %d of %d", ErrStepIndex, i, len(ts.Steps))
	}
	ts.Steps[i].Completed = false
	return nil
}

// StepCompleted reports a single step's completion flag.
func (ts *TurnState) StepCompleted(i int) (bool, error) {
	if i < 0 || i >= len(ts.Steps) {
		return false, fmt.Errorf("%w: %d of %d", ErrStepIndex, i, len(ts.Steps))
	}
	return ts.Steps[i].Completed, nil
}

// PhaseComplete reports whether every step in the active phase is complete.
// A phase may only advance once this holds.
func (ts *TurnState) PhaseComplete() bool {
	for _, s := range ts.Steps {
		if !s.Completed {
			return false
		}
	}
	return true
}

// NextPhase returns the phase following current in the configured order,
// or ok=false when current is the last phase of the turn.
func NextPhase(phases []PhaseDef, current PhaseID) (PhaseDef, bool) {
	for i, p := range phases {
		if p.ID == current && i+1 < len(phases) {
			return phases[i+1], true
		}
	}
	return PhaseDef{}, false
}

// PhaseByID looks up a phase definition.
func PhaseByID(phases []PhaseDef, id PhaseID) (PhaseDef, bool) {
	for _, p := range phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseDef{}, false
}

// AdvanceTurn increments the turn counter, resets to the first configured
// phase, clears turn-scoped ephemera, and expires continuous effects whose
// turn-count duration has elapsed. It returns the ids of expired modifiers.
func (s *State) AdvanceTurn(phases []PhaseDef) []string {
	s.Turn++
	s.RerollsUsed = nil
	if len(phases) > 0 {
		s.EnterPhase(phases[0])
	}
	return s.ExpireModifiers(s.Turn)
}
