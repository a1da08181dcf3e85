// Package kingdom implements the rules engine for the kingdom turn system:
// the kingdom sheet, degree-of-success resolution, phase/step progression,
// the continuous-effect ledger, and the doctrine accumulator.
package kingdom

import "encoding/json"

// Resource identifies a numeric resource on the kingdom sheet.
type Resource string

const (
	ResourceGold   Resource = "gold"
	ResourceFood   Resource = "food"
	ResourceLumber Resource = "lumber"
	ResourceStone  Resource = "stone"
	ResourceOre    Resource = "ore"
	ResourceUnrest Resource = "unrest"
	ResourceFame   Resource = "fame"
)

// FameCap is the only resource ceiling in the model. Every resource has a
// floor of zero; fame is additionally capped.
const FameCap = 3

// AllResources returns the resources tracked on the sheet, in display order.
func AllResources() []Resource {
	return []Resource{
		ResourceGold, ResourceFood, ResourceLumber,
		ResourceStone, ResourceOre, ResourceUnrest, ResourceFame,
	}
}

// State is the shared kingdom sheet. It is the single mutable resource
// reached through an execution context; callers must route all writes
// through operations so they can be undone.
type State struct {
	TurnState

	Resources  map[Resource]int     `json:"resources"`
	Doctrine   DoctrineState        `json:"doctrine"`
	Modifiers  map[string]*Modifier `json:"modifiers,omitempty"`
	Milestones []Milestone          `json:"milestones,omitempty"`
}

// NewState creates a fresh kingdom sheet positioned at turn 1 in the first
// configured phase.
func NewState(phases []PhaseDef) *State {
	s := &State{
		Resources: make(map[Resource]int, len(AllResources())),
		Modifiers: make(map[string]*Modifier),
		Doctrine:  NewDoctrineState(),
	}
	for _, r := range AllResources() {
		s.Resources[r] = 0
	}
	s.Turn = 1
	if len(phases) > 0 {
		s.EnterPhase(phases[0])
	}
	return s
}

// AdjustResource applies a delta to a resource and returns the stored value.
// Clamping happens at write time: floor zero for everything, ceiling
// FameCap for fame. Stored values are therefore always in bounds.
func (s *State) AdjustResource(r Resource, delta int) int {
	v := s.Resources[r] + delta
	if v < 0 {
		v = 0
	}
	if r == ResourceFame && v > FameCap {
		v = FameCap
	}
	s.Resources[r] = v
	return v
}

// SetResource overwrites a resource, applying the same write-time clamps
// as AdjustResource. Used by rollbacks restoring captured values.
func (s *State) SetResource(r Resource, value int) int {
	s.Resources[r] = 0
	return s.AdjustResource(r, value)
}

// Resource reads a stored resource value. Missing entries read as zero.
func (s *State) Resource(r Resource) int {
	return s.Resources[r]
}

// Marshal serializes the sheet for the live-state cache.
func (s *State) Marshal() (json.RawMessage, error) {
	return json.Marshal(s)
}

// UnmarshalState deserializes a sheet previously stored by Marshal.
func UnmarshalState(data json.RawMessage) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Resources == nil {
		s.Resources = make(map[Resource]int)
	}
	if s.Modifiers == nil {
		s.Modifiers = make(map[string]*Modifier)
	}
	if s.Doctrine.Totals == nil {
		s.Doctrine = NewDoctrineState()
	}
	return &s, nil
}
