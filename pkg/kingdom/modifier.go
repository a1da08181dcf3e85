package kingdom

import (
	"sort"
	"strings"
)

// DurationKind discriminates how long a continuous effect lives.
type DurationKind string

const (
	DurationTurns         DurationKind = "turns"
	DurationUntilResolved DurationKind = "until-resolved"
	DurationPermanent     DurationKind = "permanent"
)

// Duration is a modifier lifetime: a fixed number of turns, until a
// successful skill resolution, or permanent.
type Duration struct {
	Kind  DurationKind `json:"kind"`
	Turns int          `json:"turns,omitempty"`
}

// Resolution declares how a continuous effect can be checked away: which
// skills are allowed and the DC they roll against.
type Resolution struct {
	AllowedSkills []string `json:"allowed_skills"`
	DC            int      `json:"dc"`
}

// AllowsSkill reports whether a skill may attempt this resolution.
func (r *Resolution) AllowsSkill(skill string) bool {
	if r == nil {
		return false
	}
	for _, s := range r.AllowedSkills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// Modifier is a continuous effect that outlives the turn that created it.
// Modifiers live in a flat ledger keyed by id; the record that spawned one
// references it by id only.
type Modifier struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	StartTurn  int             `json:"start_turn"`
	Duration   Duration        `json:"duration"`
	Priority   int             `json:"priority,omitempty"`
	Effects    []ResourceDelta `json:"effects,omitempty"`
	Resolution *Resolution     `json:"resolution,omitempty"`
	Severity   string          `json:"severity,omitempty"`
	Visible    bool            `json:"visible"`
}

// Expired reports whether a turn-count duration has run out as of turn.
func (m *Modifier) Expired(turn int) bool {
	return m.Duration.Kind == DurationTurns && turn >= m.StartTurn+m.Duration.Turns
}

// AddModifier registers a continuous effect in the ledger.
func (s *State) AddModifier(m *Modifier) {
	if s.Modifiers == nil {
		s.Modifiers = make(map[string]*Modifier)
	}
	s.Modifiers[m.ID] = m
}

// RemoveModifier deletes a ledger entry, returning the removed modifier so
// a rollback can restore it.
func (s *State) RemoveModifier(id string) *Modifier {
	m, ok := s.Modifiers[id]
	if !ok {
		return nil
	}
	delete(s.Modifiers, id)
	return m
}

// Modifier looks up a ledger entry by id.
func (s *State) Modifier(id string) *Modifier {
	return s.Modifiers[id]
}

// ResolvableModifiers returns the ledger entries the given skill could
// attempt to resolve this turn, in no particular order.
func (s *State) ResolvableModifiers(skill string) []*Modifier {
	var out []*Modifier
	for _, m := range s.Modifiers {
		if m.Resolution.AllowsSkill(skill) {
			out = append(out, m)
		}
	}
	return out
}

// ExpireModifiers removes every entry whose turn-count duration has elapsed
// as of the given turn and returns the removed ids.
func (s *State) ExpireModifiers(turn int) []string {
	var expired []string
	for id, m := range s.Modifiers {
		if m.Expired(turn) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.Modifiers, id)
	}
	return expired
}

// endsMarker is the content-driven termination channel: outcome text
// containing this marker ends the active record's continuous effect
// regardless of the skill-resolution path.
const endsMarker = "ends the continuous effect"

// OutcomeEndsEffect reports whether outcome text carries the explicit
// ends marker.
func OutcomeEndsEffect(message string) bool {
	return strings.Contains(strings.ToLower(message), endsMarker)
}

// VisibleModifiers returns the player-facing ledger entries, oldest first
// with ties broken by id for a stable listing.
func (s *State) VisibleModifiers() []*Modifier {
	var out []*Modifier
	for _, m := range s.Modifiers {
		if m.Visible {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTurn != out[j].StartTurn {
			return out[i].StartTurn < out[j].StartTurn
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ModifiersBySource returns ledger entries spawned by the given source
// record id.
func (s *State) ModifiersBySource(source string) []*Modifier {
	var out []*Modifier
	for _, m := range s.Modifiers {
		if m.Source == source {
			out = append(out, m)
		}
	}
	return out
}
