// Package catalog loads action/event/incident records from JSON content
// files. The engine treats records as opaque data with an
// effects-per-outcome shape; this package is the default content source
// wired into the check service.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mkieran/demesne/pkg/kingdom"
)

// Record is one catalogue entry: an action a leader can take, a kingdom
// event, or an unrest incident, with the effects it applies per outcome.
type Record struct {
	ID      string                            `json:"id"`
	Name    string                            `json:"name"`
	Skills  []string                          `json:"skills,omitempty"`
	DC      int                               `json:"dc,omitempty"`
	Effects map[string]kingdom.OutcomeEffects `json:"effects"`
}

// EffectTable converts the record's string-keyed effects into the engine's
// degree-keyed table.
func (r Record) EffectTable() (kingdom.EffectTable, error) {
	table := make(kingdom.EffectTable, len(r.Effects))
	for name, eff := range r.Effects {
		d, ok := kingdom.ParseDegree(name)
		if !ok {
			return nil, fmt.Errorf("record %s: unknown outcome %q", r.ID, name)
		}
		table[d] = eff
	}
	return table, nil
}

// Static serves records from in-memory maps, one per record kind.
type Static struct {
	Actions   map[string]Record
	Events    map[string]Record
	Incidents map[string]Record
}

// NewStatic creates an empty content source.
func NewStatic() *Static {
	return &Static{
		Actions:   make(map[string]Record),
		Events:    make(map[string]Record),
		Incidents: make(map[string]Record),
	}
}

// file is the on-disk content shape: three record lists.
type file struct {
	Actions   []Record `json:"actions,omitempty"`
	Events    []Record `json:"events,omitempty"`
	Incidents []Record `json:"incidents,omitempty"`
}

// LoadFile merges a content file into the source. Later files override
// earlier records with the same id.
func (s *Static) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for _, r := range f.Actions {
		s.Actions[r.ID] = r
	}
	for _, r := range f.Events {
		s.Events[r.ID] = r
	}
	for _, r := range f.Incidents {
		s.Incidents[r.ID] = r
	}
	return nil
}

func effectsFrom(records map[string]Record, id string) (kingdom.EffectTable, error) {
	r, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("record %s not found", id)
	}
	return r.EffectTable()
}

// ActionEffects returns the effect table for an action record.
func (s *Static) ActionEffects(id string) (kingdom.EffectTable, error) {
	return effectsFrom(s.Actions, id)
}

// EventEffects returns the effect table for an event record.
func (s *Static) EventEffects(id string) (kingdom.EffectTable, error) {
	return effectsFrom(s.Events, id)
}

// IncidentEffects returns the effect table for an incident record.
func (s *Static) IncidentEffects(id string) (kingdom.EffectTable, error) {
	return effectsFrom(s.Incidents, id)
}
