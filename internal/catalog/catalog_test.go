package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mkieran/demesne/pkg/kingdom"
)

const sampleContent = `{
  "events": [
    {
      "id": "event-bandit-activity",
      "name": "Bandit Activity",
      "skills": ["defense", "intrigue"],
      "dc": 18,
      "effects": {
        "success": {
          "message": "The bandits are driven off.",
          "resource_deltas": [{"resource": "unrest", "value": -1, "enabled": true}]
        },
        "failure": {
          "message": "The bandits dig in.",
          "resource_deltas": [{"resource": "gold", "value": -2, "enabled": true}],
          "if_unresolved": {
            "modifier": {
              "resolution": {"allowed_skills": ["defense"], "dc": 18},
              "severity": "dangerous",
              "visible": true
            }
          }
        }
      }
    }
  ]
}`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content.json")
	if err := os.WriteFile(path, []byte(sampleContent), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestStatic_LoadFileAndLookup(t *testing.T) {
	s := NewStatic()
	if err := s.LoadFile(writeSample(t)); err != nil {
		t.Fatalf("load: %v", err)
	}

	table, err := s.EventEffects("event-bandit-activity")
	if err != nil {
		t.Fatalf("event effects: %v", err)
	}

	eff, ok := table[kingdom.DegreeFailure]
	if !ok {
		t.Fatal("failure outcome missing")
	}
	if eff.IfUnresolved == nil || eff.IfUnresolved.Modifier.Resolution.DC != 18 {
		t.Errorf("if_unresolved template not parsed: %+v", eff.IfUnresolved)
	}
	if len(eff.Deltas) != 1 || eff.Deltas[0].Resource != kingdom.ResourceGold {
		t.Errorf("deltas = %+v", eff.Deltas)
	}

	if _, err := s.EventEffects("nope"); err == nil {
		t.Error("missing record must error")
	}
	if _, err := s.ActionEffects("event-bandit-activity"); err == nil {
		t.Error("kinds are separate namespaces")
	}
}

func TestRecord_EffectTable_RejectsUnknownOutcome(t *testing.T) {
	r := Record{ID: "x", Effects: map[string]kingdom.OutcomeEffects{"fumble": {}}}
	if _, err := r.EffectTable(); err == nil {
		t.Error("unknown outcome name must error")
	}
}
