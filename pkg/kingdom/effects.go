package kingdom

// ResourceDelta is one numeric change declared by a record's outcome.
// Disabled deltas are carried in content but skipped at apply time.
type ResourceDelta struct {
	Resource Resource `json:"resource"`
	Value    int      `json:"value"`
	Enabled  bool     `json:"enabled"`
}

// DoctrineDelta tags an outcome with doctrine points for one axis.
type DoctrineDelta struct {
	Axis   Axis `json:"axis"`
	Points int  `json:"points"`
}

// ModifierTemplate is the continuous-effect blueprint a record carries for
// its unresolved outcomes. Duration defaults to until-resolved when the
// template does not override it.
type ModifierTemplate struct {
	Duration   *Duration       `json:"duration,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	Effects    []ResourceDelta `json:"effects,omitempty"`
	Resolution *Resolution     `json:"resolution,omitempty"`
	Severity   string          `json:"severity,omitempty"`
	Visible    bool            `json:"visible"`
}

// ContinuousTemplate wraps the modifier blueprint under the record schema's
// if-unresolved key.
type ContinuousTemplate struct {
	Modifier ModifierTemplate `json:"modifier"`
}

// OutcomeEffects is what a record declares for one degree of success.
type OutcomeEffects struct {
	Message      string              `json:"message,omitempty"`
	Deltas       []ResourceDelta     `json:"resource_deltas,omitempty"`
	Doctrine     *DoctrineDelta      `json:"doctrine,omitempty"`
	IfUnresolved *ContinuousTemplate `json:"if_unresolved,omitempty"`
}

// EffectTable maps each degree to the effects a record applies for it.
// Records from the content catalogue arrive in this shape; the engine
// treats them as opaque data.
type EffectTable map[Degree]OutcomeEffects

// Unresolved reports whether a degree leaves the record unresolved, which
// is what spawns a continuous effect when a template is declared.
func Unresolved(d Degree) bool {
	return d == DegreeFailure || d == DegreeCriticalFailure
}

// BuildModifier instantiates a template into a ledger entry for the given
// source record at the given turn.
func (t ModifierTemplate) BuildModifier(id, source string, startTurn int) *Modifier {
	dur := Duration{Kind: DurationUntilResolved}
	if t.Duration != nil {
		dur = *t.Duration
	}
	return &Modifier{
		ID:         id,
		Source:     source,
		StartTurn:  startTurn,
		Duration:   dur,
		Priority:   t.Priority,
		Effects:    t.Effects,
		Resolution: t.Resolution,
		Severity:   t.Severity,
		Visible:    t.Visible,
	}
}
