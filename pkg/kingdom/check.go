package kingdom

import "errors"

// Degree represents the categorical outcome of a resolved check.
type Degree int

const (
	DegreeUnspecified Degree = iota
	DegreeCriticalFailure
	DegreeFailure
	DegreeSuccess
	DegreeCriticalSuccess
)

func (d Degree) String() string {
	switch d {
	case DegreeCriticalFailure:
		return "criticalFailure"
	case DegreeFailure:
		return "failure"
	case DegreeSuccess:
		return "success"
	case DegreeCriticalSuccess:
		return "criticalSuccess"
	default:
		return "unspecified"
	}
}

// ParseDegree maps the wire name of a degree back to its value.
func ParseDegree(s string) (Degree, bool) {
	switch s {
	case "criticalFailure":
		return DegreeCriticalFailure, true
	case "failure":
		return DegreeFailure, true
	case "success":
		return DegreeSuccess, true
	case "criticalSuccess":
		return DegreeCriticalSuccess, true
	}
	return DegreeUnspecified, false
}

// Success reports whether the degree counts as a success.
func (d Degree) Success() bool {
	return d == DegreeSuccess || d == DegreeCriticalSuccess
}

// Die face bounds for the d20 system.
const (
	DieMin = 1
	DieMax = 20
)

// ErrInvalidRoll indicates a natural roll outside the die's face range.
var ErrInvalidRoll = errors.New("natural roll must be between 1 and 20")

// Resolve maps a completed check onto a degree of success.
//
// The base table compares (naturalRoll + totalModifier) against the DC:
// beating it by 10 or more is a critical success, meeting it is a success,
// missing it by less than 10 is a failure, and missing it by 10 or more is
// a critical failure. A natural maximum upgrades the base result one step;
// a natural minimum downgrades it one step. Upgrades never exceed critical
// success and downgrades never drop below critical failure.
func Resolve(naturalRoll, totalModifier, dc int) Degree {
	diff := naturalRoll + totalModifier - dc

	var d Degree
	switch {
	case diff >= 10:
		d = DegreeCriticalSuccess
	case diff >= 0:
		d = DegreeSuccess
	case diff > -10:
		d = DegreeFailure
	default:
		d = DegreeCriticalFailure
	}

	switch naturalRoll {
	case DieMax:
		if d < DegreeCriticalSuccess {
			d++
		}
	case DieMin:
		if d > DegreeCriticalFailure {
			d--
		}
	}
	return d
}

// CheckInput is the completed-check contract consumed from the skill-check
// collaborator: an opaque (roll, modifier, dc) triple plus routing data.
type CheckInput struct {
	NaturalRoll   int    `json:"natural_roll"`
	TotalModifier int    `json:"total_modifier"`
	DC            int    `json:"dc"`
	Skill         string `json:"skill"`
	Turn          int    `json:"turn"`
}

// Validate checks the die-face bound; everything else is opaque.
func (c CheckInput) Validate() error {
	if c.NaturalRoll < DieMin || c.NaturalRoll > DieMax {
		return ErrInvalidRoll
	}
	return nil
}
