package kingdom

// Axis identifies one doctrine counter.
type Axis string

const (
	AxisNone      Axis = "none"
	AxisPractical Axis = "practical"
	AxisIdealist  Axis = "idealist"
	AxisRuthless  Axis = "ruthless"
)

// Tier labels how far a doctrine axis has progressed.
type Tier int

const (
	TierNone Tier = iota
	TierMinor
	TierModerate
	TierMajor
	TierAbsolute
)

func (t Tier) String() string {
	switch t {
	case TierMinor:
		return "minor"
	case TierModerate:
		return "moderate"
	case TierMajor:
		return "major"
	case TierAbsolute:
		return "absolute"
	default:
		return "none"
	}
}

// TierThreshold pairs a tier with the minimum total that reaches it.
type TierThreshold struct {
	Tier      Tier `json:"tier"`
	Threshold int  `json:"threshold"`
}

// DoctrineConfig holds the tier thresholds (ascending) and the tie-break
// preference order applied when a dominance tie has no prior dominant.
// The order is content configuration, not engine logic.
type DoctrineConfig struct {
	Thresholds []TierThreshold `json:"thresholds"`
	TieBreak   []Axis          `json:"tie_break"`
}

// DefaultDoctrineConfig returns the standard thresholds and the standard
// practical > idealist > ruthless tie-break order.
func DefaultDoctrineConfig() DoctrineConfig {
	return DoctrineConfig{
		Thresholds: []TierThreshold{
			{Tier: TierMinor, Threshold: 10},
			{Tier: TierModerate, Threshold: 25},
			{Tier: TierMajor, Threshold: 50},
			{Tier: TierAbsolute, Threshold: 80},
		},
		TieBreak: []Axis{AxisPractical, AxisIdealist, AxisRuthless},
	}
}

// TierFor returns the highest tier whose threshold is <= value.
func (c DoctrineConfig) TierFor(value int) Tier {
	tier := TierNone
	for _, t := range c.Thresholds {
		if value >= t.Threshold {
			tier = t.Tier
		}
	}
	return tier
}

// Dominant recomputes the leading axis from the given totals. The previous
// dominant is only a tie-break seed: when several axes tie at the maximum
// and the previous dominant is among them it wins (hysteresis); otherwise
// the configured preference order decides. A zero maximum means no axis is
// dominant. The computation is idempotent and side-effect-free.
func (c DoctrineConfig) Dominant(totals map[Axis]int, previous Axis) Axis {
	max := 0
	for _, v := range totals {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return AxisNone
	}

	tied := make(map[Axis]bool)
	for a, v := range totals {
		if v == max {
			tied[a] = true
		}
	}
	if len(tied) == 1 {
		for a := range tied {
			return a
		}
	}
	if tied[previous] {
		return previous
	}
	for _, a := range c.TieBreak {
		if tied[a] {
			return a
		}
	}
	return AxisNone
}

// Milestone records the first time an axis reached a tier, stamped with
// the turn it happened on.
type Milestone struct {
	ID   string `json:"id"`
	Axis Axis   `json:"axis"`
	Tier Tier   `json:"tier"`
	Turn int    `json:"turn"`
}

// DoctrineState holds the three counters, the last persisted dominant
// axis, and the highest tier already recorded per axis. The dominant axis
// is never stored authoritatively; it is recomputed on demand and the
// stored value only seeds the next tie-break.
type DoctrineState struct {
	Totals   map[Axis]int  `json:"totals"`
	Dominant Axis          `json:"dominant"`
	Recorded map[Axis]Tier `json:"recorded,omitempty"`
}

// NewDoctrineState returns zeroed counters with no dominant axis.
func NewDoctrineState() DoctrineState {
	return DoctrineState{
		Totals: map[Axis]int{
			AxisPractical: 0,
			AxisIdealist:  0,
			AxisRuthless:  0,
		},
		Dominant: AxisNone,
	}
}

// AddDoctrine applies points to an axis, clamped to a floor of zero, and
// returns the stored total.
func (s *State) AddDoctrine(axis Axis, points int) int {
	if s.Doctrine.Totals == nil {
		s.Doctrine = NewDoctrineState()
	}
	v := s.Doctrine.Totals[axis] + points
	if v < 0 {
		v = 0
	}
	s.Doctrine.Totals[axis] = v
	return v
}

// RefreshDominant recomputes the dominant axis and persists it only when
// it differs from the last persisted value. It reports whether a change
// was persisted, which is the signal for milestone tracking.
func (s *State) RefreshDominant(cfg DoctrineConfig) (Axis, bool) {
	d := cfg.Dominant(s.Doctrine.Totals, s.Doctrine.Dominant)
	if d == s.Doctrine.Dominant {
		return d, false
	}
	s.Doctrine.Dominant = d
	return d, true
}

// RecordMilestones creates one milestone per (axis, tier) pair at or below
// each axis's current tier that has not been recorded yet, stamped with
// the current turn. Already-recorded tiers are never re-recorded. The
// caller supplies ids for the new records.
func (s *State) RecordMilestones(cfg DoctrineConfig, newID func() string) []Milestone {
	if s.Doctrine.Recorded == nil {
		s.Doctrine.Recorded = make(map[Axis]Tier)
	}
	var created []Milestone
	for axis, total := range s.Doctrine.Totals {
		current := cfg.TierFor(total)
		for t := s.Doctrine.Recorded[axis] + 1; t <= current; t++ {
			m := Milestone{ID: newID(), Axis: axis, Tier: t, Turn: s.Turn}
			created = append(created, m)
			s.Milestones = append(s.Milestones, m)
		}
		if current > s.Doctrine.Recorded[axis] {
			s.Doctrine.Recorded[axis] = current
		}
	}
	return created
}
