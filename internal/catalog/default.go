package catalog

import "github.com/mkieran/demesne/pkg/kingdom"

// Default returns the built-in content set: a small catalogue of leader
// actions, kingdom events, and unrest incidents that a campaign can run
// on without any external content file.
func Default() *Static {
	s := NewStatic()
	for _, r := range defaultActions {
		s.Actions[r.ID] = r
	}
	for _, r := range defaultEvents {
		s.Events[r.ID] = r
	}
	for _, r := range defaultIncidents {
		s.Incidents[r.ID] = r
	}
	return s
}

func gold(n int) kingdom.ResourceDelta {
	return kingdom.ResourceDelta{Resource: kingdom.ResourceGold, Value: n, Enabled: true}
}

func unrest(n int) kingdom.ResourceDelta {
	return kingdom.ResourceDelta{Resource: kingdom.ResourceUnrest, Value: n, Enabled: true}
}

func fame(n int) kingdom.ResourceDelta {
	return kingdom.ResourceDelta{Resource: kingdom.ResourceFame, Value: n, Enabled: true}
}

var defaultActions = []Record{
	{
		ID:     "claim-taxes",
		Name:   "Claim Taxes",
		Skills: []string{"politics", "trade"},
		DC:     15,
		Effects: map[string]kingdom.OutcomeEffects{
			"criticalSuccess": {
				Message:  "The coffers overflow and the people barely grumble.",
				Deltas:   []kingdom.ResourceDelta{gold(4)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisPractical, Points: 2},
			},
			"success": {
				Message:  "Taxes are collected without incident.",
				Deltas:   []kingdom.ResourceDelta{gold(2)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisPractical, Points: 1},
			},
			"failure": {
				Message: "The collectors return half empty-handed.",
				Deltas:  []kingdom.ResourceDelta{gold(1), unrest(1)},
			},
			"criticalFailure": {
				Message:  "Tax riots break out in the market squares.",
				Deltas:   []kingdom.ResourceDelta{unrest(2)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisRuthless, Points: 1},
				IfUnresolved: &kingdom.ContinuousTemplate{
					Modifier: kingdom.ModifierTemplate{
						Effects:    []kingdom.ResourceDelta{gold(-1)},
						Resolution: &kingdom.Resolution{AllowedSkills: []string{"politics"}, DC: 18},
						Severity:   "dangerous",
						Visible:    true,
					},
				},
			},
		},
	},
	{
		ID:     "host-festival",
		Name:   "Host a Festival",
		Skills: []string{"arts", "politics"},
		DC:     14,
		Effects: map[string]kingdom.OutcomeEffects{
			"criticalSuccess": {
				Message:  "The festival is the talk of neighboring realms.",
				Deltas:   []kingdom.ResourceDelta{fame(1), unrest(-2), gold(-1)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisIdealist, Points: 2},
			},
			"success": {
				Message:  "A fine celebration lifts spirits.",
				Deltas:   []kingdom.ResourceDelta{unrest(-1), gold(-1)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisIdealist, Points: 1},
			},
			"failure": {
				Message: "The festival fizzles; the outlay is wasted.",
				Deltas:  []kingdom.ResourceDelta{gold(-1)},
			},
			"criticalFailure": {
				Message: "A brawl at the feast sours the whole affair.",
				Deltas:  []kingdom.ResourceDelta{gold(-1), unrest(1)},
			},
		},
	},
	{
		ID:     "suppress-dissent",
		Name:   "Suppress Dissent",
		Skills: []string{"warfare", "intrigue"},
		DC:     16,
		Effects: map[string]kingdom.OutcomeEffects{
			"criticalSuccess": {
				Message:  "The ringleaders are rounded up overnight.",
				Deltas:   []kingdom.ResourceDelta{unrest(-3)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisRuthless, Points: 2},
			},
			"success": {
				Message:  "Order is restored on the streets.",
				Deltas:   []kingdom.ResourceDelta{unrest(-1)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisRuthless, Points: 1},
			},
			"failure": {
				Message: "The crackdown hardens resentment.",
				Deltas:  []kingdom.ResourceDelta{unrest(1)},
			},
			"criticalFailure": {
				Message:  "Heavy-handed patrols spark open defiance.",
				Deltas:   []kingdom.ResourceDelta{unrest(2)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisRuthless, Points: 1},
			},
		},
	},
}

var defaultEvents = []Record{
	{
		ID:     "bandit-raids",
		Name:   "Bandit Raids",
		Skills: []string{"warfare"},
		DC:     16,
		Effects: map[string]kingdom.OutcomeEffects{
			"criticalSuccess": {
				Message: "The bandits are scattered for good. This ends the continuous effect.",
				Deltas:  []kingdom.ResourceDelta{fame(1)},
			},
			"success": {
				Message: "The raiders are driven back into the hills. This ends the continuous effect.",
			},
			"failure": {
				Message: "The raids continue along the trade roads.",
				Deltas:  []kingdom.ResourceDelta{gold(-1)},
				IfUnresolved: &kingdom.ContinuousTemplate{
					Modifier: kingdom.ModifierTemplate{
						Effects:    []kingdom.ResourceDelta{gold(-1)},
						Resolution: &kingdom.Resolution{AllowedSkills: []string{"warfare"}, DC: 16},
						Visible:    true,
					},
				},
			},
			"criticalFailure": {
				Message: "A caravan is lost with its escort.",
				Deltas:  []kingdom.ResourceDelta{gold(-2), unrest(1)},
				IfUnresolved: &kingdom.ContinuousTemplate{
					Modifier: kingdom.ModifierTemplate{
						Effects:    []kingdom.ResourceDelta{gold(-1)},
						Resolution: &kingdom.Resolution{AllowedSkills: []string{"warfare"}, DC: 16},
						Severity:   "dangerous",
						Visible:    true,
					},
				},
			},
		},
	},
	{
		ID:     "bountiful-harvest",
		Name:   "Bountiful Harvest",
		Skills: []string{"agriculture"},
		DC:     12,
		Effects: map[string]kingdom.OutcomeEffects{
			"criticalSuccess": {
				Message: "Granaries burst; surplus is sold abroad.",
				Deltas: []kingdom.ResourceDelta{
					{Resource: kingdom.ResourceFood, Value: 3, Enabled: true},
					gold(1),
				},
			},
			"success": {
				Message: "The harvest comes in strong.",
				Deltas: []kingdom.ResourceDelta{
					{Resource: kingdom.ResourceFood, Value: 2, Enabled: true},
				},
			},
			"failure": {
				Message: "Rains spoil part of the crop.",
				Deltas: []kingdom.ResourceDelta{
					{Resource: kingdom.ResourceFood, Value: 1, Enabled: true},
				},
			},
			"criticalFailure": {
				Message: "Blight takes hold in the fields.",
				Deltas:  []kingdom.ResourceDelta{unrest(1)},
			},
		},
	},
}

var defaultIncidents = []Record{
	{
		ID:     "riot",
		Name:   "Riot",
		Skills: []string{"politics", "warfare"},
		DC:     15,
		Effects: map[string]kingdom.OutcomeEffects{
			"criticalSuccess": {
				Message:  "Calm words end the riot before blood is spilled.",
				Deltas:   []kingdom.ResourceDelta{unrest(-1)},
				Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisIdealist, Points: 1},
			},
			"success": {
				Message: "The crowd disperses by nightfall.",
			},
			"failure": {
				Message: "The riot spreads to a second district.",
				Deltas:  []kingdom.ResourceDelta{unrest(1)},
			},
			"criticalFailure": {
				Message: "A granary burns before order returns.",
				Deltas: []kingdom.ResourceDelta{
					unrest(1),
					{Resource: kingdom.ResourceFood, Value: -1, Enabled: true},
				},
			},
		},
	},
}
