package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mkieran/demesne/pkg/kingdom"
)

func newTestCheckService() (*CheckService, *TurnService, *mockCampaignRepo, *mockTurnRepo, *mockCache, *mockRecordSource, *mockBroadcaster) {
	campaignRepo := newMockCampaignRepo()
	turnRepo := newMockTurnRepo()
	cache := newMockCache()
	bc := &mockBroadcaster{}
	source := newMockRecordSource()
	turnSvc := NewTurnService(campaignRepo, turnRepo, cache, bc)
	svc := NewCheckService(turnSvc, turnRepo, cache, bc, source)
	return svc, turnSvc, campaignRepo, turnRepo, cache, source, bc
}

// claimTaxesTable is a typical action record: resources on success, unrest
// on failure, and a lingering effect when the failure goes unresolved.
func claimTaxesTable() kingdom.EffectTable {
	return kingdom.EffectTable{
		kingdom.DegreeCriticalSuccess: {
			Message: "The coffers overflow.",
			Deltas: []kingdom.ResourceDelta{
				{Resource: kingdom.ResourceGold, Value: 4, Enabled: true},
			},
			Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisPractical, Points: 2},
		},
		kingdom.DegreeSuccess: {
			Message: "Taxes are collected without incident.",
			Deltas: []kingdom.ResourceDelta{
				{Resource: kingdom.ResourceGold, Value: 2, Enabled: true},
			},
			Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisPractical, Points: 1},
		},
		kingdom.DegreeFailure: {
			Message: "The collectors return empty-handed.",
			Deltas: []kingdom.ResourceDelta{
				{Resource: kingdom.ResourceUnrest, Value: 1, Enabled: true},
			},
			IfUnresolved: &kingdom.ContinuousTemplate{
				Modifier: kingdom.ModifierTemplate{
					Effects: []kingdom.ResourceDelta{
						{Resource: kingdom.ResourceGold, Value: -1, Enabled: true},
					},
					Resolution: &kingdom.Resolution{AllowedSkills: []string{"politics"}, DC: 15},
					Visible:    true,
				},
			},
		},
		kingdom.DegreeCriticalFailure: {
			Message: "Riots break out in the market square.",
			Deltas: []kingdom.ResourceDelta{
				{Resource: kingdom.ResourceUnrest, Value: 2, Enabled: true},
			},
			IfUnresolved: &kingdom.ContinuousTemplate{
				Modifier: kingdom.ModifierTemplate{
					Severity: "dangerous",
					Visible:  true,
				},
			},
		},
	}
}

func TestSubmitCheckSuccess(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, source, bc := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()

	outcome, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 12, TotalModifier: 5, DC: 15, Turn: 1},
	})
	if err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}
	if outcome.Degree != kingdom.DegreeSuccess {
		t.Fatalf("degree = %s, want success", outcome.Degree)
	}
	if got := outcome.State.Resource(kingdom.ResourceGold); got != 2 {
		t.Errorf("gold = %d, want 2", got)
	}
	if got := outcome.State.Doctrine.Totals[kingdom.AxisPractical]; got != 1 {
		t.Errorf("practical = %d, want 1", got)
	}

	checks, _ := turnRepo.ListChecks(ctx, id, 1)
	if len(checks) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(checks))
	}
	if checks[0].Degree != "success" || checks[0].Kind != "action" {
		t.Errorf("audit row = %+v", checks[0])
	}

	found := false
	for _, typ := range bc.eventTypes() {
		if typ == "check_resolved" {
			found = true
		}
	}
	if !found {
		t.Error("expected check_resolved broadcast")
	}
}

func TestSubmitCheckFailureSpawnsModifier(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()

	outcome, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 5, TotalModifier: 2, DC: 15, Turn: 1},
	})
	if err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}
	if outcome.Degree != kingdom.DegreeFailure {
		t.Fatalf("degree = %s, want failure", outcome.Degree)
	}
	if outcome.SpawnedModifierID == "" {
		t.Fatal("expected a continuous effect spawned on failure")
	}

	m := outcome.State.Modifier(outcome.SpawnedModifierID)
	if m == nil {
		t.Fatal("spawned modifier not in ledger")
	}
	if m.Source != "claim-taxes" {
		t.Errorf("modifier source = %s, want claim-taxes", m.Source)
	}
	if m.Duration.Kind != kingdom.DurationUntilResolved {
		t.Errorf("duration = %s, want until-resolved", m.Duration.Kind)
	}
}

func TestSubmitCheckResolvesTargetModifier(t *testing.T) {
	svc, turnSvc, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()
	source.actions["quell-unrest"] = kingdom.EffectTable{
		kingdom.DegreeCriticalSuccess: {Message: "Order restored; this ends the continuous effect."},
		kingdom.DegreeSuccess:         {Message: "Order restored; this ends the continuous effect."},
		kingdom.DegreeFailure:         {Message: "The crowd will not disperse."},
		kingdom.DegreeCriticalFailure: {Message: "The crowd turns on the guards."},
	}

	// Fail the tax check so a resolvable effect exists.
	failed, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 5, TotalModifier: 2, DC: 15, Turn: 1},
	})
	if err != nil {
		t.Fatalf("failing SubmitCheck: %v", err)
	}
	target := failed.SpawnedModifierID

	// Wrong skill is rejected before anything is applied.
	_, err = svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:             CheckKindAction,
		RecordID:         "quell-unrest",
		Skill:            "warfare",
		Input:            kingdom.CheckInput{NaturalRoll: 18, TotalModifier: 4, DC: 15, Turn: 1},
		TargetModifierID: target,
	})
	if !errors.Is(err, ErrSkillNotAllowed) {
		t.Fatalf("wrong-skill err = %v, want ErrSkillNotAllowed", err)
	}

	outcome, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:             CheckKindAction,
		RecordID:         "quell-unrest",
		Skill:            "politics",
		Input:            kingdom.CheckInput{NaturalRoll: 18, TotalModifier: 4, DC: 15, Turn: 1},
		TargetModifierID: target,
	})
	if err != nil {
		t.Fatalf("resolving SubmitCheck: %v", err)
	}
	if outcome.State.Modifier(target) != nil {
		t.Error("resolved modifier still in ledger")
	}
	if len(outcome.RemovedModifiers) != 1 || outcome.RemovedModifiers[0] != target {
		t.Errorf("removed = %v, want [%s]", outcome.RemovedModifiers, target)
	}

	// The resolution is one reversible batch: undo restores the effect.
	st, _, err := turnSvc.Undo(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if st.Modifier(target) == nil {
		t.Error("undo did not restore the resolved modifier")
	}
}

func TestSubmitCheckEndsMarkerOnFailure(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.events["bandit-raid"] = kingdom.EffectTable{
		kingdom.DegreeCriticalSuccess: {Message: "The raiders are routed; this ends the continuous effect."},
		kingdom.DegreeSuccess:         {Message: "The raiders are routed; this ends the continuous effect."},
		kingdom.DegreeFailure:         {Message: "The raiders scatter and move on. This ends the continuous effect."},
		kingdom.DegreeCriticalFailure: {Message: "The raiders burn the outpost and move on. This ends the continuous effect."},
	}

	// An earlier raid left its effect in the ledger.
	st, err := svc.turns.loadState(ctx, id)
	if err != nil {
		t.Fatalf("loadState: %v", err)
	}
	st.AddModifier(&kingdom.Modifier{
		ID:        "mod-raid",
		Source:    "bandit-raid",
		StartTurn: 1,
		Duration:  kingdom.Duration{Kind: kingdom.DurationUntilResolved},
		Visible:   true,
	})
	putState(t, cache, id, st)

	// The marker in the outcome text ends the effect even when the roll
	// fails outright.
	outcome, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindEvent,
		RecordID: "bandit-raid",
		Skill:    "warfare",
		Input:    kingdom.CheckInput{NaturalRoll: 1, TotalModifier: 0, DC: 16, Turn: 1},
	})
	if err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}
	if outcome.Degree != kingdom.DegreeCriticalFailure {
		t.Fatalf("degree = %s, want criticalFailure", outcome.Degree)
	}
	if outcome.State.Modifier("mod-raid") != nil {
		t.Error("ends marker in the failure outcome text did not remove the effect")
	}
	if len(outcome.RemovedModifiers) != 1 || outcome.RemovedModifiers[0] != "mod-raid" {
		t.Errorf("removed = %v, want [mod-raid]", outcome.RemovedModifiers)
	}
}

func TestSubmitCheckUnknownRecord(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, _, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)

	_, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "no-such",
		Input:    kingdom.CheckInput{NaturalRoll: 10, DC: 15},
	})
	if !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("err = %v, want ErrUnknownRecord", err)
	}
}

func TestSubmitCheckInvalidRoll(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()

	_, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Input:    kingdom.CheckInput{NaturalRoll: 21, DC: 15},
	})
	if !errors.Is(err, kingdom.ErrInvalidRoll) {
		t.Fatalf("err = %v, want ErrInvalidRoll", err)
	}
}

func TestReroll(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()

	first, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 5, TotalModifier: 2, DC: 15, Turn: 1},
	})
	if err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}
	if first.Degree != kingdom.DegreeFailure {
		t.Fatalf("first degree = %s, want failure", first.Degree)
	}

	second, err := svc.Reroll(ctx, id, "user-1", kingdom.CheckInput{
		NaturalRoll: 16, TotalModifier: 2, DC: 15, Turn: 1,
	})
	if err != nil {
		t.Fatalf("Reroll: %v", err)
	}
	if second.Degree != kingdom.DegreeSuccess {
		t.Fatalf("reroll degree = %s, want success", second.Degree)
	}

	// The failed outcome was unwound before the replacement applied:
	// no unrest, no lingering effect, and the success's gold landed.
	if got := second.State.Resource(kingdom.ResourceUnrest); got != 0 {
		t.Errorf("unrest = %d, want 0 after reroll", got)
	}
	if first.SpawnedModifierID != "" && second.State.Modifier(first.SpawnedModifierID) != nil {
		t.Error("failed outcome's modifier survived the reroll")
	}
	if got := second.State.Resource(kingdom.ResourceGold); got != 2 {
		t.Errorf("gold = %d, want 2", got)
	}

	// One reroll per actor per turn.
	if _, err := svc.Reroll(ctx, id, "user-1", kingdom.CheckInput{NaturalRoll: 20, DC: 15}); !errors.Is(err, ErrRerollLimit) {
		t.Errorf("second reroll err = %v, want ErrRerollLimit", err)
	}
}

func TestRerollKeepsLaterBatches(t *testing.T) {
	svc, turnSvc, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()

	first, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 5, TotalModifier: 2, DC: 15, Turn: 1},
	})
	if err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}

	// A step completion lands after the check; it is now the batch at
	// the history cursor, not the check.
	if _, err := turnSvc.CompleteStep(ctx, id, 0, "user-1", true); err != nil {
		t.Fatalf("CompleteStep: %v", err)
	}

	second, err := svc.Reroll(ctx, id, "user-1", kingdom.CheckInput{
		NaturalRoll: 16, TotalModifier: 2, DC: 15, Turn: 1,
	})
	if err != nil {
		t.Fatalf("Reroll: %v", err)
	}
	if second.Degree != kingdom.DegreeSuccess {
		t.Fatalf("reroll degree = %s, want success", second.Degree)
	}

	// The unwind is skipped: the step completion survives, the failed
	// outcome stays applied, and the replacement lands on top.
	if !second.State.Steps[0].Completed {
		t.Error("step completion was reverted by the reroll")
	}
	if got := second.State.Resource(kingdom.ResourceUnrest); got != 1 {
		t.Errorf("unrest = %d, want 1", got)
	}
	if first.SpawnedModifierID == "" || second.State.Modifier(first.SpawnedModifierID) == nil {
		t.Error("expected the failed outcome's modifier to survive the skipped unwind")
	}
	if got := second.State.Resource(kingdom.ResourceGold); got != 2 {
		t.Errorf("gold = %d, want 2", got)
	}
}

func TestRerollWithoutPendingCheck(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, _, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)

	_, err := svc.Reroll(ctx, id, "user-1", kingdom.CheckInput{NaturalRoll: 10, DC: 15})
	if !errors.Is(err, ErrNoPendingCheck) {
		t.Fatalf("err = %v, want ErrNoPendingCheck", err)
	}
}

func TestRerollStaleCheck(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()

	if _, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 12, TotalModifier: 5, DC: 15, Turn: 1},
	}); err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}

	// Bump the sheet to a later turn without touching the cached check:
	// the reroll still proceeds but is flagged stale.
	st, err := svc.turns.loadState(ctx, id)
	if err != nil {
		t.Fatalf("loadState: %v", err)
	}
	st.Turn = 3
	putState(t, cache, id, st)

	outcome, err := svc.Reroll(ctx, id, "user-1", kingdom.CheckInput{
		NaturalRoll: 16, TotalModifier: 5, DC: 15, Turn: 1,
	})
	if err != nil {
		t.Fatalf("Reroll: %v", err)
	}
	if !outcome.Stale {
		t.Error("expected the reroll outcome flagged stale")
	}
}

func TestUndoSkipsNoEffectCheck(t *testing.T) {
	svc, turnSvc, campaignRepo, turnRepo, cache, source, _ := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.actions["claim-taxes"] = claimTaxesTable()
	source.actions["parley"] = kingdom.EffectTable{
		kingdom.DegreeCriticalSuccess: {Message: "The envoys are charmed."},
		kingdom.DegreeSuccess:         {Message: "The envoys listen politely."},
		kingdom.DegreeFailure:         {Message: "The envoys are unmoved."},
		kingdom.DegreeCriticalFailure: {Message: "The envoys storm out."},
	}

	if _, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "claim-taxes",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 12, TotalModifier: 5, DC: 15, Turn: 1},
	}); err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}

	// A check whose degree declares no effects records nothing in
	// history, so undo reaches the tax check underneath.
	if _, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindAction,
		RecordID: "parley",
		Skill:    "politics",
		Input:    kingdom.CheckInput{NaturalRoll: 10, TotalModifier: 2, DC: 15, Turn: 1},
	}); err != nil {
		t.Fatalf("no-effect SubmitCheck: %v", err)
	}

	st, _, err := turnSvc.Undo(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if got := st.Resource(kingdom.ResourceGold); got != 0 {
		t.Errorf("gold = %d after undo, want 0", got)
	}
}

func TestSubmitCheckMilestones(t *testing.T) {
	svc, _, campaignRepo, turnRepo, cache, source, bc := newTestCheckService()
	ctx := context.Background()
	id := startTestCampaign(t, campaignRepo, turnRepo, cache)
	source.events["royal-decree"] = kingdom.EffectTable{
		kingdom.DegreeCriticalSuccess: {Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisRuthless, Points: 12}},
		kingdom.DegreeSuccess:         {Doctrine: &kingdom.DoctrineDelta{Axis: kingdom.AxisRuthless, Points: 12}},
		kingdom.DegreeFailure:         {},
		kingdom.DegreeCriticalFailure: {},
	}

	outcome, err := svc.SubmitCheck(ctx, id, "user-1", CheckSubmission{
		Kind:     CheckKindEvent,
		RecordID: "royal-decree",
		Skill:    "intrigue",
		Input:    kingdom.CheckInput{NaturalRoll: 14, TotalModifier: 3, DC: 15, Turn: 1},
	})
	if err != nil {
		t.Fatalf("SubmitCheck: %v", err)
	}

	// 12 points crosses the minor threshold: one milestone, persisted.
	if len(outcome.Milestones) != 1 {
		t.Fatalf("milestones = %d, want 1", len(outcome.Milestones))
	}
	if outcome.Milestones[0].Axis != "ruthless" || outcome.Milestones[0].Tier != "minor" {
		t.Errorf("milestone = %+v, want ruthless/minor", outcome.Milestones[0])
	}
	saved, _ := turnRepo.ListMilestones(ctx, id)
	if len(saved) != 1 {
		t.Errorf("persisted milestones = %d, want 1", len(saved))
	}

	var sawShift, sawMilestone bool
	for _, typ := range bc.eventTypes() {
		switch typ {
		case "doctrine_shifted":
			sawShift = true
		case "milestone":
			sawMilestone = true
		}
	}
	if !sawShift || !sawMilestone {
		t.Errorf("broadcasts shift=%v milestone=%v, want both", sawShift, sawMilestone)
	}
}

func TestParseCheckKind(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want CheckKind
	}{
		{"action", CheckKindAction},
		{"event", CheckKindEvent},
		{"incident", CheckKindIncident},
	} {
		got, err := ParseCheckKind(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseCheckKind(%q) = %v, %v", tc.in, got, err)
		}
		if got.String() != tc.in {
			t.Errorf("String() = %s, want %s", got.String(), tc.in)
		}
	}
	if _, err := ParseCheckKind("ritual"); !errors.Is(err, ErrUnknownCheckKind) {
		t.Errorf("ParseCheckKind(ritual) err = %v, want ErrUnknownCheckKind", err)
	}
}
