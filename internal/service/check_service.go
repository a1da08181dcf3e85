package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkieran/demesne/internal/model"
	"github.com/mkieran/demesne/internal/repository"
	"github.com/mkieran/demesne/pkg/engine"
	"github.com/mkieran/demesne/pkg/kingdom"
	"github.com/mkieran/demesne/pkg/kingdom/ops"
)

// Check submission errors.
var (
	ErrUnknownCheckKind = errors.New("unknown check kind")
	ErrUnknownRecord    = errors.New("record not found in catalogue")
	ErrNoOutcome        = errors.New("record declares no outcome for degree")
	ErrSkillNotAllowed  = errors.New("skill cannot resolve this effect")
	ErrModifierNotFound = errors.New("continuous effect not found")
	ErrNoPendingCheck   = errors.New("no check available to reroll")
	ErrRerollLimit      = errors.New("reroll already used this turn")

	// ErrStaleCheck is a warning, not a failure: the pending check being
	// rerolled was rolled in an earlier turn. The reroll proceeds against
	// current state and the outcome is flagged stale.
	ErrStaleCheck = errors.New("pending check is from an earlier turn")
)

// rerollsPerTurn caps how many times one actor may reroll in a turn.
const rerollsPerTurn = 1

// CheckKind distinguishes the three record families a check can resolve
// against. It is a closed set: every kind has a dedicated lookup on
// RecordSource, and adding a kind means adding a method.
type CheckKind int

const (
	CheckKindAction CheckKind = iota + 1
	CheckKindEvent
	CheckKindIncident
)

func (k CheckKind) String() string {
	switch k {
	case CheckKindAction:
		return "action"
	case CheckKindEvent:
		return "event"
	case CheckKindIncident:
		return "incident"
	default:
		return "unknown"
	}
}

// ParseCheckKind maps the wire form to a CheckKind.
func ParseCheckKind(s string) (CheckKind, error) {
	switch s {
	case "action":
		return CheckKindAction, nil
	case "event":
		return CheckKindEvent, nil
	case "incident":
		return CheckKindIncident, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCheckKind, s)
	}
}

// RecordSource supplies effect tables from the content catalogue, one
// lookup per record family.
type RecordSource interface {
	ActionEffects(id string) (kingdom.EffectTable, error)
	EventEffects(id string) (kingdom.EffectTable, error)
	IncidentEffects(id string) (kingdom.EffectTable, error)
}

// CheckSubmission is a resolved die roll arriving from a player. The roll,
// modifier, and DC were all assembled by the caller; the service only
// verifies the natural roll is a legal die face.
type CheckSubmission struct {
	Kind     CheckKind
	RecordID string
	Skill    string
	Input    kingdom.CheckInput

	// TargetModifierID names a continuous effect this check attempts to
	// resolve. Empty for plain action/event checks.
	TargetModifierID string
}

// CheckOutcome reports what a resolved check did to the kingdom.
type CheckOutcome struct {
	Degree            kingdom.Degree    `json:"degree"`
	Message           string            `json:"message,omitempty"`
	SpawnedModifierID string            `json:"spawned_modifier_id,omitempty"`
	RemovedModifiers  []string          `json:"removed_modifiers,omitempty"`
	Milestones        []model.Milestone `json:"milestones,omitempty"`
	Stale             bool              `json:"stale,omitempty"`
	State             *kingdom.State    `json:"state"`
}

// CheckService resolves skill checks: it grades the roll, looks up the
// record's effects for that degree, applies them through the engine in one
// reversible batch, and persists the audit row.
type CheckService struct {
	turns       *TurnService
	turnRepo    repository.TurnRepository
	cache       repository.StateCache
	broadcaster Broadcaster
	source      RecordSource
	doctrine    kingdom.DoctrineConfig
	newID       func() string
}

// NewCheckService creates a CheckService sharing the turn service's
// per-campaign locks and engine instances.
func NewCheckService(
	turns *TurnService,
	turnRepo repository.TurnRepository,
	cache repository.StateCache,
	broadcaster Broadcaster,
	source RecordSource,
) *CheckService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &CheckService{
		turns:       turns,
		turnRepo:    turnRepo,
		cache:       cache,
		broadcaster: broadcaster,
		source:      source,
		doctrine:    kingdom.DefaultDoctrineConfig(),
		newID:       uuid.NewString,
	}
}

// SubmitCheck resolves a check against the campaign's live state.
func (s *CheckService) SubmitCheck(ctx context.Context, campaignID, actorID string, sub CheckSubmission) (*CheckOutcome, error) {
	unlock := s.turns.lock(campaignID)
	defer unlock()

	st, err := s.turns.loadState(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	outcome, err := s.applyCheck(ctx, campaignID, actorID, st, sub)
	if err != nil {
		return nil, err
	}
	if err := s.turns.saveState(ctx, campaignID, st); err != nil {
		return nil, err
	}
	return outcome, nil
}

// Reroll replays the campaign's most recent check with a new roll. When
// the check is still the batch at the history cursor its outcome is
// unwound first so effects never stack; otherwise the replacement
// applies on top of current state.
func (s *CheckService) Reroll(ctx context.Context, campaignID, actorID string, input kingdom.CheckInput) (*CheckOutcome, error) {
	unlock := s.turns.lock(campaignID)
	defer unlock()

	st, err := s.turns.loadState(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if st.RerollsUsed[actorID] >= rerollsPerTurn {
		return nil, ErrRerollLimit
	}

	raw, err := s.cache.GetPendingCheck(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNoPendingCheck
	}
	var stored storedCheck
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode pending check: %w", err)
	}

	stale := stored.Submission.Input.Turn != 0 && stored.Submission.Input.Turn < st.Turn
	if stale {
		log.Warn().Str("campaignId", campaignID).
			Int("checkTurn", stored.Submission.Input.Turn).Int("currentTurn", st.Turn).
			Msg("Rerolling a check recorded in an earlier turn")
	}

	// Unwind the original application, but only when the batch at the
	// cursor is the stored check's. Anything executed after the check,
	// a step completion for instance, must survive the reroll; in that
	// case the replacement applies on top of current state.
	exec := s.turns.executor(campaignID)
	if exec.History().CurrentName() == checkSequenceName(stored.Submission.Kind, stored.Submission.RecordID) {
		undoRes := exec.Undo(engine.NewContext(st, actorID))
		if !undoRes.Success {
			return nil, undoRes.Err
		}
	}

	sub := stored.Submission
	sub.Input = input
	outcome, err := s.applyCheck(ctx, campaignID, actorID, st, sub)
	if err != nil {
		return nil, err
	}
	outcome.Stale = stale

	if st.RerollsUsed == nil {
		st.RerollsUsed = make(map[string]int)
	}
	st.RerollsUsed[actorID]++
	if err := s.turns.saveState(ctx, campaignID, st); err != nil {
		return nil, err
	}
	return outcome, nil
}

// storedCheck is the cached record of the last resolved check, kept for
// the reroll window.
type storedCheck struct {
	Submission CheckSubmission `json:"submission"`
}

// checkSequenceName is the history batch name a check records under.
// Reroll matches on it before unwinding.
func checkSequenceName(kind CheckKind, recordID string) string {
	return fmt.Sprintf("check:%s:%s", kind, recordID)
}

// applyCheck grades and applies one submission against st. The caller
// holds the campaign lock and saves state afterwards.
func (s *CheckService) applyCheck(ctx context.Context, campaignID, actorID string, st *kingdom.State, sub CheckSubmission) (*CheckOutcome, error) {
	if err := sub.Input.Validate(); err != nil {
		return nil, err
	}

	table, err := s.effectsFor(sub.Kind, sub.RecordID)
	if err != nil {
		return nil, err
	}

	var target *kingdom.Modifier
	if sub.TargetModifierID != "" {
		target = st.Modifier(sub.TargetModifierID)
		if target == nil {
			return nil, fmt.Errorf("%w: %s", ErrModifierNotFound, sub.TargetModifierID)
		}
		if !target.Resolution.AllowsSkill(sub.Skill) {
			return nil, fmt.Errorf("%w: %s", ErrSkillNotAllowed, sub.Skill)
		}
	}

	degree := kingdom.Resolve(sub.Input.NaturalRoll, sub.Input.TotalModifier, sub.Input.DC)
	eff, ok := table[degree]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s/%s", ErrNoOutcome, sub.Kind, sub.RecordID, degree)
	}

	outcome := &CheckOutcome{Degree: degree, Message: eff.Message, State: st}

	var batch []engine.Operation
	if len(eff.Deltas) > 0 {
		batch = append(batch, ops.AdjustResources{Source: sub.RecordID, Deltas: eff.Deltas})
	}
	if eff.Doctrine != nil && eff.Doctrine.Points != 0 {
		batch = append(batch, ops.AddDoctrine{Axis: eff.Doctrine.Axis, Points: eff.Doctrine.Points})
	}
	if kingdom.Unresolved(degree) && eff.IfUnresolved != nil {
		m := eff.IfUnresolved.Modifier.BuildModifier(s.newID(), sub.RecordID, st.Turn)
		outcome.SpawnedModifierID = m.ID
		batch = append(batch, ops.AddModifier{Modifier: m})
	}
	targetRemoved := degree.Success() && target != nil
	if targetRemoved {
		outcome.RemovedModifiers = append(outcome.RemovedModifiers, target.ID)
		batch = append(batch, ops.RemoveModifier{ID: target.ID})
	}
	// The ends marker in the outcome text terminates the source record's
	// continuous effects on any degree. The content declares it, so it is
	// not tied to the roll the way target resolution is.
	if kingdom.OutcomeEndsEffect(eff.Message) {
		for _, m := range st.ModifiersBySource(sub.RecordID) {
			if targetRemoved && m.ID == target.ID {
				continue
			}
			outcome.RemovedModifiers = append(outcome.RemovedModifiers, m.ID)
			batch = append(batch, ops.RemoveModifier{ID: m.ID})
		}
	}

	// A degree declaring no effects leaves nothing to record; an empty
	// history batch would only break a later Undo.
	if len(batch) > 0 {
		name := checkSequenceName(sub.Kind, sub.RecordID)
		res := s.turns.executor(campaignID).ExecuteSequence(name, batch, engine.NewContext(st, actorID), engine.Options{})
		if !res.Success {
			return nil, res.Err
		}
	}

	if eff.Doctrine != nil && eff.Doctrine.Points != 0 {
		if axis, changed := st.RefreshDominant(s.doctrine); changed {
			s.broadcaster.BroadcastCampaignEvent(campaignID, "doctrine_shifted", map[string]any{
				"dominant": axis,
				"turn":     st.Turn,
			})
		}
		if recorded := st.RecordMilestones(s.doctrine, s.newID); len(recorded) > 0 {
			ms := make([]model.Milestone, len(recorded))
			for i, r := range recorded {
				ms[i] = model.Milestone{
					ID:         r.ID,
					CampaignID: campaignID,
					Axis:       string(r.Axis),
					Tier:       r.Tier.String(),
					TurnNumber: r.Turn,
				}
			}
			if err := s.turnRepo.SaveMilestones(ctx, ms); err != nil {
				log.Error().Err(err).Str("campaignId", campaignID).Msg("Failed to persist doctrine milestones")
			}
			outcome.Milestones = ms
			s.broadcaster.BroadcastCampaignEvent(campaignID, "milestone", ms)
		}
	}

	st.PendingCheck = &kingdom.PendingCheck{
		RecordID: sub.RecordID,
		Skill:    sub.Skill,
		Roll:     sub.Input.NaturalRoll,
		Modifier: sub.Input.TotalModifier,
		DC:       sub.Input.DC,
		Turn:     st.Turn,
	}
	if raw, err := json.Marshal(storedCheck{Submission: sub}); err == nil {
		if err := s.cache.SetPendingCheck(ctx, campaignID, raw); err != nil {
			log.Warn().Err(err).Str("campaignId", campaignID).Msg("Failed to cache pending check")
		}
	}

	audit := &model.Check{
		ID:         s.newID(),
		CampaignID: campaignID,
		TurnNumber: st.Turn,
		Phase:      string(st.Phase),
		ActorID:    actorID,
		Kind:       sub.Kind.String(),
		RecordID:   sub.RecordID,
		Skill:      sub.Skill,
		Roll:       sub.Input.NaturalRoll,
		Modifier:   sub.Input.TotalModifier,
		DC:         sub.Input.DC,
		Degree:     degree.String(),
	}
	if err := s.turnRepo.SaveCheck(ctx, audit); err != nil {
		log.Error().Err(err).Str("campaignId", campaignID).Msg("Failed to persist check audit row")
	}

	log.Info().Str("campaignId", campaignID).Str("kind", sub.Kind.String()).
		Str("recordId", sub.RecordID).Str("degree", degree.String()).
		Int("roll", sub.Input.NaturalRoll).Int("dc", sub.Input.DC).
		Msg("Check resolved")
	s.broadcaster.BroadcastCampaignEvent(campaignID, "check_resolved", outcome)
	return outcome, nil
}

// effectsFor dispatches the catalogue lookup on the closed kind set.
func (s *CheckService) effectsFor(kind CheckKind, recordID string) (kingdom.EffectTable, error) {
	var (
		table kingdom.EffectTable
		err   error
	)
	switch kind {
	case CheckKindAction:
		table, err = s.source.ActionEffects(recordID)
	case CheckKindEvent:
		table, err = s.source.EventEffects(recordID)
	case CheckKindIncident:
		table, err = s.source.IncidentEffects(recordID)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCheckKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownRecord, kind, recordID)
	}
	return table, nil
}
