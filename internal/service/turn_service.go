package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkieran/demesne/internal/repository"
	"github.com/mkieran/demesne/pkg/engine"
	"github.com/mkieran/demesne/pkg/kingdom"
	"github.com/mkieran/demesne/pkg/kingdom/ops"
)

// Turn progression errors surfaced to the handler layer.
var (
	ErrNoKingdomState  = errors.New("campaign has no live kingdom state")
	ErrPhaseIncomplete = errors.New("phase has incomplete steps")
	ErrNoFurtherPhase  = errors.New("already in the final phase of the turn")
	ErrManualStep      = errors.New("step requires an explicit action")
	ErrTurnNotFound    = errors.New("no unresolved turn for campaign")
)

// TurnService is the phase controller: it sequences a campaign's turn
// through its phases, applies every mutation through the execution engine,
// and persists snapshots at phase and turn boundaries.
type TurnService struct {
	campaignRepo repository.CampaignRepository
	turnRepo     repository.TurnRepository
	cache        repository.StateCache
	broadcaster  Broadcaster

	phases []kingdom.PhaseDef

	// campaignLocks prevents concurrent progression for the same campaign.
	// Both the keyspace listener and the poller can fire simultaneously;
	// without locking, both advance the same turn creating duplicate rows.
	campaignLocks sync.Map

	// executors holds one engine instance per campaign so the undo/redo
	// history spans requests within a turn. Histories are cleared when
	// the turn advances.
	executors sync.Map
}

// NewTurnService creates a TurnService.
func NewTurnService(
	campaignRepo repository.CampaignRepository,
	turnRepo repository.TurnRepository,
	cache repository.StateCache,
	broadcaster Broadcaster,
) *TurnService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &TurnService{
		campaignRepo: campaignRepo,
		turnRepo:     turnRepo,
		cache:        cache,
		broadcaster:  broadcaster,
		phases:       kingdom.DefaultPhases(),
	}
}

// lock acquires the per-campaign progression lock.
func (s *TurnService) lock(campaignID string) func() {
	muIface, _ := s.campaignLocks.LoadOrStore(campaignID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// executor returns the campaign's engine instance, creating it on first use.
func (s *TurnService) executor(campaignID string) *engine.Executor {
	e, _ := s.executors.LoadOrStore(campaignID, engine.NewExecutor(engine.DefaultHistorySize))
	return e.(*engine.Executor)
}

// loadState re-reads the current kingdom sheet from the cache. Every
// operation, undo, and redo works against a context built from this fresh
// read; the service never reuses a context across requests.
func (s *TurnService) loadState(ctx context.Context, campaignID string) (*kingdom.State, error) {
	raw, err := s.cache.GetKingdomState(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNoKingdomState
	}
	return kingdom.UnmarshalState(raw)
}

// saveState writes the sheet back to the cache.
func (s *TurnService) saveState(ctx context.Context, campaignID string, st *kingdom.State) error {
	raw, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("marshal kingdom state: %w", err)
	}
	return s.cache.SetKingdomState(ctx, campaignID, raw)
}

// CurrentState returns the live kingdom sheet for a campaign.
func (s *TurnService) CurrentState(ctx context.Context, campaignID string) (*kingdom.State, error) {
	return s.loadState(ctx, campaignID)
}

// CompleteStep marks a step of the active phase complete through the
// engine and reports the updated sheet. Manual steps may only be completed
// with force=true, which is how step-completing check resolutions and
// explicit player confirmations arrive.
func (s *TurnService) CompleteStep(ctx context.Context, campaignID string, index int, actorID string, force bool) (*kingdom.State, error) {
	unlock := s.lock(campaignID)
	defer unlock()

	st, err := s.loadState(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if done, err := st.StepCompleted(index); err != nil {
		return nil, err
	} else if !done && st.Steps[index].Manual && !force {
		return nil, fmt.Errorf("%w: %s", ErrManualStep, st.Steps[index].Name)
	}

	ectx := engine.NewContext(st, actorID)
	res := s.executor(campaignID).Execute(ops.CompleteStep{Index: index}, ectx, engine.Options{})
	if !res.Success {
		return nil, res.Err
	}
	if err := s.saveState(ctx, campaignID, st); err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastCampaignEvent(campaignID, "turn_state", st)
	return st, nil
}

// BeginEventPhase records the outcome of the turn's event check. With no
// event id, no event triggered: the controller completes the whole event
// phase itself since no user action is required. With an event id, the
// pending event is stored and only the check step completes; resolving the
// event is a manual step driven by a skill check.
func (s *TurnService) BeginEventPhase(ctx context.Context, campaignID, eventID, actorID string) (*kingdom.State, error) {
	unlock := s.lock(campaignID)
	defer unlock()

	st, err := s.loadState(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if st.Phase != kingdom.PhaseEvent {
		return nil, fmt.Errorf("event check outside event phase (in %s)", st.Phase)
	}

	var batch []engine.Operation
	if eventID == "" {
		for i, step := range st.Steps {
			if !step.Completed {
				batch = append(batch, ops.CompleteStep{Index: i})
			}
		}
	} else {
		batch = append(batch, engine.Func{
			OpName: "set-pending-event",
			Run: func(c *engine.Context) engine.Result {
				prev := c.State.PendingEventID
				c.State.PendingEventID = eventID
				return engine.Success(map[string]any{"pending_event": eventID}, func(rc *engine.Context) error {
					rc.State.PendingEventID = prev
					return nil
				})
			},
		}, ops.CompleteStep{Index: 0})
	}

	ectx := engine.NewContext(st, actorID)
	res := s.executor(campaignID).ExecuteSequence("event-check", batch, ectx, engine.Options{})
	if !res.Success {
		return nil, res.Err
	}
	if err := s.saveState(ctx, campaignID, st); err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastCampaignEvent(campaignID, "turn_state", st)
	return st, nil
}

// AdvancePhase moves a campaign whose active phase is fully complete into
// the next phase. Advancing past the final phase is a turn advance, which
// is a separate operation.
func (s *TurnService) AdvancePhase(ctx context.Context, campaignID, actorID string) (*kingdom.State, error) {
	unlock := s.lock(campaignID)
	defer unlock()

	st, err := s.loadState(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !st.PhaseComplete() {
		return nil, ErrPhaseIncomplete
	}
	next, ok := kingdom.NextPhase(s.phases, st.Phase)
	if !ok {
		return nil, ErrNoFurtherPhase
	}

	ectx := engine.NewContext(st, actorID)
	res := s.executor(campaignID).Execute(ops.EnterPhase{Def: next}, ectx, engine.Options{})
	if !res.Success {
		return nil, res.Err
	}
	if err := s.saveState(ctx, campaignID, st); err != nil {
		return nil, err
	}

	log.Info().Str("campaignId", campaignID).Str("phase", string(next.ID)).Msg("Phase advanced")
	s.broadcaster.BroadcastCampaignEvent(campaignID, "phase_advanced", map[string]any{
		"phase": next.ID,
		"turn":  st.Turn,
	})
	return st, nil
}

// AdvanceTurn closes out the current turn: the exit snapshot is written to
// the resolved turn row, a new turn row is created, turn-scoped cache keys
// and the undo history are cleared, and the deadline timer is re-armed.
// With force=true (deadline expiry) incomplete steps are completed rather
// than blocking the advance.
func (s *TurnService) AdvanceTurn(ctx context.Context, campaignID, actorID string, force bool) (*kingdom.State, error) {
	unlock := s.lock(campaignID)
	defer unlock()
	return s.advanceTurnLocked(ctx, campaignID, actorID, force)
}

func (s *TurnService) advanceTurnLocked(ctx context.Context, campaignID, actorID string, force bool) (*kingdom.State, error) {
	st, err := s.loadState(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if force {
		// Deadline expiry: whatever is left of the turn is forfeited.
		// Jump to the final phase with every step marked complete so the
		// advance validates.
		if _, ok := kingdom.NextPhase(s.phases, st.Phase); ok {
			st.EnterPhase(s.phases[len(s.phases)-1])
		}
		for i := range st.Steps {
			st.Steps[i].Completed = true
		}
	}

	ectx := engine.NewContext(st, actorID)
	res := s.executor(campaignID).Execute(ops.AdvanceTurn{Phases: s.phases}, ectx, engine.Options{SkipHistory: true})
	if !res.Success {
		return nil, res.Err
	}

	stateAfter, err := st.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal kingdom state: %w", err)
	}

	turn, err := s.turnRepo.CurrentTurn(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if turn == nil {
		return nil, ErrTurnNotFound
	}
	if err := s.turnRepo.ResolveTurn(ctx, turn.ID, stateAfter); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.campaignTurnDuration(ctx, campaignID))
	if _, err := s.turnRepo.CreateTurn(ctx, campaignID, st.Turn, stateAfter, deadline); err != nil {
		return nil, err
	}

	if err := s.cache.SetKingdomState(ctx, campaignID, stateAfter); err != nil {
		return nil, err
	}
	if err := s.cache.ClearTurnData(ctx, campaignID); err != nil {
		log.Warn().Err(err).Str("campaignId", campaignID).Msg("Failed to clear turn cache data")
	}
	if err := s.cache.SetTimer(ctx, campaignID, deadline); err != nil {
		log.Warn().Err(err).Str("campaignId", campaignID).Msg("Failed to arm turn timer")
	}
	s.executor(campaignID).Reset()

	expired, _ := res.Data["expired_modifiers"].([]string)
	log.Info().Str("campaignId", campaignID).Int("turn", st.Turn).
		Strs("expiredModifiers", expired).Time("deadline", deadline).
		Msg("Turn advanced")
	s.broadcaster.BroadcastCampaignEvent(campaignID, "turn_advanced", map[string]any{
		"turn":              st.Turn,
		"expired_modifiers": expired,
	})
	return st, nil
}

// Undo reverses the most recent recorded batch. The context is rebuilt
// from a fresh cache read so undo never operates on a stale snapshot.
// Best-effort rollback failures are returned on the result, not fatal.
func (s *TurnService) Undo(ctx context.Context, campaignID, actorID string) (*kingdom.State, engine.Result, error) {
	unlock := s.lock(campaignID)
	defer unlock()

	st, err := s.loadState(ctx, campaignID)
	if err != nil {
		return nil, engine.Result{}, err
	}
	res := s.executor(campaignID).Undo(engine.NewContext(st, actorID))
	if !res.Success {
		return nil, res, res.Err
	}
	if err := s.saveState(ctx, campaignID, st); err != nil {
		return nil, res, err
	}
	s.broadcaster.BroadcastCampaignEvent(campaignID, "turn_state", st)
	return st, res, nil
}

// Redo re-applies the most recently undone batch against a fresh state.
func (s *TurnService) Redo(ctx context.Context, campaignID, actorID string) (*kingdom.State, engine.Result, error) {
	unlock := s.lock(campaignID)
	defer unlock()

	st, err := s.loadState(ctx, campaignID)
	if err != nil {
		return nil, engine.Result{}, err
	}
	res := s.executor(campaignID).Redo(engine.NewContext(st, actorID))
	if !res.Success {
		return nil, res, res.Err
	}
	if err := s.saveState(ctx, campaignID, st); err != nil {
		return nil, res, err
	}
	s.broadcaster.BroadcastCampaignEvent(campaignID, "turn_state", st)
	return st, res, nil
}

// RecoverActiveCampaigns rehydrates Redis state for all active campaigns
// from Postgres. Called on server startup to restore timers and live
// state lost during a restart.
func (s *TurnService) RecoverActiveCampaigns(ctx context.Context) error {
	campaigns, err := s.campaignRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		log.Info().Msg("No active campaigns to recover")
		return nil
	}

	log.Info().Int("count", len(campaigns)).Msg("Recovering active campaigns after restart")
	for _, c := range campaigns {
		turn, err := s.turnRepo.CurrentTurn(ctx, c.ID)
		if err != nil {
			log.Error().Err(err).Str("campaignId", c.ID).Msg("Failed to get current turn during recovery")
			continue
		}
		if turn == nil {
			log.Warn().Str("campaignId", c.ID).Msg("Active campaign has no current turn, skipping")
			continue
		}

		// Only rehydrate when the live state is missing; a running cache
		// is fresher than the last snapshot.
		existing, err := s.cache.GetKingdomState(ctx, c.ID)
		if err != nil {
			log.Error().Err(err).Str("campaignId", c.ID).Msg("Failed to read cache during recovery")
			continue
		}
		if existing == nil {
			if err := s.cache.SetKingdomState(ctx, c.ID, turn.StateBefore); err != nil {
				log.Error().Err(err).Str("campaignId", c.ID).Msg("Failed to restore kingdom state")
				continue
			}
		}
		if time.Now().Before(turn.Deadline) {
			if err := s.cache.SetTimer(ctx, c.ID, turn.Deadline); err != nil {
				log.Error().Err(err).Str("campaignId", c.ID).Msg("Failed to restore timer")
			}
		}
		log.Info().Str("campaignId", c.ID).Int("turn", turn.Number).
			Time("deadline", turn.Deadline).Msg("Recovered campaign state")
	}
	return nil
}

// campaignTurnDuration reads the campaign's configured turn duration.
func (s *TurnService) campaignTurnDuration(ctx context.Context, campaignID string) time.Duration {
	fallback, _ := time.ParseDuration(DefaultTurnDuration)
	c, err := s.campaignRepo.FindByID(ctx, campaignID)
	if err != nil || c == nil {
		return fallback
	}
	d, err := time.ParseDuration(c.TurnDuration)
	if err != nil {
		return fallback
	}
	return d
}

// Phases exposes the configured phase order.
func (s *TurnService) Phases() []kingdom.PhaseDef { return s.phases }
