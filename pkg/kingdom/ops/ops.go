// Package ops provides the concrete reversible operations the phase
// controllers hand to the execution engine: clamped resource mutations,
// continuous-effect ledger changes, doctrine accumulation, and phase/step
// progression.
package ops

import (
	"errors"
	"fmt"

	"github.com/mkieran/demesne/pkg/engine"
	"github.com/mkieran/demesne/pkg/kingdom"
)

// ErrNoState indicates an operation was executed against a context with no
// kingdom sheet attached.
var ErrNoState = errors.New("ops: context has no state")

func requireState(ctx *engine.Context) error {
	if ctx == nil || ctx.State == nil {
		return ErrNoState
	}
	return nil
}

// AdjustResources applies a record's resource deltas with write-time
// clamping. Rollback restores the exact captured pre-values, not the
// inverse deltas, so clamped writes undo to precisely the prior state.
type AdjustResources struct {
	Source string
	Deltas []kingdom.ResourceDelta
}

func (o AdjustResources) Name() string { return "adjust-resources" }

func (o AdjustResources) CanExecute(ctx *engine.Context) error {
	if err := requireState(ctx); err != nil {
		return err
	}
	if len(o.Deltas) == 0 {
		return errors.New("no deltas to apply")
	}
	return nil
}

func (o AdjustResources) Execute(ctx *engine.Context) engine.Result {
	prev := make(map[kingdom.Resource]int)
	applied := make(map[string]any)
	for _, d := range o.Deltas {
		if !d.Enabled {
			continue
		}
		if _, seen := prev[d.Resource]; !seen {
			prev[d.Resource] = ctx.State.Resource(d.Resource)
		}
		applied[string(d.Resource)] = ctx.State.AdjustResource(d.Resource, d.Value)
	}
	return engine.Success(applied, func(c *engine.Context) error {
		if err := requireState(c); err != nil {
			return err
		}
		for r, v := range prev {
			c.State.SetResource(r, v)
		}
		return nil
	})
}

// AddModifier registers a continuous effect spawned by an unresolved
// outcome.
type AddModifier struct {
	Modifier *kingdom.Modifier
}

func (o AddModifier) Name() string { return "add-modifier" }

func (o AddModifier) CanExecute(ctx *engine.Context) error {
	if err := requireState(ctx); err != nil {
		return err
	}
	if o.Modifier == nil || o.Modifier.ID == "" {
		return errors.New("modifier missing id")
	}
	if ctx.State.Modifier(o.Modifier.ID) != nil {
		return fmt.Errorf("modifier %s already registered", o.Modifier.ID)
	}
	return nil
}

func (o AddModifier) Execute(ctx *engine.Context) engine.Result {
	ctx.State.AddModifier(o.Modifier)
	id := o.Modifier.ID
	return engine.Success(map[string]any{"modifier_id": id}, func(c *engine.Context) error {
		if err := requireState(c); err != nil {
			return err
		}
		if c.State.RemoveModifier(id) == nil {
			return fmt.Errorf("modifier %s not in ledger", id)
		}
		return nil
	})
}

// RemoveModifier deletes a ledger entry, either because its resolution
// check succeeded or because outcome text carried the ends marker.
type RemoveModifier struct {
	ID string
}

func (o RemoveModifier) Name() string { return "remove-modifier" }

func (o RemoveModifier) CanExecute(ctx *engine.Context) error {
	if err := requireState(ctx); err != nil {
		return err
	}
	if ctx.State.Modifier(o.ID) == nil {
		return fmt.Errorf("modifier %s not in ledger", o.ID)
	}
	return nil
}

func (o RemoveModifier) Execute(ctx *engine.Context) engine.Result {
	removed := ctx.State.RemoveModifier(o.ID)
	if removed == nil {
		return engine.Failure(fmt.Errorf("modifier %s not in ledger", o.ID))
	}
	return engine.Success(map[string]any{"modifier_id": o.ID}, func(c *engine.Context) error {
		if err := requireState(c); err != nil {
			return err
		}
		c.State.AddModifier(removed)
		return nil
	})
}

// AddDoctrine accumulates points on one doctrine axis, clamped at zero.
type AddDoctrine struct {
	Axis   kingdom.Axis
	Points int
}

func (o AddDoctrine) Name() string { return "add-doctrine" }

func (o AddDoctrine) CanExecute(ctx *engine.Context) error {
	if err := requireState(ctx); err != nil {
		return err
	}
	switch o.Axis {
	case kingdom.AxisPractical, kingdom.AxisIdealist, kingdom.AxisRuthless:
		return nil
	}
	return fmt.Errorf("unknown doctrine axis %q", o.Axis)
}

func (o AddDoctrine) Execute(ctx *engine.Context) engine.Result {
	prev := ctx.State.Doctrine.Totals[o.Axis]
	total := ctx.State.AddDoctrine(o.Axis, o.Points)
	return engine.Success(map[string]any{"doctrine_" + string(o.Axis): total}, func(c *engine.Context) error {
		if err := requireState(c); err != nil {
			return err
		}
		c.State.Doctrine.Totals[o.Axis] = prev
		return nil
	})
}

// CompleteStep marks a step of the active phase complete and reports
// whether the phase is now complete under the "phase_complete" data key.
type CompleteStep struct {
	Index int
}

func (o CompleteStep) Name() string { return "complete-step" }

func (o CompleteStep) CanExecute(ctx *engine.Context) error {
	if err := requireState(ctx); err != nil {
		return err
	}
	done, err := ctx.State.StepCompleted(o.Index)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("step %d already completed", o.Index)
	}
	return nil
}

func (o CompleteStep) Execute(ctx *engine.Context) engine.Result {
	complete, err := ctx.State.CompleteStep(o.Index)
	if err != nil {
		return engine.Failure(err)
	}
	idx := o.Index
	return engine.Success(map[string]any{"phase_complete": complete}, func(c *engine.Context) error {
		if err := requireState(c); err != nil {
			return err
		}
		return c.State.UncompleteStep(idx)
	})
}

// EnterPhase installs the step array for the next phase. Rollback restores
// the previous phase's steps and ephemera.
type EnterPhase struct {
	Def kingdom.PhaseDef
}

func (o EnterPhase) Name() string { return "enter-phase" }

func (o EnterPhase) CanExecute(ctx *engine.Context) error {
	if err := requireState(ctx); err != nil {
		return err
	}
	if !ctx.State.PhaseComplete() {
		return fmt.Errorf("phase %s has incomplete steps", ctx.State.Phase)
	}
	return nil
}

func (o EnterPhase) Execute(ctx *engine.Context) engine.Result {
	prev := ctx.State.TurnState
	prevSteps := make([]kingdom.Step, len(prev.Steps))
	copy(prevSteps, prev.Steps)
	ctx.State.EnterPhase(o.Def)
	return engine.Success(map[string]any{"phase": string(o.Def.ID)}, func(c *engine.Context) error {
		if err := requireState(c); err != nil {
			return err
		}
		c.State.TurnState = prev
		c.State.Steps = prevSteps
		return nil
	})
}

// AdvanceTurn increments the turn, resets to the first phase, clears
// turn-scoped ephemera, and expires elapsed continuous effects. Turn
// advancement is deliberately not reversible: the caller clears the
// executor history after applying it.
type AdvanceTurn struct {
	Phases []kingdom.PhaseDef
}

func (o AdvanceTurn) Name() string { return "advance-turn" }

func (o AdvanceTurn) CanExecute(ctx *engine.Context) error {
	if err := requireState(ctx); err != nil {
		return err
	}
	if !ctx.State.PhaseComplete() {
		return fmt.Errorf("phase %s has incomplete steps", ctx.State.Phase)
	}
	if _, ok := kingdom.NextPhase(o.Phases, ctx.State.Phase); ok {
		return fmt.Errorf("phase %s is not the final phase", ctx.State.Phase)
	}
	return nil
}

func (o AdvanceTurn) Execute(ctx *engine.Context) engine.Result {
	expired := ctx.State.AdvanceTurn(o.Phases)
	return engine.Result{Success: true, Data: map[string]any{
		"turn":              ctx.State.Turn,
		"expired_modifiers": expired,
	}}
}
