// Package engine implements the reversible-operation execution engine:
// named, validated units of state change applied through an executor that
// records them for undo/redo and rolls back failed sequences.
package engine

import (
	"errors"

	"github.com/mkieran/demesne/pkg/kingdom"
)

// Context is the handle passed into every operation call: the shared
// kingdom sheet plus the active turn, phase, and optional actor. Operations
// must not retain it beyond the call.
type Context struct {
	State   *kingdom.State
	Turn    int
	Phase   kingdom.PhaseID
	ActorID string
}

// NewContext builds a context positioned at the sheet's current turn and
// phase.
func NewContext(state *kingdom.State, actorID string) *Context {
	return &Context{
		State:   state,
		Turn:    state.Turn,
		Phase:   state.Phase,
		ActorID: actorID,
	}
}

// RollbackFunc undoes an operation's effect. It receives the current
// context, which may wrap a different State instance than the one the
// operation originally mutated; rollbacks must therefore restore captured
// values rather than captured pointers.
type RollbackFunc func(*Context) error

// Result reports one operation execution. Failures are returned, never
// panicked. RollbackErrors collects best-effort rollback failures observed
// while unwinding a sequence or undoing; the surrounding flow continues
// past them, but callers can observe and assert on them.
type Result struct {
	Success        bool
	Data           map[string]any
	Err            error
	Rollback       RollbackFunc
	RollbackErrors []error
}

// Failure builds a failed result carrying err.
func Failure(err error) Result {
	return Result{Err: err}
}

// Success builds a successful result with an optional rollback.
func Success(data map[string]any, rollback RollbackFunc) Result {
	return Result{Success: true, Data: data, Rollback: rollback}
}

// Operation is a named, validated, reversible unit of state change.
// Implementations are created per invocation and not retained beyond the
// history record.
type Operation interface {
	Name() string
	CanExecute(*Context) error
	Execute(*Context) Result
}

// Options tune a single execute call.
type Options struct {
	SkipValidation      bool
	SkipHistory         bool
	AllowPartialSuccess bool
}

// Engine error taxonomy. All are returned through Result.Err or directly,
// never panicked, so phase controllers branch on them without recover.
var (
	ErrAlreadyExecuting = errors.New("engine: another execution is in flight")
	ErrNothingToUndo    = errors.New("engine: nothing to undo")
	ErrNothingToRedo    = errors.New("engine: nothing to redo")
	ErrUndoUnsupported  = errors.New("engine: operation does not support undo")
	ErrValidation       = errors.New("engine: operation validation failed")
)

// Func adapts closures into Operations for one-off mutations.
type Func struct {
	OpName   string
	Validate func(*Context) error
	Run      func(*Context) Result
}

func (f Func) Name() string { return f.OpName }

func (f Func) CanExecute(ctx *Context) error {
	if f.Validate == nil {
		return nil
	}
	return f.Validate(ctx)
}

func (f Func) Execute(ctx *Context) Result { return f.Run(ctx) }
