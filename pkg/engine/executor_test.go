package engine

import (
	"errors"
	"testing"

	"github.com/mkieran/demesne/pkg/kingdom"
)

// adjustGold is a minimal reversible operation used across executor tests.
func adjustGold(delta int) Operation {
	return Func{
		OpName: "adjust-gold",
		Run: func(ctx *Context) Result {
			prev := ctx.State.Resource(kingdom.ResourceGold)
			ctx.State.AdjustResource(kingdom.ResourceGold, delta)
			return Success(nil, func(c *Context) error {
				c.State.SetResource(kingdom.ResourceGold, prev)
				return nil
			})
		},
	}
}

func failingOp(err error) Operation {
	return Func{
		OpName: "failing",
		Run:    func(*Context) Result { return Failure(err) },
	}
}

func newTestContext() *Context {
	return NewContext(kingdom.NewState(kingdom.DefaultPhases()), "actor-1")
}

func TestExecutor_ExecuteAndUndoExactness(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()
	ctx.State.AdjustResource(kingdom.ResourceGold, 7)

	res := e.Execute(adjustGold(5), ctx, Options{})
	if !res.Success {
		t.Fatalf("execute failed: %v", res.Err)
	}
	if got := ctx.State.Resource(kingdom.ResourceGold); got != 12 {
		t.Fatalf("gold = %d, want 12", got)
	}

	undo := e.Undo(ctx)
	if !undo.Success || len(undo.RollbackErrors) != 0 {
		t.Fatalf("undo = %+v", undo)
	}
	if got := ctx.State.Resource(kingdom.ResourceGold); got != 7 {
		t.Errorf("gold after undo = %d, want exactly 7", got)
	}
}

func TestExecutor_RedoUsesSuppliedContext(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	e.Execute(adjustGold(5), ctx, Options{})
	e.Undo(ctx)

	// Redo against a freshly loaded state, as the controller does after
	// re-reading the cache.
	fresh := NewContext(ctx.State, "actor-1")
	redo := e.Redo(fresh)
	if !redo.Success {
		t.Fatalf("redo failed: %v", redo.Err)
	}
	if got := ctx.State.Resource(kingdom.ResourceGold); got != 5 {
		t.Errorf("gold after redo = %d, want 5", got)
	}
	// And a later undo still reverses it exactly.
	e.Undo(fresh)
	if got := ctx.State.Resource(kingdom.ResourceGold); got != 0 {
		t.Errorf("gold after second undo = %d, want 0", got)
	}
}

func TestExecutor_UndoRedoBoundaries(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	if res := e.Undo(ctx); !errors.Is(res.Err, ErrNothingToUndo) {
		t.Errorf("undo on empty = %v, want ErrNothingToUndo", res.Err)
	}
	if res := e.Redo(ctx); !errors.Is(res.Err, ErrNothingToRedo) {
		t.Errorf("redo on empty = %v, want ErrNothingToRedo", res.Err)
	}
}

func TestExecutor_UndoUnsupported(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	noRollback := Func{
		OpName: "one-way",
		Run: func(c *Context) Result {
			c.State.AdjustResource(kingdom.ResourceOre, 1)
			return Result{Success: true}
		},
	}
	e.Execute(noRollback, ctx, Options{})

	if res := e.Undo(ctx); !errors.Is(res.Err, ErrUndoUnsupported) {
		t.Errorf("undo = %v, want ErrUndoUnsupported", res.Err)
	}
}

func TestExecutor_ValidationFailureReturnsError(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	op := Func{
		OpName:   "guarded",
		Validate: func(*Context) error { return errors.New("precondition") },
		Run: func(c *Context) Result {
			t.Fatal("body must not run when validation fails")
			return Result{}
		},
	}
	res := e.Execute(op, ctx, Options{})
	if res.Success || !errors.Is(res.Err, ErrValidation) {
		t.Errorf("result = %+v, want ErrValidation", res)
	}
	if e.History().Len() != 0 {
		t.Error("failed execution must not reach history")
	}

	// SkipValidation bypasses the precondition.
	op2 := Func{
		OpName:   "guarded",
		Validate: func(*Context) error { return errors.New("precondition") },
		Run:      func(*Context) Result { return Result{Success: true} },
	}
	if res := e.Execute(op2, ctx, Options{SkipValidation: true}); !res.Success {
		t.Errorf("skip-validation execute failed: %v", res.Err)
	}
}

func TestExecutor_ReentrantExecuteRejected(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	var inner Result
	outer := Func{
		OpName: "outer",
		Run: func(c *Context) Result {
			inner = e.Execute(adjustGold(1), c, Options{})
			return Result{Success: true}
		},
	}
	if res := e.Execute(outer, ctx, Options{}); !res.Success {
		t.Fatalf("outer failed: %v", res.Err)
	}
	if !errors.Is(inner.Err, ErrAlreadyExecuting) {
		t.Errorf("inner = %v, want ErrAlreadyExecuting", inner.Err)
	}
	if got := ctx.State.Resource(kingdom.ResourceGold); got != 0 {
		t.Errorf("rejected execution touched state: gold = %d", got)
	}
}

func TestExecutor_SequenceRollbackOnFailure(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()
	ctx.State.AdjustResource(kingdom.ResourceGold, 3)
	snapshot := ctx.State.Resource(kingdom.ResourceGold)

	ops := []Operation{
		adjustGold(4),
		failingOp(errors.New("boom")),
		adjustGold(100),
	}
	res := e.ExecuteSequence("turn-step", ops, ctx, Options{})

	if res.Success {
		t.Fatal("sequence with a failing middle operation must fail")
	}
	if got := ctx.State.Resource(kingdom.ResourceGold); got != snapshot {
		t.Errorf("gold = %d, want pre-sequence snapshot %d", got, snapshot)
	}
	if e.History().Len() != 0 {
		t.Error("failed sequence must not reach history")
	}
}

func TestExecutor_SequenceRollbackFailuresCollected(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	badRollback := Func{
		OpName: "bad-rollback",
		Run: func(c *Context) Result {
			c.State.AdjustResource(kingdom.ResourceStone, 2)
			return Success(nil, func(*Context) error { return errors.New("rollback broke") })
		},
	}
	ops := []Operation{badRollback, failingOp(errors.New("boom"))}
	res := e.ExecuteSequence("turn-step", ops, ctx, Options{})

	if res.Success {
		t.Fatal("sequence must fail")
	}
	if len(res.RollbackErrors) != 1 {
		t.Fatalf("rollback errors = %v, want exactly one", res.RollbackErrors)
	}
}

func TestExecutor_SequencePartialSuccess(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	ops := []Operation{
		adjustGold(4),
		failingOp(errors.New("boom")),
		adjustGold(2),
	}
	res := e.ExecuteSequence("lenient", ops, ctx, Options{AllowPartialSuccess: true})

	if !res.Success {
		t.Fatalf("partial-success sequence failed: %v", res.Err)
	}
	if got := ctx.State.Resource(kingdom.ResourceGold); got != 6 {
		t.Errorf("gold = %d, want 6 (failures skipped, not unwound)", got)
	}
}

func TestExecutor_SequenceUndo(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	ops := []Operation{adjustGold(4), adjustGold(2)}
	if res := e.ExecuteSequence("batch", ops, ctx, Options{}); !res.Success {
		t.Fatalf("sequence failed: %v", res.Err)
	}
	if e.History().Len() != 1 {
		t.Fatalf("history len = %d, want 1 (batch is one unit)", e.History().Len())
	}

	e.Undo(ctx)
	if got := ctx.State.Resource(kingdom.ResourceGold); got != 0 {
		t.Errorf("gold after batch undo = %d, want 0", got)
	}
}

func TestExecutor_SkipHistory(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	e.Execute(adjustGold(1), ctx, Options{SkipHistory: true})
	if e.History().Len() != 0 {
		t.Error("SkipHistory execution must not be recorded")
	}
}

func TestExecutor_ListenerPanicIsolated(t *testing.T) {
	e := NewExecutor(10)
	ctx := newTestContext()

	var events []Event
	e.AddListener(func(Event) { panic("listener bug") })
	e.AddListener(func(ev Event) { events = append(events, ev) })

	res := e.Execute(adjustGold(1), ctx, Options{})
	if !res.Success {
		t.Fatalf("execute failed: %v", res.Err)
	}
	if len(events) != 1 || events[0].Kind != EventExecute {
		t.Errorf("second listener events = %+v, want one execute event", events)
	}
}
