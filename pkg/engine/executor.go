package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventKind labels what an execution event reports.
type EventKind string

const (
	EventExecute EventKind = "execute"
	EventUndo    EventKind = "undo"
	EventRedo    EventKind = "redo"
)

// Event is delivered to registered listeners after each top-level
// execution, undo, or redo.
type Event struct {
	Kind      EventKind
	Operation string
	Result    Result
}

// Listener observes execution events. Panics inside a listener are caught
// and logged, never propagated.
type Listener func(Event)

// Executor applies operations against the shared state. It is an explicit
// instance constructed once and injected into every phase controller; it
// enforces at most one in-flight top-level execution via a boolean guard
// and records successful executions in a bounded history.
type Executor struct {
	mu        sync.Mutex
	executing bool

	history   *History
	listeners []Listener
}

// NewExecutor creates an executor with a history bounded to maxHistory
// (<= 0 selects DefaultHistorySize).
func NewExecutor(maxHistory int) *Executor {
	return &Executor{history: NewHistory(maxHistory)}
}

// AddListener registers an execution-event listener.
func (e *Executor) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// History exposes the undo/redo cursor state for read-only inspection.
func (e *Executor) History() *History { return e.history }

// Reset clears the history. Called when the turn advances.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Clear()
}

// begin claims the execution guard. A second concurrent call is rejected
// rather than queued unless the caller opted into partial-success mode.
func (e *Executor) begin(allowPartial bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.executing && !allowPartial {
		return false
	}
	e.executing = true
	return true
}

func (e *Executor) end() {
	e.mu.Lock()
	e.executing = false
	e.mu.Unlock()
}

// Execute validates and runs a single operation. On success the operation
// is appended to history (unless opts.SkipHistory) so it can be undone.
// Validation and body failures come back in Result.Err, never as panics.
func (e *Executor) Execute(op Operation, ctx *Context, opts Options) Result {
	if !e.begin(opts.AllowPartialSuccess) {
		return Failure(ErrAlreadyExecuting)
	}
	defer e.end()

	res := e.run(op, ctx, opts)
	if res.Success && !opts.SkipHistory {
		e.history.Add(entry{
			name:    op.Name(),
			ops:     []Operation{op},
			results: []Result{res},
		})
	}
	e.notify(Event{Kind: EventExecute, Operation: op.Name(), Result: res})
	return res
}

// run performs validation and the operation body without touching the
// guard or history.
func (e *Executor) run(op Operation, ctx *Context, opts Options) Result {
	if !opts.SkipValidation {
		if err := op.CanExecute(ctx); err != nil {
			return Failure(fmt.Errorf("%w: %s: %v", ErrValidation, op.Name(), err))
		}
	}
	return op.Execute(ctx)
}

// ExecuteSequence runs operations strictly in list order, accumulating
// their Data. On the first failure, unless opts.AllowPartialSuccess, every
// already-executed operation is rolled back in reverse order; individual
// rollback failures are logged, collected into RollbackErrors on the
// returned result, and never abort the unwind. A fully successful sequence
// is appended to history as one batch.
func (e *Executor) ExecuteSequence(name string, ops []Operation, ctx *Context, opts Options) Result {
	if !e.begin(opts.AllowPartialSuccess) {
		return Failure(ErrAlreadyExecuting)
	}
	defer e.end()

	data := make(map[string]any)
	executedOps := make([]Operation, 0, len(ops))
	executed := make([]Result, 0, len(ops))

	for i, op := range ops {
		res := e.run(op, ctx, opts)
		if !res.Success {
			if opts.AllowPartialSuccess {
				continue
			}
			fail := Failure(fmt.Errorf("sequence %q: operation %d (%s): %w", name, i, op.Name(), res.Err))
			fail.RollbackErrors = e.unwind(executedOps, executed, ctx)
			e.notify(Event{Kind: EventExecute, Operation: name, Result: fail})
			return fail
		}
		executedOps = append(executedOps, op)
		executed = append(executed, res)
		for k, v := range res.Data {
			data[k] = v
		}
	}

	out := Result{Success: true, Data: data}
	if !opts.SkipHistory {
		e.history.Add(entry{name: name, ops: executedOps, results: executed})
	}
	e.notify(Event{Kind: EventExecute, Operation: name, Result: out})
	return out
}

// unwind rolls executed operations back in reverse order, swallowing
// individual failures after logging them. The collected failures are
// surfaced to the caller on the primary result.
func (e *Executor) unwind(ops []Operation, results []Result, ctx *Context) []error {
	var failures []error
	for i := len(results) - 1; i >= 0; i-- {
		rb := results[i].Rollback
		if rb == nil {
			continue
		}
		if err := rb(ctx); err != nil {
			log.Warn().Err(err).Str("operation", ops[i].Name()).Msg("Rollback failed, continuing")
			failures = append(failures, fmt.Errorf("rollback %s: %w", ops[i].Name(), err))
		}
	}
	return failures
}

// Undo reverses the batch at the cursor using the caller-supplied current
// context; the executor never caches a context, so undo after the shared
// state has moved on operates on fresh data. Rollback failures are
// best-effort: logged, collected, and the cursor still moves.
func (e *Executor) Undo(ctx *Context) Result {
	if !e.begin(false) {
		return Failure(ErrAlreadyExecuting)
	}
	defer e.end()

	if !e.history.CanUndo() {
		return Failure(ErrNothingToUndo)
	}
	ent := e.history.current()

	supported := false
	for _, r := range ent.results {
		if r.Rollback != nil {
			supported = true
			break
		}
	}
	if !supported {
		return Failure(fmt.Errorf("%w: %s", ErrUndoUnsupported, ent.name))
	}

	res := Result{Success: true}
	res.RollbackErrors = e.unwind(ent.ops, ent.results, ctx)
	e.history.cursor--

	e.notify(Event{Kind: EventUndo, Operation: ent.name, Result: res})
	return res
}

// Redo re-executes the first batch of the redo tail against the
// caller-supplied current context, skipping history (the entry is already
// recorded) and validation (it passed when first executed). Fresh results
// replace the stored ones so a later undo uses up-to-date rollbacks. A
// failure mid-batch unwinds the re-done prefix and leaves the cursor put.
func (e *Executor) Redo(ctx *Context) Result {
	if !e.begin(false) {
		return Failure(ErrAlreadyExecuting)
	}
	defer e.end()

	if !e.history.CanRedo() {
		return Failure(ErrNothingToRedo)
	}
	ent := e.history.next()

	redone := make([]Result, 0, len(ent.ops))
	for i, op := range ent.ops {
		res := op.Execute(ctx)
		if !res.Success {
			fail := Failure(fmt.Errorf("redo %q: operation %d (%s): %w", ent.name, i, op.Name(), res.Err))
			fail.RollbackErrors = e.unwind(ent.ops[:len(redone)], redone, ctx)
			e.notify(Event{Kind: EventRedo, Operation: ent.name, Result: fail})
			return fail
		}
		redone = append(redone, res)
	}
	ent.results = redone
	e.history.cursor++

	out := Result{Success: true}
	e.notify(Event{Kind: EventRedo, Operation: ent.name, Result: out})
	return out
}

// notify delivers an event to every listener, isolating panics.
func (e *Executor) notify(ev Event) {
	e.mu.Lock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("operation", ev.Operation).Msg("Execution listener panicked")
				}
			}()
			l(ev)
		}()
	}
}
