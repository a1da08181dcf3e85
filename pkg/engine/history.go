package engine

// entry is one history record: a batch of operations executed as a unit
// together with the results (and rollback closures) they produced.
type entry struct {
	name    string
	ops     []Operation
	results []Result
}

// History is an ordered sequence of executed batches plus a cursor.
// Invariant: -1 <= cursor < len(entries). Entries past the cursor are the
// redo tail; adding a new entry truncates it first, then evicts from the
// front once the length exceeds maxSize, moving the cursor down by the
// eviction count but never below zero.
type History struct {
	entries []entry
	cursor  int
	maxSize int
}

// DefaultHistorySize bounds the history when the caller does not choose.
const DefaultHistorySize = 50

// NewHistory creates an empty history with the given bound.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = DefaultHistorySize
	}
	return &History{cursor: -1, maxSize: maxSize}
}

// Add appends a batch after truncating any redo tail, then evicts from the
// front to honor the bound.
func (h *History) Add(e entry) {
	h.entries = append(h.entries[:h.cursor+1], e)
	h.cursor = len(h.entries) - 1
	if over := len(h.entries) - h.maxSize; over > 0 {
		h.entries = h.entries[over:]
		h.cursor -= over
		if h.cursor < 0 {
			h.cursor = 0
		}
	}
}

// CanUndo reports whether the cursor points at an executed batch.
func (h *History) CanUndo() bool { return h.cursor >= 0 }

// CanRedo reports whether a redo tail exists past the cursor.
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Len returns the number of recorded batches.
func (h *History) Len() int { return len(h.entries) }

// CurrentName returns the name of the batch at the cursor, or "" when
// there is nothing to undo. Callers use it to decide whether the batch
// about to be undone is the one they recorded.
func (h *History) CurrentName() string {
	if h.cursor < 0 {
		return ""
	}
	return h.entries[h.cursor].name
}

// Cursor returns the current cursor position.
func (h *History) Cursor() int { return h.cursor }

// Clear empties the history. Called when the turn advances so stale
// rollbacks from a previous turn can never fire.
func (h *History) Clear() {
	h.entries = nil
	h.cursor = -1
}

// current returns the batch the cursor points at.
func (h *History) current() *entry { return &h.entries[h.cursor] }

// next returns the first batch of the redo tail.
func (h *History) next() *entry { return &h.entries[h.cursor+1] }
