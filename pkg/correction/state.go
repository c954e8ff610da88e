package correction

import "sync"

// State is an element's position in the processing state machine
type State int

const (
	StateUnmarked State = iota
	StateProcessing
	StateProcessed
	StateError
)

func (s State) String() string {
	switch s {
	case StateProcessing:
		return "processing"
	case StateProcessed:
		return "processed"
	case StateError:
		return "error"
	default:
		return "unmarked"
	}
}

type stateEntry struct {
	state State
	token uint64
}

// stateTable tracks processing state per element ID. Each processing pass
// gets a token; a pass whose entry was cleared meanwhile cannot overwrite the
// cleared state when it finishes.
type stateTable struct {
	mu      sync.Mutex
	entries map[string]stateEntry
	next    uint64
}

func newStateTable() *stateTable {
	return &stateTable{entries: make(map[string]stateEntry)}
}

// begin moves id to processing unless it is already processing or processed
func (t *stateTable) begin(id string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[id]; ok && (e.state == StateProcessing || e.state == StateProcessed) {
		return 0, false
	}
	t.next++
	t.entries[id] = stateEntry{state: StateProcessing, token: t.next}
	return t.next, true
}

// finish records the outcome of the pass identified by token
func (t *stateTable) finish(id string, token uint64, state State) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok || e.token != token {
		return StateUnmarked
	}
	t.entries[id] = stateEntry{state: state, token: token}
	return state
}

func (t *stateTable) get(id string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[id].state
}

// clear resets the given IDs, or every element when none are given
func (t *stateTable) clear(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(ids) == 0 {
		clear(t.entries)
		return
	}
	for _, id := range ids {
		delete(t.entries, id)
	}
}

// resetIf clears id only while it still belongs to the pass identified by token
func (t *stateTable) resetIf(id string, token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[id]; ok && e.token == token {
		delete(t.entries, id)
	}
}

func (t *stateTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
