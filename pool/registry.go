package pool

import "github.com/google/uuid"

// abortFlag is the task's one-byte abort flag: 0 means "keep going",
// 1 means "abort". It is written once, by the control goroutine, and
// never read back by the pool, so no atomic is required on this side.
// Its bytes are copied into the TASK frame at dispatch; a later set()
// does not reach the worker, which learns of an abort from the ABORT
// frame instead (see frameAbort in codec.go).
type abortFlag struct {
	b [1]byte
}

func (f *abortFlag) set() { f.b[0] = 1 }

func (f *abortFlag) bytes() []byte { return f.b[:] }

// taskState is the core-owned record for a task that has not yet
// reached a terminal state, keyed by queuedTask.id in taskRegistry.
type taskState struct {
	completion   *Completion
	aborted      bool
	flag         *abortFlag
	unsubAbort   func()
	deregistered bool
}

// taskRegistry is the map from task identity to its per-task state,
// adapted from the teacher's SessionManager: same shape (map + simple
// CRUD), but with the TTL sweeper dropped — a task's presence in the
// registry is bounded by its own lifecycle (the pool's
// registered→queued|dispatched→terminal states), not by wall-clock
// idleness, so there is nothing here for a sweeper to reclaim.
type taskRegistry struct {
	entries map[uuid.UUID]*taskState
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{entries: make(map[uuid.UUID]*taskState)}
}

func (r *taskRegistry) add(id uuid.UUID, st *taskState) {
	r.entries[id] = st
}

func (r *taskRegistry) get(id uuid.UUID) (*taskState, bool) {
	st, ok := r.entries[id]
	return st, ok
}

func (r *taskRegistry) len() int {
	return len(r.entries)
}

// deregister performs the idempotent teardown required on every
// terminal transition: remove from the registry and detach the abort
// subscription, in one step so nothing downstream ever observes a task
// that is "half gone" (present in the registry with its subscription
// already detached, or vice versa).
func (r *taskRegistry) deregister(id uuid.UUID) {
	st, ok := r.entries[id]
	if !ok {
		return
	}
	if st.deregistered {
		return
	}
	st.deregistered = true
	if st.unsubAbort != nil {
		st.unsubAbort()
	}
	delete(r.entries, id)
}

// clear tears down every entry still registered, used by Close: each
// task is rejected by the caller before clear runs, so this is purely
// bookkeeping (detach subscriptions, empty the map).
func (r *taskRegistry) clear() {
	for id, st := range r.entries {
		if !st.deregistered && st.unsubAbort != nil {
			st.unsubAbort()
		}
		delete(r.entries, id)
	}
}
