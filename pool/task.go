package pool

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Task is the caller-supplied description of a unit of work. A Task is
// immutable once passed to Submit: the pool copies nothing out of it
// that it later mutates.
type Task struct {
	// Type routes the task to a handler on the worker side.
	Type string
	// Data is the opaque payload passed verbatim to the worker.
	Data json.RawMessage
	// Priority controls dispatch order when the pool runs with a
	// priority wait list; lower values are more prioritized. Ignored
	// in FIFO mode. Defaults to 0.
	Priority int
	// AbortSignal, if set, is subscribed to at submission and lets the
	// caller cancel a queued or in-flight task cooperatively.
	AbortSignal *AbortSignal
	// TransferList is accepted on the Task but is not sent to the
	// worker: the TASK frame carries only Type, Data and the abort flag
	// bytes. It exists so callers porting code that relied on
	// transferable handles have somewhere to put them.
	TransferList []byte
	// OnEvent, if set, receives progress notifications emitted by the
	// worker while the task runs. Invoked on the pool's control
	// goroutine — it must not block or call back into the pool.
	OnEvent func(event string, data json.RawMessage)
}

// id is assigned internally at Submit and is what every core index
// actually keys on; Task itself carries no identity field because two
// equal-looking Go Task values submitted twice must not collide.
type queuedTask struct {
	id    uuid.UUID
	task  Task
	state *taskState
}

// AbortSignal is an external cancellation handle a caller attaches to a
// Task. It may be shared by at most one in-flight Task at a time.
//
// Callers may call Abort from any goroutine — it is not expected to run
// on the pool's control goroutine — so it guards its own state with a
// mutex, unlike the core indices in pool.go which rely entirely on
// single-goroutine ownership.
type AbortSignal struct {
	mu      sync.Mutex
	aborted bool
	subs    []func()
}

// NewAbortSignal returns a fresh, unfired abort signal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{}
}

// Aborted reports whether Abort has already been called.
func (s *AbortSignal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Abort fires the signal, synchronously invoking every still-subscribed
// handler exactly once. Subsequent calls are no-ops. Subscribed
// handlers are expected to be cheap and non-blocking (they only ever
// push a control event onto a channel).
func (s *AbortSignal) Abort() {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

// subscribeAbort registers fn to fire when Abort is called. If the
// signal has already fired, fn runs immediately and the returned
// unsubscribe is a no-op. Unsubscribe is index-based (not closure
// identity) so the same handler can be subscribed more than once.
func (s *AbortSignal) subscribeAbort(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	idx := len(s.subs)
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subs) {
			s.subs[idx] = nil
		}
	}
}
