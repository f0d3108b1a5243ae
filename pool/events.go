package pool

import (
	"context"

	"github.com/google/uuid"
)

// controlEvent is the sum type the control goroutine consumes. Every
// public Pool method does nothing but build one of these, send it on
// p.events, and (for suspending calls) wait on an embedded reply
// channel — the realization of the design's "dedicated dispatch thread
// consuming a channel of named events" suggestion.
type controlEvent interface{ isControlEvent() }

type submitEvent struct {
	task     Task
	acquired *worker // non-nil for SubmitTo
	reply    chan submitReply
}

type submitReply struct {
	completion *Completion
	err        error
}

type acquireEvent struct {
	ctx   context.Context
	reply chan acquireReply
}

type acquireReply struct {
	worker *worker
	err    error
}

type releaseEvent struct {
	worker *worker
}

type statsEvent struct {
	reply chan Stats
}

type waitAvailableEvent struct {
	ctx   context.Context
	reply chan error
}

type closeEvent struct {
	reply chan error
}

// abortTaskEvent is posted by an AbortSignal's subscribed callback,
// which may run on any goroutine — routing it through the channel
// keeps the actual abort bookkeeping on the control goroutine.
type abortTaskEvent struct {
	id uuid.UUID
}

// cancelAcquireEvent/cancelWaitAvailableEvent let AcquireWorker and
// WaitForAvailableResource withdraw a still-pending waiter when their
// caller's context is canceled, identified by the reply channel's
// identity since that's the only handle the caller retained.
type cancelAcquireEvent struct {
	reply chan acquireReply
}

type cancelWaitAvailableEvent struct {
	reply chan error
}

type shrinkTickEvent struct{}

// workerReadyEvent fires once a freshly spawned worker answers its
// first health probe — the Go analogue of the teacher's
// waitForReady() discovering /health returns 200.
type workerReadyEvent struct {
	w *worker
}

// workerFrameEvent carries one Frame a worker's pump goroutine read off
// the transport, tagged with which worker it came from.
type workerFrameEvent struct {
	w     *worker
	frame Frame
}

// workerExitedEvent fires when a worker's transport reports the
// process/goroutine has terminated — the Go analogue of the teacher's
// Worker.monitor() observing cmd.Wait() return.
type workerExitedEvent struct {
	w   *worker
	err error
}

func (submitEvent) isControlEvent()              {}
func (acquireEvent) isControlEvent()             {}
func (releaseEvent) isControlEvent()             {}
func (statsEvent) isControlEvent()               {}
func (waitAvailableEvent) isControlEvent()       {}
func (closeEvent) isControlEvent()               {}
func (abortTaskEvent) isControlEvent()           {}
func (cancelAcquireEvent) isControlEvent()       {}
func (cancelWaitAvailableEvent) isControlEvent() {}
func (shrinkTickEvent) isControlEvent()          {}
func (workerReadyEvent) isControlEvent()         {}
func (workerFrameEvent) isControlEvent()         {}
func (workerExitedEvent) isControlEvent()        {}

// Stats is the snapshot returned by Pool.Stats. AvailableWorkers is the
// total live worker count (the pool's current workforce, regardless of
// whether each one is busy); IdleWorkers is strictly those sitting in
// the idle ring right now.
type Stats struct {
	AvailableWorkers int
	IdleWorkers      int
	RunningTasks     int
	QueuedTasks      int
	Closed           bool
}

// resultOf turns a resultPayload into the Outcome a completion settles
// with, used by the control goroutine when handling a RESULT frame.
func resultOf(p resultPayload) Outcome {
	if p.Error != "" {
		return Outcome{Err: wrapErr(ErrUserTaskFailure, errString(p.Error))}
	}
	return Outcome{Data: p.Data}
}

type errString string

func (e errString) Error() string { return string(e) }
