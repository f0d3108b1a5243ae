// Package pool implements a worker pool control core: a single
// goroutine owns all scheduling state (idle workers, the task wait
// list, acquired workers, the task registry) and every public method
// is a thin client that posts a control event and, where the
// operation suspends, waits on a reply channel. Actual task execution
// happens out-of-process, in isolated worker subprocesses reached over
// a newline-delimited JSON frame protocol (see codec.go, transport.go).
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownDrainTimeout bounds how long Close waits, in the background,
// for killed worker processes to actually report their exit before
// giving up and logging — it never delays Close's own return.
const shutdownDrainTimeout = 10 * time.Second

// drainWorkers waits for every just-killed worker's transport to report
// exit, the errgroup-coordinated shutdown draining a production pool
// needs so a slow-to-die subprocess is observed rather than silently
// ignored, instead of the teacher's Shutdown (which kills and returns
// without confirming any process actually went away).
func (p *Pool) drainWorkers(workers []*worker) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDrainTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			select {
			case <-w.transport.exited():
				return nil
			case <-ctx.Done():
				return fmt.Errorf("worker %d did not exit before shutdown deadline", w.id)
			}
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Warn("shutdown drain incomplete", zap.Error(err))
	}
}

// Pool is a running worker pool. Construct with New, submit work with
// Submit/SubmitTo, observe with Stats, and release resources with
// Close. All exported methods are safe for concurrent use.
type Pool struct {
	cfg     Config
	min     int
	max     int
	logger  *zap.Logger
	metrics *Metrics

	events chan controlEvent

	// dialWorker starts one worker and returns its transport. Defaults
	// to spawning cfg.WorkerPath as a subprocess; tests substitute an
	// in-process fake so the control logic can be exercised without a
	// real binary.
	dialWorker func() (workerTransport, error)

	// exit is called on a fatal protocol violation (ErrInvalidMessage).
	// Defaults to os.Exit(1); tests substitute a recording stub.
	exit func(code int)

	// --- fields below are owned exclusively by the run() goroutine ---

	workers      map[int]*worker
	idle         *ringBuffer
	acquiredSet  map[int]*worker
	queue        taskWaitList
	registry     *taskRegistry
	runningTasks map[uuid.UUID]*queuedTask
	workerByTask map[uuid.UUID]*worker
	nextWorkerID int

	acquireWaiters   []chan acquireReply
	availableWaiters []chan error

	replacing   int
	pendingGrow int
	closed      bool

	// pendingPong is touched by both the control goroutine (reading a
	// PONG via pumpWorker) and healthProbe goroutines registering a new
	// waiter, so it carries its own lock rather than living under
	// single-goroutine ownership like the fields above.
	pendingPong   map[int]chan struct{}
	pendingPongMu sync.Mutex

	shrinkStop chan struct{}
	stopped    chan struct{}
}

// AcquiredWorker is the caller-facing handle returned by AcquireWorker.
// It carries no exported fields; callers pass it back to SubmitTo and
// ReleaseWorker.
type AcquiredWorker struct {
	w *worker
}

// defaultExit is the production fatal-error hook.
func defaultExit(code int) { os.Exit(code) }

// New starts a pool per cfg: cfg.MinPoolSize (or cfg.PoolSize) workers
// are spawned before New returns, though their health probes still
// resolve asynchronously — mirroring how the teacher's NewPool starts
// every worker process synchronously but leaves readiness polling to
// run in the background.
func New(cfg Config, logger *zap.Logger) (*Pool, error) {
	min, max, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dial := func() (workerTransport, error) {
		return spawnProcessTransport(cfg.WorkerPath, cfg.WorkerOptions)
	}

	p := newPoolCore(cfg, min, max, logger, dial)

	for i := 0; i < min; i++ {
		w, err := p.spawnWorker(spawnInitial)
		if err != nil {
			return nil, fmt.Errorf("isopool: start initial worker: %w", err)
		}
		p.workers[w.id] = w
	}

	go p.run()
	go p.shrinkLoop()

	return p, nil
}

// newPoolCore builds a Pool with its dialer injected, shared by New and
// by tests that need a fake transport instead of a real subprocess.
func newPoolCore(cfg Config, min, max int, logger *zap.Logger, dial func() (workerTransport, error)) *Pool {
	var q taskWaitList
	if cfg.UsePriorityTaskQueue {
		q = newPriorityQueue()
	} else {
		q = newQueue()
	}

	return &Pool{
		cfg:          cfg,
		min:          min,
		max:          max,
		logger:       logger,
		metrics:      newMetrics("isopool"),
		events:       make(chan controlEvent),
		dialWorker:   dial,
		exit:         defaultExit,
		workers:      make(map[int]*worker),
		idle:         newRingBuffer(max),
		acquiredSet:  make(map[int]*worker),
		queue:        q,
		registry:     newTaskRegistry(),
		runningTasks: make(map[uuid.UUID]*queuedTask),
		workerByTask: make(map[uuid.UUID]*worker),
		pendingPong:  make(map[int]chan struct{}),
		shrinkStop:   make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Metrics returns the pool's Prometheus collector set for the caller to
// register against its own registry.
func (p *Pool) Metrics() *Metrics { return p.metrics }

// run is the pool's single cooperative control context: every piece of
// core state above is read and written exclusively from this
// goroutine, so none of it needs a mutex. It never returns while the
// process lives — even after Close, it keeps draining stray worker
// exit events so late-arriving goroutines never block forever trying
// to report to it.
func (p *Pool) run() {
	defer close(p.stopped)
	for ev := range p.events {
		switch e := ev.(type) {
		case submitEvent:
			p.handleSubmit(e)
		case acquireEvent:
			p.handleAcquire(e)
		case cancelAcquireEvent:
			p.handleCancelAcquire(e)
		case releaseEvent:
			p.handleRelease(e)
		case statsEvent:
			e.reply <- p.snapshotStats()
		case waitAvailableEvent:
			p.handleWaitAvailable(e)
		case cancelWaitAvailableEvent:
			p.handleCancelWaitAvailable(e)
		case closeEvent:
			p.handleClose(e)
		case abortTaskEvent:
			p.handleAbortTask(e.id)
		case shrinkTickEvent:
			p.handleShrinkTick()
		case workerReadyEvent:
			p.handleWorkerReady(e.w)
		case workerFrameEvent:
			p.handleWorkerFrame(e.w, e.frame)
		case workerExitedEvent:
			p.handleWorkerExited(e.w, e.err)
		case replacementFailedEvent:
			p.replacing--
		case growFailedEvent:
			p.pendingGrow--
		}
	}
}

// Submit enqueues t for execution on any idle worker, growing the pool
// first if configured to. ctx only bounds how long Submit waits to
// hand the task to the control goroutine; once accepted, the task runs
// to completion regardless of ctx, and its own Completion must be
// waited on separately.
func (p *Pool) Submit(ctx context.Context, t Task) (*Completion, error) {
	return p.submit(ctx, t, nil)
}

// SubmitTo runs t on a worker previously obtained from AcquireWorker,
// bypassing the idle set and the wait list entirely. The worker is not
// returned to idle when the task finishes; the caller must still call
// ReleaseWorker.
func (p *Pool) SubmitTo(ctx context.Context, aw *AcquiredWorker, t Task) (*Completion, error) {
	if aw == nil || aw.w == nil {
		return nil, fmt.Errorf("isopool: nil acquired worker")
	}
	return p.submit(ctx, t, aw.w)
}

func (p *Pool) submit(ctx context.Context, t Task, explicit *worker) (*Completion, error) {
	reply := make(chan submitReply, 1)
	select {
	case p.events <- submitEvent{task: t, acquired: explicit, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.completion, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) handleSubmit(e submitEvent) {
	if p.closed {
		e.reply <- submitReply{err: ErrPoolClosed}
		return
	}
	if e.task.AbortSignal != nil && e.task.AbortSignal.Aborted() {
		e.reply <- submitReply{err: wrapErr(ErrAborted, nil)}
		return
	}

	id := uuid.New()
	completion := newCompletion()
	st := &taskState{completion: completion, flag: &abortFlag{}}

	if sig := e.task.AbortSignal; sig != nil {
		st.unsubAbort = sig.subscribeAbort(func() {
			p.events <- abortTaskEvent{id: id}
		})
	}

	p.registry.add(id, st)
	qt := &queuedTask{id: id, task: e.task, state: st}
	p.chooseAndDispatch(qt, e.acquired)

	e.reply <- submitReply{completion: completion}
}

// chooseAndDispatch implements the dispatch-selection step: an
// explicitly passed acquired worker wins outright, otherwise an idle
// worker is popped, otherwise the task waits in the queue and auto-grow
// is considered.
func (p *Pool) chooseAndDispatch(qt *queuedTask, explicit *worker) {
	if explicit != nil {
		p.dispatchToWorker(qt, explicit, true)
		return
	}
	if w, ok := p.idle.pop(); ok {
		p.dispatchToWorker(qt, w, false)
		return
	}
	p.queue.push(qt)
	p.metrics.QueuedTasks.Set(float64(p.queue.len()))
	p.maybeAutoGrow(true)
}

// dispatchToWorker posts qt to w. keepAcquired preserves w's acquired
// state across the task (used by SubmitTo and by reusing an acquired
// worker); otherwise w transitions to running.
func (p *Pool) dispatchToWorker(qt *queuedTask, w *worker, keepAcquired bool) {
	if !keepAcquired {
		w.state = workerRunning
	}
	w.runningTask = qt.id
	p.runningTasks[qt.id] = qt
	p.workerByTask[qt.id] = w

	frame, err := encodeTaskFrame(qt.task.Type, qt.task.Data, qt.state.flag.bytes())
	if err == nil {
		err = w.transport.send(frame)
	}
	if err != nil {
		delete(p.runningTasks, qt.id)
		delete(p.workerByTask, qt.id)
		w.runningTask = uuid.Nil
		if !keepAcquired {
			w.state = workerIdle
			_ = p.idle.push(w)
		}
		p.failTask(qt, wrapErr(ErrDispatchFailure, err))
		return
	}

	p.metrics.Dispatched.Inc()
	p.metrics.RunningTasks.Set(float64(len(p.runningTasks)))
	p.metrics.QueuedTasks.Set(float64(p.queue.len()))
	if qt.task.OnEvent != nil {
		p.safeOnEvent(qt, "sent to worker", nil)
	}
}

func (p *Pool) failTask(qt *queuedTask, err error) {
	if st, ok := p.registry.get(qt.id); ok && !st.aborted {
		st.completion.settle(Outcome{Err: err})
	}
	p.registry.deregister(qt.id)
}

func (p *Pool) resolveTask(qt *queuedTask, outcome Outcome) {
	st, ok := p.registry.get(qt.id)
	if !ok || st.aborted {
		return
	}
	st.completion.settle(outcome)
	p.registry.deregister(qt.id)
}

// safeOnEvent guards a user-supplied callback: a panic inside it is a
// bug in caller code, not a reason to take down the control goroutine.
func (p *Pool) safeOnEvent(qt *queuedTask, event string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task event callback panicked",
				zap.String("task", qt.id.String()), zap.Any("recover", r))
		}
	}()
	qt.task.OnEvent(event, data)
}

// handleAbortTask applies an AbortSignal firing. A queued (undispatched)
// task is tombstoned in the registry and rejected immediately; an
// in-flight task also has its abort flag set and an ABORT frame sent so
// the worker can observe it cooperatively, but still resolves its Completion right
// away rather than waiting for the worker's own RESULT — a late RESULT
// for an already-deregistered task id is simply discarded.
func (p *Pool) handleAbortTask(id uuid.UUID) {
	st, ok := p.registry.get(id)
	if !ok || st.aborted {
		return
	}
	st.aborted = true
	p.metrics.Aborts.Inc()

	if w, running := p.workerByTask[id]; running {
		st.flag.set()
		_ = w.transport.send(Frame{Type: frameAbort})
	}

	st.completion.settle(Outcome{Err: wrapErr(ErrAborted, nil)})
	p.registry.deregister(id)
}

// AcquireWorker reserves one worker for the caller's exclusive use
// until ReleaseWorker is called. It suspends until a worker is
// available or ctx is done.
func (p *Pool) AcquireWorker(ctx context.Context) (*AcquiredWorker, error) {
	reply := make(chan acquireReply, 1)
	select {
	case p.events <- acquireEvent{ctx: ctx, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		return &AcquiredWorker{w: r.worker}, nil
	case <-ctx.Done():
		p.events <- cancelAcquireEvent{reply: reply}
		select {
		case r := <-reply:
			if r.err == nil && r.worker != nil {
				// Handed over concurrently with our cancellation; we no
				// longer want it, so give it straight back.
				p.ReleaseWorker(&AcquiredWorker{w: r.worker})
			}
		default:
		}
		return nil, ctx.Err()
	}
}

func (p *Pool) handleAcquire(e acquireEvent) {
	if p.closed {
		e.reply <- acquireReply{err: ErrPoolClosed}
		return
	}
	if w, ok := p.idle.pop(); ok {
		w.state = workerAcquired
		p.acquiredSet[w.id] = w
		e.reply <- acquireReply{worker: w}
		return
	}
	p.acquireWaiters = append(p.acquireWaiters, e.reply)
	p.maybeAutoGrow(true)
}

func (p *Pool) handleCancelAcquire(e cancelAcquireEvent) {
	for i, r := range p.acquireWaiters {
		if r == e.reply {
			p.acquireWaiters = append(p.acquireWaiters[:i], p.acquireWaiters[i+1:]...)
			return
		}
	}
}

// ReleaseWorker returns a worker obtained from AcquireWorker. Releasing
// nil, or a worker already released, is a no-op.
func (p *Pool) ReleaseWorker(aw *AcquiredWorker) {
	if aw == nil || aw.w == nil {
		return
	}
	p.events <- releaseEvent{worker: aw.w}
}

func (p *Pool) handleRelease(e releaseEvent) {
	w := e.worker
	if _, ok := p.acquiredSet[w.id]; !ok {
		return
	}
	delete(p.acquiredSet, w.id)
	if p.closed {
		w.state = workerDead
		w.transport.kill()
		return
	}
	p.becameIdle(w)
}

// becameIdle is the worker-became-idle policy: hand the worker straight
// to a waiting AcquireWorker caller, otherwise park it in the idle set
// and try to drain the task queue, otherwise wake one
// WaitForAvailableResource waiter.
func (p *Pool) becameIdle(w *worker) {
	if p.closed {
		return
	}
	w.runningTask = uuid.Nil

	if len(p.acquireWaiters) > 0 {
		reply := p.acquireWaiters[0]
		p.acquireWaiters = p.acquireWaiters[1:]
		w.state = workerAcquired
		p.acquiredSet[w.id] = w
		reply <- acquireReply{worker: w}
		return
	}

	w.state = workerIdle
	if err := p.idle.push(w); err != nil {
		p.logger.Error("idle set at capacity, dropping worker", zap.Int("worker", w.id))
		return
	}
	p.metrics.IdleWorkers.Set(float64(p.idle.len()))

	for {
		qt, ok := p.queue.pop()
		if !ok {
			break
		}
		if _, live := p.registry.get(qt.id); !live {
			continue // tombstoned by an abort while queued
		}
		idleW, ok2 := p.idle.pop()
		if !ok2 {
			p.queue.push(qt)
			break
		}
		p.metrics.IdleWorkers.Set(float64(p.idle.len()))
		p.metrics.QueuedTasks.Set(float64(p.queue.len()))
		p.dispatchToWorker(qt, idleW, false)
		return
	}
	p.metrics.QueuedTasks.Set(float64(p.queue.len()))

	if p.idle.len() > 0 && len(p.availableWaiters) > 0 {
		reply := p.availableWaiters[0]
		p.availableWaiters = p.availableWaiters[1:]
		reply <- nil
	}
}

// WaitForAvailableResource suspends until at least one worker is idle
// and the task queue is empty, or ctx is done.
func (p *Pool) WaitForAvailableResource(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case p.events <- waitAvailableEvent{ctx: ctx, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		p.events <- cancelWaitAvailableEvent{reply: reply}
		return ctx.Err()
	}
}

func (p *Pool) handleWaitAvailable(e waitAvailableEvent) {
	if p.closed {
		e.reply <- ErrPoolClosed
		return
	}
	if p.idle.len() > 0 && p.queue.len() == 0 {
		e.reply <- nil
		return
	}
	p.availableWaiters = append(p.availableWaiters, e.reply)
}

func (p *Pool) handleCancelWaitAvailable(e cancelWaitAvailableEvent) {
	for i, r := range p.availableWaiters {
		if r == e.reply {
			p.availableWaiters = append(p.availableWaiters[:i], p.availableWaiters[i+1:]...)
			return
		}
	}
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	reply := make(chan Stats, 1)
	p.events <- statsEvent{reply: reply}
	return <-reply
}

func (p *Pool) snapshotStats() Stats {
	return Stats{
		AvailableWorkers: len(p.workers),
		IdleWorkers:      p.idle.len(),
		RunningTasks:     len(p.runningTasks),
		QueuedTasks:      p.queue.len(),
		Closed:           p.closed,
	}
}

// Close stops auto-shrink, rejects every registered task with
// ErrPoolClosed, terminates every worker, and marks the pool closed.
// Idempotent. The control goroutine itself keeps running afterward so
// straggler worker-exit events from processes being killed have
// somewhere to land.
func (p *Pool) Close() error {
	reply := make(chan error, 1)
	p.events <- closeEvent{reply: reply}
	return <-reply
}

func (p *Pool) handleClose(e closeEvent) {
	if p.closed {
		e.reply <- nil
		return
	}
	p.closed = true
	close(p.shrinkStop)

	for _, st := range p.registry.entries {
		if !st.aborted {
			st.completion.settle(Outcome{Err: ErrPoolClosed})
		}
	}
	p.registry.clear()
	p.queue.clear()
	p.runningTasks = make(map[uuid.UUID]*queuedTask)
	p.workerByTask = make(map[uuid.UUID]*worker)

	killed := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		w.state = workerDead
		w.transport.kill()
		killed = append(killed, w)
	}
	go p.drainWorkers(killed)

	p.workers = make(map[int]*worker)
	p.idle.clear()
	p.acquiredSet = make(map[int]*worker)

	for _, r := range p.acquireWaiters {
		r <- acquireReply{err: ErrPoolClosed}
	}
	p.acquireWaiters = nil
	for _, r := range p.availableWaiters {
		r <- ErrPoolClosed
	}
	p.availableWaiters = nil

	p.metrics.Workers.Set(0)
	p.metrics.IdleWorkers.Set(0)
	p.metrics.RunningTasks.Set(0)
	p.metrics.QueuedTasks.Set(0)

	e.reply <- nil
}

// handleWorkerFrame dispatches a RESULT or EVENT frame to its bound
// task. Any other frame type, including a malformed line the transport
// could not parse, is the fatal "unrecognized message" case.
func (p *Pool) handleWorkerFrame(w *worker, f Frame) {
	switch f.Type {
	case frameResult:
		p.handleWorkerResult(w, f)
	case frameEvent:
		p.handleWorkerEvent(w, f)
	default:
		p.logger.Error("worker sent unrecognized frame type, terminating",
			zap.Int("worker", w.id), zap.String("type", f.Type))
		p.exit(1)
	}
}

func (p *Pool) handleWorkerResult(w *worker, f Frame) {
	var rp resultPayload
	if err := json.Unmarshal(f.Payload, &rp); err != nil {
		p.logger.Error("worker sent malformed RESULT frame, terminating",
			zap.Int("worker", w.id), zap.Error(err))
		p.exit(1)
		return
	}

	id := w.runningTask
	qt, ok := p.runningTasks[id]
	if ok {
		delete(p.runningTasks, id)
		delete(p.workerByTask, id)
	}
	w.runningTask = uuid.Nil
	acquired := w.state == workerAcquired

	if ok {
		p.resolveTask(qt, resultOf(rp))
	}
	p.metrics.RunningTasks.Set(float64(len(p.runningTasks)))

	if !acquired {
		p.becameIdle(w)
	}
}

func (p *Pool) handleWorkerEvent(w *worker, f Frame) {
	var ep eventPayload
	if err := json.Unmarshal(f.Payload, &ep); err != nil {
		p.logger.Error("worker sent malformed EVENT frame, terminating",
			zap.Int("worker", w.id), zap.Error(err))
		p.exit(1)
		return
	}

	id := w.runningTask
	if id == uuid.Nil {
		return
	}
	if st, ok := p.registry.get(id); !ok || st.aborted {
		return
	}
	if qt, ok := p.runningTasks[id]; ok && qt.task.OnEvent != nil {
		p.safeOnEvent(qt, ep.Event, ep.Data)
	}
}

func (p *Pool) handleWorkerReady(w *worker) {
	if w.readyHandled {
		return
	}
	w.readyHandled = true
	switch w.kind {
	case spawnReplacement:
		p.replacing--
	case spawnGrowth:
		p.pendingGrow--
	}

	p.workers[w.id] = w
	p.metrics.Workers.Set(float64(len(p.workers)))
	p.becameIdle(w)
}

// handleWorkerExited is the WorkerLifecycle error handler: whatever the
// worker was doing terminates with ErrWorkerCrash, the worker is
// scrubbed from every index, and (unless the pool is closed or this
// was an intentional auto-shrink kill, signaled by state already being
// workerDead) a replacement is started.
func (p *Pool) handleWorkerExited(w *worker, procErr error) {
	if w.state == workerDead {
		return
	}

	delete(p.workers, w.id)
	delete(p.acquiredSet, w.id)
	p.idle.remove(w)
	w.state = workerDead

	if id := w.runningTask; id != uuid.Nil {
		qt, ok := p.runningTasks[id]
		delete(p.runningTasks, id)
		delete(p.workerByTask, id)
		w.runningTask = uuid.Nil
		if ok {
			p.metrics.Crashes.Inc()
			cause := procErr
			if cause == nil {
				cause = fmt.Errorf("worker process exited")
			}
			p.failTask(qt, wrapErr(ErrWorkerCrash, cause))
		}
	}

	if !w.readyHandled {
		w.readyHandled = true
		switch w.kind {
		case spawnReplacement:
			p.replacing--
		case spawnGrowth:
			p.pendingGrow--
		}
	}

	p.metrics.Workers.Set(float64(len(p.workers)))
	p.metrics.IdleWorkers.Set(float64(p.idle.len()))
	p.metrics.RunningTasks.Set(float64(len(p.runningTasks)))

	if p.closed {
		return
	}
	p.replaceWorker()
}

// shrinkLoop ticks handleShrinkTick on cfg.shrinkInterval until Close.
func (p *Pool) shrinkLoop() {
	ticker := time.NewTicker(p.cfg.shrinkInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case p.events <- shrinkTickEvent{}:
			case <-p.shrinkStop:
				return
			}
		case <-p.shrinkStop:
			return
		}
	}
}

// handleShrinkTick implements auto-shrink: with no crash replacement in
// flight, an empty queue, more than min live workers, and more than one
// idle worker, kill one idle worker. Marking it dead before kill() lets
// the inevitable workerExitedEvent it produces no-op harmlessly instead
// of triggering a spurious replacement.
func (p *Pool) handleShrinkTick() {
	if p.closed || p.replacing > 0 {
		return
	}
	if p.queue.len() != 0 {
		return
	}
	if len(p.workers) <= p.min {
		return
	}
	if p.idle.len() <= 1 {
		return
	}

	w, ok := p.idle.pop()
	if !ok {
		return
	}
	delete(p.workers, w.id)
	w.state = workerDead
	w.transport.kill()

	p.metrics.ScaleDowns.Inc()
	p.metrics.Workers.Set(float64(len(p.workers)))
	p.metrics.IdleWorkers.Set(float64(p.idle.len()))
}
