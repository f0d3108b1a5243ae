package pool

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type workerState int

const (
	workerStarting workerState = iota
	workerIdle
	workerRunning
	workerAcquired
	workerDead
)

func (s workerState) String() string {
	switch s {
	case workerStarting:
		return "starting"
	case workerIdle:
		return "idle"
	case workerRunning:
		return "running"
	case workerAcquired:
		return "acquired"
	case workerDead:
		return "dead"
	default:
		return "unknown"
	}
}

// spawnKind records why a worker was started, so the control goroutine
// knows which in-flight counter to clear when the worker either
// answers its health probe or dies before doing so.
type spawnKind int

const (
	spawnInitial spawnKind = iota
	spawnGrowth
	spawnReplacement
)

// worker is the core's handle on one isolated execution worker. All
// fields are owned by the control goroutine; the pump goroutine reading
// its transport never touches them, it only forwards frames as events.
type worker struct {
	id        int
	transport workerTransport
	state     workerState
	kind      spawnKind

	// readyHandled guards against double-counting a worker's first
	// health probe result — it must clear the grow/replacement barrier
	// exactly once, whether the worker comes up or dies trying.
	readyHandled bool

	// runningTask is the task currently bound to this worker, or the
	// zero UUID if none — mirrors the teacher's runningTaskByWorker map
	// entry, kept per-worker instead of in a separate map since every
	// access already has the worker in hand.
	runningTask uuid.UUID
}

// healthProbeTimeout bounds how long a freshly spawned worker has to
// answer a PING before it is considered unhealthy, generalizing the
// teacher's 6-second waitForReady budget (30 polls * 200ms) to a single
// round trip over the frame protocol rather than repeated HTTP polling.
const healthProbeTimeout = 6 * time.Second

// spawnWorker starts a new worker via p.dialWorker and launches its
// pump and health-probe goroutines. The worker starts in workerStarting
// state; the health-probe goroutine reports a workerReadyEvent once the
// probe succeeds, and the pump goroutine a workerExitedEvent if the
// process dies.
func (p *Pool) spawnWorker(kind spawnKind) (*worker, error) {
	t, err := p.dialWorker()
	if err != nil {
		return nil, err
	}

	p.nextWorkerID++
	w := &worker{id: p.nextWorkerID, transport: t, state: workerStarting, kind: kind}

	go p.pumpWorker(w)
	go p.healthProbe(w)

	return w, nil
}

// healthProbe sends PING and waits for the matching PONG, reporting the
// outcome back to the control goroutine as a workerReadyEvent. Runs
// outside the control goroutine since it suspends on I/O.
func (p *Pool) healthProbe(w *worker) {
	acked := p.registerPongWaiter(w)

	if err := w.transport.send(Frame{Type: framePing}); err != nil {
		// The pump goroutine will also observe the process exit and
		// report it as workerExitedEvent; nothing more to do here.
		return
	}

	timer := time.NewTimer(healthProbeTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		w.transport.kill()
	case <-w.transport.exited():
		// handled by pumpWorker
	case <-acked:
		p.events <- workerReadyEvent{w: w}
	}
}

// registerPongWaiter returns a channel that the pump goroutine closes
// once it recognizes the worker's PONG frame.
func (p *Pool) registerPongWaiter(w *worker) <-chan struct{} {
	ch := make(chan struct{})
	p.pendingPongMu.Lock()
	p.pendingPong[w.id] = ch
	p.pendingPongMu.Unlock()
	return ch
}

// pumpWorker is the worker's "message handler" and "error handler" from
// the outside: it never mutates core state directly, it only
// translates transport activity into events for the control goroutine,
// which applies the pool's actual handling logic.
func (p *Pool) pumpWorker(w *worker) {
	for {
		select {
		case f, ok := <-w.transport.frames():
			if !ok {
				return
			}
			if f.Type == framePong {
				p.pendingPongMu.Lock()
				ch := p.pendingPong[w.id]
				delete(p.pendingPong, w.id)
				p.pendingPongMu.Unlock()
				if ch != nil {
					close(ch)
				}
				continue
			}
			p.events <- workerFrameEvent{w: w, frame: f}
		case <-w.transport.exited():
			p.events <- workerExitedEvent{w: w, err: w.transport.exitErr()}
			return
		}
	}
}

// replaceWorker registers the replacement barrier, then asynchronously
// spawns a fresh worker; the spawned worker reports its own readiness
// or death back as control events so the barrier is only ever cleared
// from within the control goroutine.
func (p *Pool) replaceWorker() {
	p.replacing++
	go func() {
		_, err := p.spawnWorker(spawnReplacement)
		if err != nil {
			p.logger.Error("worker replacement failed to start", zap.Error(err))
			p.events <- replacementFailedEvent{}
		}
	}()
}

// maybeAutoGrow implements the auto-grow precondition set: not closed,
// no crash replacement in flight, demand present, room under max, and
// no currently idle worker. pendingGrow (not just len(workers)) guards
// the max so a burst of demand events within one growth round-trip
// cannot overshoot it — the same purpose the teacher's pendingAdds
// counter serves in its own addWorker.
func (p *Pool) maybeAutoGrow(demand bool) {
	if p.closed || p.replacing > 0 || !demand {
		return
	}
	if len(p.workers)+p.pendingGrow >= p.max {
		return
	}
	if p.idle.len() > 0 {
		return
	}
	p.pendingGrow++
	p.metrics.ScaleUps.Inc()
	go func() {
		_, err := p.spawnWorker(spawnGrowth)
		if err != nil {
			p.logger.Error("auto-grow failed to start worker", zap.Error(err))
			p.events <- growFailedEvent{}
		}
	}()
}

// replacementFailedEvent and growFailedEvent let the control goroutine
// clear their respective barriers even when spawnWorker itself errors
// before a worker object exists to report its own readiness.
type replacementFailedEvent struct{}
type growFailedEvent struct{}

func (replacementFailedEvent) isControlEvent() {}
func (growFailedEvent) isControlEvent()        {}
