package pool

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestPool builds a pool the same way New does, but dialing
// fakeTransports instead of real subprocesses, and waits for the
// initial workers to report ready before returning — mirroring the
// synchronous-spawn/async-ready split New documents.
func newTestPool(t *testing.T, cfg Config) (*Pool, *fakeDialer) {
	t.Helper()

	min, max, err := cfg.normalize()
	require.NoError(t, err)

	dialer := newFakePoolDialer()
	p := newPoolCore(cfg, min, max, zap.NewNop(), dialer.dial)

	for i := 0; i < min; i++ {
		w, err := p.spawnWorker(spawnInitial)
		require.NoError(t, err)
		p.workers[w.id] = w
	}

	go p.run()
	go p.shrinkLoop()

	t.Cleanup(func() { _ = p.Close() })

	require.Eventually(t, func() bool {
		return p.Stats().IdleWorkers == min
	}, time.Second, time.Millisecond, "initial workers never became ready")

	return p, dialer
}

// autoWorker installs a handler on ft that answers business-level TASK
// frames the way the real isopool-worker binary would, so scenario
// tests don't each hand-roll the same ping/add/crash responses.
func autoWorker(ft *fakeTransport) {
	ft.mu.Lock()
	ft.onSend = func(f Frame) {
		switch f.Type {
		case frameTask:
			var tp taskPayload
			if err := json.Unmarshal(f.Payload, &tp); err != nil {
				return
			}
			switch tp.Type {
			case "ping":
				ft.pushResult(resultPayload{})
			case "add":
				var args struct{ A, B float64 }
				if err := json.Unmarshal(tp.Data, &args); err != nil {
					ft.pushResult(resultPayload{Error: err.Error()})
					return
				}
				data, _ := json.Marshal(args.A + args.B)
				ft.pushResult(resultPayload{Data: data})
			case "crash":
				go func() {
					time.Sleep(5 * time.Millisecond)
					ft.crash(errors.New("worker process exited: boom"))
				}()
			case "slow", "abort":
				// Deliberately never auto-resolved; the test driving
				// that scenario settles it explicitly.
			default:
				ft.pushResult(resultPayload{Error: "unknown task type"})
			}
		case frameAbort:
			ft.pushResult(resultPayload{Error: "aborted"})
		}
	}
	ft.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond, msg)
}
