package pool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalAdd(a, b float64) json.RawMessage {
	data, _ := json.Marshal(struct{ A, B float64 }{A: a, B: b})
	return data
}

// TestAddInFIFOPool is scenario A: pool size 1, a ping followed by three
// adds, all four completions resolve and the add results are [9,18,27].
func TestAddInFIFOPool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 1})
	autoWorker(transports.at(0))

	ping, err := p.Submit(ctx, Task{Type: "ping"})
	require.NoError(t, err)
	_, err = ping.Wait(ctx)
	require.NoError(t, err)

	pairs := [][2]float64{{2, 7}, {10, 8}, {18, 9}}
	results := make([]float64, 0, 3)
	for _, pair := range pairs {
		c, err := p.Submit(ctx, Task{Type: "add", Data: marshalAdd(pair[0], pair[1])})
		require.NoError(t, err)
		data, err := c.Wait(ctx)
		require.NoError(t, err)
		var sum float64
		require.NoError(t, json.Unmarshal(data, &sum))
		results = append(results, sum)
	}

	assert.ElementsMatch(t, []float64{9, 18, 27}, results)
}

// TestPriorityOrdering is scenario B: with a priority queue and one
// worker, three queued adds with priorities 2,3,1 must be dispatched in
// priority order 1,2,3.
func TestPriorityOrdering(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 1, UsePriorityTaskQueue: true})
	ft := transports.at(0)
	autoWorker(ft)

	occupy, err := p.Submit(ctx, Task{Type: "slow"})
	require.NoError(t, err)
	waitFor(t, func() bool { return p.Stats().RunningTasks == 1 }, "occupying task never dispatched")

	order := make(chan int, 3)
	priorities := []int{2, 3, 1}
	completions := make([]*Completion, len(priorities))
	for i, prio := range priorities {
		prio := prio
		c, err := p.Submit(ctx, Task{
			Type:     "add",
			Data:     marshalAdd(float64(prio), 0),
			Priority: prio,
			OnEvent: func(event string, _ json.RawMessage) {
				if event == "sent to worker" {
					order <- prio
				}
			},
		})
		require.NoError(t, err)
		completions[i] = c
	}
	waitFor(t, func() bool { return p.Stats().QueuedTasks == 3 }, "adds never queued behind the occupying task")

	ft.pushResult(resultPayload{})
	_, err = occupy.Wait(ctx)
	require.NoError(t, err)

	for _, c := range completions {
		_, err := c.Wait(ctx)
		require.NoError(t, err)
	}

	close(order)
	var got []int
	for v := range order {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

// TestAbortRunningTask is scenario C: aborting an in-flight task settles
// its completion with ErrAborted.
func TestAbortRunningTask(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 1})
	autoWorker(transports.at(0))

	sig := NewAbortSignal()
	c, err := p.Submit(ctx, Task{Type: "abort", AbortSignal: sig})
	require.NoError(t, err)
	waitFor(t, func() bool { return p.Stats().RunningTasks == 1 }, "abort task never dispatched")

	time.Sleep(10 * time.Millisecond)
	sig.Abort()

	_, err = c.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
}

// TestCrashReplacement is scenario D: a crashed worker's task fails with
// ErrWorkerCrash, a replacement worker comes up within the deadline, and
// a subsequent task resolves normally on the new worker.
func TestCrashReplacement(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 1})
	autoWorker(transports.at(0))

	c, err := p.Submit(ctx, Task{Type: "crash"})
	require.NoError(t, err)

	_, err = c.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkerCrash))

	deadline := time.After(100 * time.Millisecond)
	var ready bool
	for !ready {
		select {
		case <-deadline:
			t.Fatal("replacement worker did not come up within 100ms")
		case <-time.After(time.Millisecond):
			ready = p.Stats().AvailableWorkers == 1
		}
	}

	require.Equal(t, 2, transports.len())
	autoWorker(transports.at(1))

	c2, err := p.Submit(ctx, Task{Type: "add", Data: marshalAdd(7, 2)})
	require.NoError(t, err)
	data, err := c2.Wait(ctx)
	require.NoError(t, err)
	var sum float64
	require.NoError(t, json.Unmarshal(data, &sum))
	assert.Equal(t, float64(9), sum)
}

// TestWaitForAvailableResourceOrdering is scenario E: two waiters
// resolve strictly in FIFO order, each only once a qualifying idle
// moment actually occurs, never cascading off one another. Everything
// runs on the test goroutine itself, driven by manually-pushed RESULTs,
// so the recorded sequence never depends on scheduling between
// goroutines.
func TestWaitForAvailableResourceOrdering(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 1})
	ft := transports.at(0)

	var sequence []string
	resolveNext := func() {
		waitFor(t, func() bool { return p.Stats().RunningTasks == 1 }, "no task in flight to resolve")
		ft.pushResult(resultPayload{})
	}
	await := func(c *Completion, name string) {
		_, err := c.Wait(ctx)
		require.NoError(t, err)
		sequence = append(sequence, name)
	}
	submitPing := func() *Completion {
		c, err := p.Submit(ctx, Task{Type: "ping"})
		require.NoError(t, err)
		return c
	}

	c1 := submitPing() // dispatches to the sole idle worker
	c2 := submitPing() // queues behind it

	// Registered directly (bypassing the WaitForAvailableResource
	// wrapper): both see idle=0 and queue, in order, as waiters.
	reply1 := make(chan error, 1)
	p.events <- waitAvailableEvent{ctx: ctx, reply: reply1}
	reply2 := make(chan error, 1)
	p.events <- waitAvailableEvent{ctx: ctx, reply: reply2}

	resolveNext() // task1 finishes; task2 (already queued) is dispatched
	await(c1, "task1")

	resolveNext() // task2 finishes; queue empty now, resolves W1 (not W2)
	await(c2, "task2")
	require.NoError(t, <-reply1)
	sequence = append(sequence, "W1")

	c3 := submitPing() // dispatches into the worker W1's resolution freed
	c4 := submitPing() // queues behind it

	resolveNext() // task3 finishes; task4 (already queued) is dispatched
	await(c3, "task3")

	resolveNext() // task4 finishes; queue empty now, resolves W2
	await(c4, "task4")
	require.NoError(t, <-reply2)
	sequence = append(sequence, "W2")

	c5 := submitPing()
	c6 := submitPing()

	resolveNext()
	await(c5, "task5")

	resolveNext()
	await(c6, "task6")

	assert.Equal(t, []string{"task1", "task2", "W1", "task3", "task4", "W2", "task5", "task6"}, sequence)
}

// TestAutoscaleBounds is scenario F: three simultaneous slow tasks push
// availableWorkers to maxPoolSize, then auto-shrink decays it back
// toward minPoolSize once the tasks finish and the queue is idle.
func TestAutoscaleBounds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := Config{MinPoolSize: 1, MaxPoolSize: 3, AutoShrinkInterval: 20 * time.Millisecond}
	p, transports := newTestPool(t, cfg)
	autoWorker(transports.at(0))

	completions := make([]*Completion, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := p.Submit(ctx, Task{Type: "slow"})
		require.NoError(t, err)
		completions = append(completions, c)
	}

	waitFor(t, func() bool { return p.Stats().AvailableWorkers == 3 }, "pool never grew to maxPoolSize")
	waitFor(t, func() bool { return transports.len() == 3 }, "auto-grow never dialed two more workers")

	for _, ft := range transports.all() {
		ft.pushResult(resultPayload{})
	}
	for _, c := range completions {
		_, err := c.Wait(ctx)
		require.NoError(t, err)
	}

	waitFor(t, func() bool { return p.Stats().AvailableWorkers == 1 }, "pool never shrank back to minPoolSize")
}

// TestStatsAvailableVsIdle exercises the distinction called out in
// events.go: availableWorkers counts the whole live workforce, while
// idleWorkers counts only those sitting in the idle ring right now.
func TestStatsAvailableVsIdle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 2})
	autoWorker(transports.at(0))
	// autoWorker never resolves a "slow" task, so whichever worker takes
	// it stays in the "running" state.

	_, err := p.Submit(ctx, Task{Type: "slow"})
	require.NoError(t, err)
	waitFor(t, func() bool { return p.Stats().RunningTasks == 1 }, "slow task never dispatched")

	stats := p.Stats()
	assert.Equal(t, 2, stats.AvailableWorkers)
	assert.Equal(t, 1, stats.IdleWorkers)
}

// TestCloseTerminatesOutstandingTasks is the "close termination" law:
// every completion outstanding at Close time settles with PoolClosed.
func TestCloseTerminatesOutstandingTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 1})
	// No auto-responder: the task never resolves on its own, so Close
	// is the only thing that can settle it.
	_ = transports

	c, err := p.Submit(ctx, Task{Type: "slow"})
	require.NoError(t, err)
	waitFor(t, func() bool { return p.Stats().RunningTasks == 1 }, "task never dispatched")

	require.NoError(t, p.Close())

	_, err = c.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoolClosed))

	_, err = p.Submit(ctx, Task{Type: "ping"})
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

// TestEachTaskResolvesExactlyOnce is the exactly-once invariant: a late
// RESULT arriving for a task already aborted must not re-settle it (and
// must not panic the control goroutine).
func TestEachTaskResolvesExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, transports := newTestPool(t, Config{PoolSize: 1})
	ft := transports.at(0)

	sig := NewAbortSignal()
	c, err := p.Submit(ctx, Task{Type: "abort", AbortSignal: sig})
	require.NoError(t, err)
	waitFor(t, func() bool { return p.Stats().RunningTasks == 1 }, "task never dispatched")

	sig.Abort()
	data, err := c.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Nil(t, data)

	// A tardy RESULT from the worker must be discarded, not re-settle
	// the already-resolved completion.
	ft.pushResult(resultPayload{Error: "aborted"})
	time.Sleep(20 * time.Millisecond)

	data2, err2 := c.Wait(ctx)
	assert.Equal(t, err, err2)
	assert.Equal(t, data, data2)
}
