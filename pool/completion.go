package pool

import (
	"context"
	"encoding/json"
	"sync"
)

// Outcome is what a Completion eventually settles with: either Data is
// set and Err is nil, or Err is set and Data is nil.
type Outcome struct {
	Data json.RawMessage
	Err  error
}

// Completion is a single-shot future returned by Submit. It resolves or
// rejects exactly once; later calls to settle are no-ops, a safety net
// under the control goroutine's own registry and aborted checks when an
// in-flight abort races a late worker result.
type Completion struct {
	done chan struct{}
	once sync.Once
	out  Outcome
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// settle resolves the completion if it has not already settled.
// Reports whether this call was the one that settled it.
func (c *Completion) settle(out Outcome) bool {
	settled := false
	c.once.Do(func() {
		c.out = out
		close(c.done)
		settled = true
	})
	return settled
}

// Settled reports whether the completion has already resolved or
// rejected, without blocking.
func (c *Completion) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the completion settles or ctx is done, whichever
// comes first. A context cancellation does not settle the completion
// itself — the task may still resolve later; Wait simply stops waiting.
func (c *Completion) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.out.Data, c.out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
