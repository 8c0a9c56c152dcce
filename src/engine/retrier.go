package engine

import (
	"context"
	"sync"
)

// Retrier runs deferred retry work for the dispatcher. Scheduling is
// fire-and-forget: the batch that produced the transient failure settles
// without waiting, and the scheduled unit finishes (or is cancelled) on its
// own. Close cancels every pending unit and waits for them to drain.
type Retrier struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRetrier() *Retrier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Retrier{ctx: ctx, cancel: cancel}
}

// Schedule starts the task in the background under the retrier's context.
func (r *Retrier) Schedule(task func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		task(r.ctx)
	}()
}

// Wait blocks until every scheduled task has finished.
func (r *Retrier) Wait() { r.wg.Wait() }

// Close cancels pending tasks and waits for them to drain. A task cancelled
// mid-backoff releases its ledger claim, so nothing stays stranded.
func (r *Retrier) Close() {
	r.cancel()
	r.wg.Wait()
}
