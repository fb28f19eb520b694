//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package focuser

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	enterrors "github.com/tomal07/bazel/entities/errors"
)

const defaultKeepAlive = 2 * time.Minute

// visitorPool runs graph traversal tasks with bounded parallelism. Tasks
// may enqueue further tasks; the queue is unbounded so deep recursion
// never touches the call stack. The first task error fails the whole
// run: queued tasks are dropped, running ones finish, and the error
// surfaces from AwaitQuiescence. Idle workers exit after the keep-alive
// and are respawned on demand.
type visitorPool struct {
	logger logrus.FieldLogger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	cond *sync.Cond

	queue        []func() error
	pending      int // queued + running
	workers      int
	idle         int
	maxWorkers   int
	keepAlive    time.Duration
	shuttingDown bool
	firstErr     error
}

func newVisitorPool(ctx context.Context, parallelism int, keepAlive time.Duration, logger logrus.FieldLogger) *visitorPool {
	if parallelism < 1 {
		parallelism = 1
	}
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &visitorPool{
		logger:     logger.WithField("action", "visitor_pool"),
		ctx:        poolCtx,
		cancel:     cancel,
		maxWorkers: parallelism,
		keepAlive:  keepAlive,
	}
	p.cond = sync.NewCond(&p.mu)

	context.AfterFunc(poolCtx, func() {
		p.mu.Lock()
		p.drainLocked()
		p.cond.Broadcast()
		p.mu.Unlock()
	})

	return p
}

// Execute enqueues a task. Tasks enqueued after a failure, cancellation
// or shutdown are dropped.
func (p *visitorPool) Execute(fn func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown || p.firstErr != nil || p.ctx.Err() != nil {
		return
	}

	p.pending++
	p.queue = append(p.queue, fn)

	if len(p.queue) > p.idle && p.workers < p.maxWorkers {
		p.workers++
		enterrors.GoWrapper(p.worker, p.logger)
	}
	// Broadcast, not Signal: the condition is shared with quiescence
	// waiters, and waking one of those instead of an idle worker would
	// stall the task until the next timed wakeup.
	p.cond.Broadcast()
}

func (p *visitorPool) worker() {
	for {
		fn, ok := p.next()
		if !ok {
			return
		}

		err := p.runTask(fn)

		p.mu.Lock()
		failed := false
		if err != nil && p.firstErr == nil {
			p.firstErr = err
			p.drainLocked()
			failed = true
		}
		p.pending--
		if p.pending == 0 {
			p.cond.Broadcast()
		}
		p.mu.Unlock()

		if failed {
			// fail fast: running tasks observe the cancellation
			p.cancel()
		}
	}
}

// next pops a task, blocking until one arrives, the keep-alive elapses
// or the pool shuts down. Order between tasks is unspecified.
func (p *visitorPool) next() (func() error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(p.keepAlive)
	for {
		if n := len(p.queue); n > 0 {
			fn := p.queue[n-1]
			p.queue[n-1] = nil
			p.queue = p.queue[:n-1]
			return fn, true
		}

		if p.shuttingDown || time.Now().After(deadline) {
			p.workers--
			if p.workers == 0 {
				p.cond.Broadcast()
			}
			return nil, false
		}

		p.idle++
		p.timedWaitLocked(p.keepAlive)
		p.idle--
	}
}

// timedWaitLocked waits on the condition with an upper bound, so an idle
// worker can observe its keep-alive expiring.
func (p *visitorPool) timedWaitLocked(d time.Duration) {
	t := time.AfterFunc(d, p.cond.Broadcast)
	p.cond.Wait()
	t.Stop()
}

func (p *visitorPool) runTask(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Recovered from panic: %v", r)
			debug.PrintStack()
			err = errors.Errorf("panic occurred: %v", r)
		}
	}()

	if cerr := p.ctx.Err(); cerr != nil {
		return cerr
	}
	return fn()
}

// drainLocked drops all queued tasks. Running tasks are unaffected.
func (p *visitorPool) drainLocked() {
	p.pending -= len(p.queue)
	p.queue = nil
	if p.pending == 0 {
		p.cond.Broadcast()
	}
}

// AwaitQuiescence blocks until the queue is empty and all running tasks
// have finished, then reports the first failure, if any. The pool stays
// alive and accepts further tasks.
func (p *visitorPool) AwaitQuiescence() error {
	p.mu.Lock()
	for p.pending > 0 {
		p.cond.Wait()
	}
	err := p.firstErr
	p.mu.Unlock()

	if err != nil {
		return err
	}
	return p.ctx.Err()
}

// Shutdown stops accepting tasks and waits for all workers to exit.
func (p *visitorPool) Shutdown() {
	p.mu.Lock()
	p.shuttingDown = true
	p.cond.Broadcast()
	for p.workers > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()

	p.cancel()
}
