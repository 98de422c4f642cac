// Package pool implements a bounded, dependency-aware task executor that
// runs independently of the provenance kernel in package rms. Callers
// submit arbitrary functions with a list of dependency task ids; a task
// becomes eligible for dispatch only once every dependency has reached a
// terminal state. Unlike the kernel's Engine, the pool records no
// lineage and persists nothing -- it exists purely to bound concurrency
// for callers who want to fan work out across goroutines.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rmscore.evalgo.org/common"
)

// TaskFunc is the runtime shape of work the pool schedules. It mirrors
// model.PipeFunc's signature so a pipe body can be submitted to the pool
// directly without an adapter.
type TaskFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// State is a task's terminal or in-flight status. It replaces the
// original scheduler's PICKLING_ERROR heuristic -- a classification
// derived from a worker process exiting cleanly with an empty result
// queue -- with an explicit value the worker itself sets before
// returning, since goroutines share memory with the scheduler and never
// cross a serialization boundary in the first place.
type State int

const (
	Pending State = iota
	Running
	Complete
	Error
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Error:
		return "error"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one submitted task.
type Result struct {
	TID   int
	State State
	Value any
	Err   error
	Begin time.Time
	End   time.Time
}

type job struct {
	tid    int
	fn     TaskFunc
	args   []any
	kwargs map[string]any
	deps   []int
	cancel context.CancelFunc
}

// Pool is a bounded-concurrency task executor. A single mutex plus
// condition variable guards all three task sets (pending, running,
// finished) -- the source this is adapted from splits those into three
// paired mutex/condvar pairs with a fixed lock-acquisition order to
// avoid deadlock; a goroutine scheduler has no cross-process boundary to
// protect, so one lock for all three sets is sufficient and simpler.
type Pool struct {
	log *logrus.Entry

	mu      sync.Mutex
	cond    *sync.Cond
	workers int
	closing bool

	nextTID  int
	pending  map[int]*job
	running  map[int]*job
	finished map[int]Result

	wg sync.WaitGroup
}

// New constructs a Pool with the given worker concurrency. useThread is
// accepted for parity with the source's process/thread construction
// toggle but has no effect: every task body here runs as an in-process
// goroutine, so there is no process-isolation mode to offer.
func New(workers int, useThread bool) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		log:      common.Logger.WithField("component", "pool"),
		workers:  workers,
		pending:  make(map[int]*job),
		running:  make(map[int]*job),
		finished: make(map[int]Result),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(1)
	go p.scheduleLoop()
	return p
}

// Submit enqueues fn with the given dependency task ids, args, and
// kwargs, returning a monotonically increasing local task id. The task
// becomes eligible once every id in deps has reached Complete, Error, or
// Canceled.
func (p *Pool) Submit(fn TaskFunc, deps []int, args []any, kwargs map[string]any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return 0, errClosing
	}
	p.nextTID++
	tid := p.nextTID
	p.pending[tid] = &job{tid: tid, fn: fn, args: args, kwargs: kwargs, deps: append([]int{}, deps...)}
	p.cond.Broadcast()
	return tid, nil
}

// Get collects finished results. If wait is true it blocks until no
// task is pending or running, then returns every result recorded so
// far; otherwise it returns immediately with whatever has finished.
func (p *Pool) Get(wait bool) map[int]Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	for wait && (len(p.pending) > 0 || len(p.running) > 0) {
		p.cond.Wait()
	}
	out := make(map[int]Result, len(p.finished))
	for tid, r := range p.finished {
		out[tid] = r
	}
	return out
}

// Cancel removes the given task ids from the pending set. It has no
// effect on tasks already running or finished.
func (p *Pool) Cancel(tids []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	for _, tid := range tids {
		if j, ok := p.pending[tid]; ok {
			delete(p.pending, tid)
			p.finished[j.tid] = Result{TID: j.tid, State: Canceled, Begin: now, End: now}
		}
	}
	p.cond.Broadcast()
}

// Kill hard-cancels the context of any of the given task ids that are
// currently running. The source's process-mode workers are killed at
// the OS level; a goroutine has no such handle, so cancellation here
// relies on the submitted TaskFunc observing ctx.Done(). Thread-mode
// tasks in the source are documented as not cancellable -- every task
// here is cancellable, provided it checks its context.
func (p *Pool) Kill(tids []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tid := range tids {
		if j, ok := p.running[tid]; ok && j.cancel != nil {
			j.cancel()
		}
	}
}

// Close flips the pool into a closing state (further Submit calls fail)
// and blocks until all pending and running work has drained, returning
// the final result set.
func (p *Pool) Close() map[int]Result {
	p.mu.Lock()
	p.closing = true
	p.cond.Broadcast()
	p.mu.Unlock()
	res := p.Get(true)
	p.wg.Wait()
	return res
}

// scheduleLoop is the pool's single scheduler goroutine. It dispatches
// up to the idle-slot count of eligible pending tasks whenever the
// running count is below the worker limit, then sleeps on the condition
// variable until Submit, a task completion, Cancel, or Close wakes it.
func (p *Pool) scheduleLoop() {
	defer p.wg.Done()
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		for len(p.running) < p.workers {
			j := p.nextEligibleLocked()
			if j == nil {
				break
			}
			delete(p.pending, j.tid)
			p.running[j.tid] = j
			p.wg.Add(1)
			go p.runJob(j)
		}
		if p.closing && len(p.pending) == 0 && len(p.running) == 0 {
			return
		}
		p.cond.Wait()
	}
}

// nextEligibleLocked returns the earliest-submitted (lowest tid) pending
// job whose dependencies have all reached a terminal state, or nil if
// none qualifies. Callers must hold p.mu.
func (p *Pool) nextEligibleLocked() *job {
	var best *job
	for _, j := range p.pending {
		if (best == nil || j.tid < best.tid) && p.depsSatisfiedLocked(j.deps) {
			best = j
		}
	}
	return best
}

func (p *Pool) depsSatisfiedLocked(deps []int) bool {
	for _, d := range deps {
		if _, ok := p.finished[d]; !ok {
			return false
		}
	}
	return true
}

// runJob executes one job's TaskFunc outside the pool lock, records its
// Result, and wakes the scheduler.
func (p *Pool) runJob(j *job) {
	defer p.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	j.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	begin := time.Now().UTC()
	p.log.WithField("tid", j.tid).Debug("pool: task started")
	value, err := j.fn(ctx, j.args, j.kwargs)
	end := time.Now().UTC()

	state := Complete
	if err != nil {
		state = Error
		p.log.WithField("tid", j.tid).WithError(err).Warn("pool: task failed")
	}

	p.mu.Lock()
	delete(p.running, j.tid)
	p.finished[j.tid] = Result{TID: j.tid, State: state, Value: value, Err: err, Begin: begin, End: end}
	p.cond.Broadcast()
	p.mu.Unlock()
}
