// Package pool provides a small fixed-size compute pool with future-based
// completion, FIFO dispatch, and per-worker memoization. Workers operate
// only on their task inputs and never share mutable state.
package pool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultMemoCapacity bounds each worker's memoization cache.
const DefaultMemoCapacity = 1000

// ErrPoolClosed is returned for tasks submitted after Close.
var ErrPoolClosed = errors.New("compute pool closed")

// Task is one unit of compute work. Key identifies the full parameter tuple
// for memoization; tasks with equal keys must produce equal results.
type Task interface {
	Key() string
	Run() (any, error)
}

// Future resolves once its task has completed on some worker.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the task completes and returns its result.
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.val, f.err
}

// Done reports completion without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future) resolve(val any, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

type job struct {
	task   Task
	future *Future
}

// Pool is a bounded set of parallel compute workers.
type Pool struct {
	jobs chan job
	size int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DefaultSize is the worker count used when none is configured: available
// parallelism capped at 4.
func DefaultSize() int {
	n := runtime.GOMAXPROCS(0)
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New starts a pool with the given number of workers. size <= 0 selects
// DefaultSize. memoCapacity <= 0 selects DefaultMemoCapacity.
func New(size, memoCapacity int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	if memoCapacity <= 0 {
		memoCapacity = DefaultMemoCapacity
	}
	p := &Pool{
		jobs: make(chan job, size*8),
		size: size,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i, memoCapacity)
	}
	log.Debug().Int("workers", size).Int("memoCapacity", memoCapacity).Msg("Compute pool started")
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit enqueues a task; it dispatches FIFO as workers free up.
func (p *Pool) Submit(t Task) *Future {
	f := &Future{done: make(chan struct{})}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.resolve(nil, ErrPoolClosed)
		return f
	}
	p.jobs <- job{task: t, future: f}
	p.mu.Unlock()
	return f
}

// SubmitAll fans out a batch. The returned futures match the input order by
// index; completion order across workers is not guaranteed.
func (p *Pool) SubmitAll(tasks []Task) []*Future {
	futures := make([]*Future, len(tasks))
	for i, t := range tasks {
		futures[i] = p.Submit(t)
	}
	return futures
}

// Close stops accepting work and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(id, memoCapacity int) {
	defer p.wg.Done()
	memo := newMemoCache(memoCapacity)
	for j := range p.jobs {
		if val, ok := memo.get(j.task.Key()); ok {
			j.future.resolve(val, nil)
			continue
		}
		val, err := runTask(j.task)
		if err == nil {
			memo.put(j.task.Key(), val)
		} else {
			log.Warn().Err(err).Int("worker", id).Str("key", j.task.Key()).Msg("Compute task failed")
		}
		j.future.resolve(val, err)
	}
}

// runTask executes one task, converting a panic into that task's error.
// A fault rejects only the in-flight task; the worker keeps serving.
func runTask(t Task) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = fmt.Errorf("compute task panicked: %v", r)
		}
	}()
	return t.Run()
}

// Chunks splits n items into at most workers contiguous [start,end) ranges
// of near-equal size, for fan-out batch submission.
func Chunks(n, workers int) [][2]int {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	size := (n + workers - 1) / workers
	var ranges [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}
