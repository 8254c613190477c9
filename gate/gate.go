// Package gate serialises document mutations through a single worker.
//
// Jobs run one at a time in submission order. A queued job can be cancelled,
// either through its Ticket or by cancelling the context it was submitted
// with; once a job starts it runs to completion on a context that ignores
// the caller's cancellation.
package gate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/wudi/regionedit/observability"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("gate closed")
	// ErrCancelled is the result of a ticket cancelled before it ran.
	ErrCancelled = errors.New("mutation cancelled")
)

// State is the gate's activity.
type State int

const (
	Idle State = iota
	Mutating
)

func (s State) String() string {
	if s == Mutating {
		return "mutating"
	}
	return "idle"
}

// Job is one mutation.
type Job func(ctx context.Context) error

// Options configure a Gate.
type Options struct {
	Logger observability.Logger
}

// Gate is a FIFO queue in front of one worker goroutine.
type Gate struct {
	log observability.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Ticket
	state   State
	closed  bool
	nextID  uint64
	stopped chan struct{}
}

// New starts a gate.
func New(opts Options) *Gate {
	g := &Gate{
		log:     observability.OrNop(opts.Logger),
		stopped: make(chan struct{}),
	}
	g.cond = sync.NewCond(&g.mu)
	go g.worker()
	return g
}

type ticketState int

const (
	queued ticketState = iota
	running
	finished
)

// Ticket tracks one submitted job.
type Ticket struct {
	id    uint64
	ctx   context.Context
	job   Job
	gate  *Gate
	state ticketState
	done  chan struct{}
	err   error
}

// ID is the submission sequence number, starting at 1.
func (t *Ticket) ID() uint64 { return t.id }

// Submit queues job. ctx governs only the time spent queued.
func (g *Gate) Submit(ctx context.Context, job Job) (*Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	g.nextID++
	t := &Ticket{id: g.nextID, ctx: ctx, job: job, gate: g, done: make(chan struct{})}
	g.queue = append(g.queue, t)
	g.log.Debug("mutation queued",
		observability.Int64("ticket", int64(t.id)),
		observability.Int(observability.MetricQueueDepth, len(g.queue)))
	g.cond.Signal()
	return t, nil
}

// Do submits job and waits for its result.
func (g *Gate) Do(ctx context.Context, job Job) error {
	t, err := g.Submit(ctx, job)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

// Wait blocks until the job has finished or ctx is done. A job still queued
// when ctx is done is cancelled; a running one completes regardless and its
// result is lost to this caller.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		if t.Cancel() {
			return ctx.Err()
		}
		select {
		case <-t.done:
			return t.err
		default:
			return ctx.Err()
		}
	}
}

// Done is closed when the ticket has a result.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err returns the result once Done is closed.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Cancel removes the ticket from the queue. It reports false when the job
// has already started or finished.
func (t *Ticket) Cancel() bool {
	g := t.gate
	g.mu.Lock()
	if t.state != queued {
		g.mu.Unlock()
		return false
	}
	for i, q := range g.queue {
		if q == t {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			break
		}
	}
	t.state = finished
	g.mu.Unlock()
	g.log.Debug("mutation cancelled", observability.Int64("ticket", int64(t.id)))
	t.finish(ErrCancelled)
	return true
}

func (t *Ticket) finish(err error) {
	t.err = err
	close(t.done)
}

// State reports whether a job is running.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pending returns the number of queued jobs, excluding a running one.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Close stops accepting jobs, runs those already queued and waits for the
// worker to exit, or for ctx.
func (g *Gate) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.cond.Broadcast()
	g.mu.Unlock()

	select {
	case <-g.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) worker() {
	defer close(g.stopped)
	for {
		g.mu.Lock()
		for len(g.queue) == 0 && !g.closed {
			g.cond.Wait()
		}
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		t := g.queue[0]
		g.queue = g.queue[1:]
		if err := t.ctx.Err(); err != nil {
			t.state = finished
			g.mu.Unlock()
			t.finish(fmt.Errorf("%w: %w", ErrCancelled, err))
			continue
		}
		t.state = running
		g.state = Mutating
		g.mu.Unlock()

		err := g.run(t)

		g.mu.Lock()
		t.state = finished
		g.state = Idle
		g.mu.Unlock()
		t.finish(err)
	}
}

// run executes one job, turning a panic into an error.
func (g *Gate) run(t *Ticket) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("mutation panicked",
				observability.Int64("ticket", int64(t.id)),
				observability.String("panic", fmt.Sprint(r)),
				observability.String("stack", string(debug.Stack())))
			err = fmt.Errorf("mutation panicked: %v", r)
		}
	}()
	return t.job(context.WithoutCancel(t.ctx))
}
