// Package ingest turns candidate file paths into playlist tracks on
// background workers.
//
// A [Pool] accepts paths without blocking the caller, validates them on a
// fixed set of workers, and delivers the resulting tracks to the store
// through a single dispatcher goroutine. Workers never touch the store
// directly: the dispatcher alone calls the sink, preserving the store's
// single-writer discipline no matter how many workers validate in parallel.
//
// Rejected paths (unreadable, not audio) are logged and dropped; a batch
// submission continues independently per item.
package ingest

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audition/internal/models"
	"github.com/desertthunder/audition/internal/shared"
	"github.com/desertthunder/audition/internal/store"
)

// DefaultWorkers is the pool size used when the configured count is not positive.
const DefaultWorkers = 4

// Sink receives validated tracks. [store.Store] satisfies this interface.
type Sink interface {
	Insert(track *models.Track, pos store.Position) store.Handle
}

// ProbeFunc validates a path and builds a track from it. The default is
// [Probe]; tests substitute their own.
type ProbeFunc func(path string) (*models.Track, error)

type item struct {
	path string
	pos  store.Position
}

type delivery struct {
	track *models.Track
	pos   store.Position
}

// Pool is a bounded set of validation workers over an unbounded submission
// queue. Use [NewPool]; the zero value is not usable.
type Pool struct {
	logger *log.Logger
	sink   Sink
	probe  ProbeFunc

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []item
	closed bool

	pending    sync.WaitGroup // submitted items not yet delivered or dropped
	workers    sync.WaitGroup
	deliveries chan delivery
	dispatched chan struct{}
}

// Options configures a Pool.
type Options struct {
	Workers int       // Worker count; clamped to DefaultWorkers when < 1
	Probe   ProbeFunc // Validation function; defaults to Probe
	Logger  *log.Logger
}

// NewPool creates a Pool and starts its workers and dispatcher. Callers must
// Close the pool before tearing down the sink.
func NewPool(sink Sink, opts Options) *Pool {
	if opts.Workers < 1 {
		// The ancestor of this design only worked with an unlimited pool;
		// with completions serialized through the dispatcher any fixed
		// size is safe, so degenerate counts simply clamp.
		opts.Workers = DefaultWorkers
	}
	if opts.Probe == nil {
		opts.Probe = Probe
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	p := &Pool{
		logger:     opts.Logger.With("component", "ingest"),
		sink:       sink,
		probe:      opts.Probe,
		deliveries: make(chan delivery),
		dispatched: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.workers.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker()
	}
	go p.dispatch()

	return p
}

// Submit enqueues a path for validation and returns immediately. The
// position token is captured now and resolved when the validated track is
// inserted, so a target row that disappears in the meantime degrades to
// append. Returns [shared.ErrPoolClosed] after Close.
func (p *Pool) Submit(path string, pos store.Position) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return shared.ErrPoolClosed
	}
	p.pending.Add(1)
	p.queue = append(p.queue, item{path: path, pos: pos})
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// Wait blocks until every submitted item has been delivered or dropped.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close shuts the pool down: queued-but-unstarted items are discarded,
// in-flight validations drain, and the dispatcher delivers their results
// before exiting. When Close returns, no pool goroutine can touch the sink
// again; pool shutdown must therefore complete before store teardown.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	p.workers.Wait()

	// Workers are gone; whatever is left in the queue was never started.
	p.mu.Lock()
	discarded := len(p.queue)
	for range p.queue {
		p.pending.Done()
	}
	p.queue = nil
	p.mu.Unlock()
	if discarded > 0 {
		p.logger.Info("discarded queued items on shutdown", "count", discarded)
	}

	close(p.deliveries)
	<-p.dispatched
}

// worker pops items until the pool closes. Validation runs outside the lock
// so workers probe different files in parallel.
func (p *Pool) worker() {
	defer p.workers.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		track, err := p.probe(next.path)
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrNotAudio):
				p.logger.Warn("rejected non-audio file", "path", next.path)
			case errors.Is(err, shared.ErrUnreadable):
				p.logger.Warn("rejected unreadable file", "path", next.path, "err", err)
			default:
				p.logger.Warn("rejected file", "path", next.path, "err", err)
			}
			p.pending.Done()
			continue
		}
		p.deliveries <- delivery{track: track, pos: next.pos}
	}
}

// dispatch serializes completions into the sink. This is the only goroutine
// in the pool that mutates the store.
func (p *Pool) dispatch() {
	defer close(p.dispatched)
	for d := range p.deliveries {
		p.sink.Insert(d.track, d.pos)
		p.pending.Done()
	}
}
