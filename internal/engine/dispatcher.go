package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/chessmcp/internal/chessgame"
)

// ErrTimeout is returned when an engine produces no move before its
// deadline. The dispatcher never mutates session state in this case.
var ErrTimeout = fmt.Errorf("engine timeout")

// poolSizes are fixed per §4.4: neural 4, classical 8, learned 6.
var poolSizes = map[Class]int{
	ClassNeural:    4,
	ClassClassical: 8,
	ClassLearned:   6,
}

// searchJob is one unit of work submitted to a pool.
type searchJob struct {
	ctx        context.Context
	state      *chessgame.GameState
	difficulty int
	deadline   time.Time
	impl       ChessEngine
	engineName string
	result     chan searchResult
}

type searchResult struct {
	move string
	err  error
}

// pool is one bounded worker pool dedicated to a Class.
type pool struct {
	jobs chan searchJob
}

// Dispatcher routes search requests onto one of three class-partitioned
// worker pools and enforces the per-search deadline.
type Dispatcher struct {
	pools   map[Class]*pool
	load    map[string]*int64 // engine name -> in-flight search count
	metrics DispatchMetrics
}

// DispatchMetrics is the observability hook the dispatcher reports through.
// A nil-safe no-op implementation is used when metrics are disabled.
type DispatchMetrics interface {
	RecordSearch(engineName string, class Class, duration time.Duration, timedOut bool)
	SetEngineLoad(engineName string, inFlight int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordSearch(string, Class, time.Duration, bool) {}
func (noopMetrics) SetEngineLoad(string, int64)                     {}

// NewDispatcher starts the three worker pools. Call Stop to drain them on
// shutdown.
func NewDispatcher(metrics DispatchMetrics) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	d := &Dispatcher{
		pools:   make(map[Class]*pool),
		load:    make(map[string]*int64),
		metrics: metrics,
	}
	for class, size := range poolSizes {
		p := &pool{jobs: make(chan searchJob, size*4)}
		d.pools[class] = p
		for i := 0; i < size; i++ {
			go d.worker(p)
		}
	}
	for _, name := range Names {
		var n int64
		d.load[canonicalKey(name)] = &n
	}
	return d
}

func (d *Dispatcher) worker(p *pool) {
	for job := range p.jobs {
		move, err := job.impl.Search(job.ctx, job.state, job.difficulty, job.deadline)
		select {
		case job.result <- searchResult{move: move, err: err}:
		case <-job.ctx.Done():
		}
	}
}

// Search submits a read-only analysis or move-reply request for
// engineName and blocks until the engine replies, the deadline expires, or
// ctx is canceled. On deadline expiry it returns ErrTimeout and leaves the
// caller's session state untouched — the caller never applies a move for a
// timed-out search.
func (d *Dispatcher) Search(ctx context.Context, engineName string, impl ChessEngine, state *chessgame.GameState, difficulty int) (string, error) {
	class := ClassOf(engineName)
	p, ok := d.pools[class]
	if !ok {
		return "", fmt.Errorf("engine: no pool for class %q", class)
	}

	deadline := time.Now().Add(SearchDeadline(difficulty))
	searchCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	counter := d.counterFor(engineName)
	atomic.AddInt64(counter, 1)
	d.metrics.SetEngineLoad(engineName, atomic.LoadInt64(counter))
	defer func() {
		atomic.AddInt64(counter, -1)
		d.metrics.SetEngineLoad(engineName, atomic.LoadInt64(counter))
	}()

	job := searchJob{
		ctx:        searchCtx,
		state:      state.Clone(),
		difficulty: difficulty,
		deadline:   deadline,
		impl:       impl,
		engineName: engineName,
		result:     make(chan searchResult, 1),
	}

	start := time.Now()
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-job.result:
		d.metrics.RecordSearch(engineName, class, time.Since(start), false)
		if res.err != nil {
			return "", fmt.Errorf("engine %q search failed: %w", engineName, res.err)
		}
		if res.move == "" {
			d.metrics.RecordSearch(engineName, class, time.Since(start), true)
			return "", ErrTimeout
		}
		return res.move, nil
	case <-searchCtx.Done():
		d.metrics.RecordSearch(engineName, class, time.Since(start), true)
		return "", ErrTimeout
	}
}

// Load returns the current in-flight search count for an engine.
func (d *Dispatcher) Load(engineName string) int64 {
	counter, ok := d.load[canonicalKey(engineName)]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter)
}

func (d *Dispatcher) counterFor(engineName string) *int64 {
	if c, ok := d.load[canonicalKey(engineName)]; ok {
		return c
	}
	// Unrecognized engine names are rejected before reaching the
	// dispatcher, but fall back to a private counter rather than panicking.
	var n int64
	d.load[canonicalKey(engineName)] = &n
	return &n
}

// Stop closes every pool's job channel, letting in-flight workers finish
// their current job and then exit.
func (d *Dispatcher) Stop() {
	for _, p := range d.pools {
		close(p.jobs)
	}
}
