package birdtracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// WorkerState is the lifecycle position of one pipeline worker.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerWaitForSignal
	WorkerWorking
	WorkerSignalDone
	WorkerKilled
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerWaitForSignal:
		return "wait_for_signal"
	case WorkerWorking:
		return "working"
	case WorkerSignalDone:
		return "signal_done"
	case WorkerKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Slot is one of the two frame buffers shared by the workers.
type Slot struct {
	Index      int
	Stabilized Stabilized
	Valid      bool
}

// Cycle is the read-only view of a published frame handed to stages.
// Previous is nil for frame 0.
type Cycle struct {
	Index    int
	Current  *Slot
	Previous *Slot
}

// StageResult carries what one stage produced for a cycle.
type StageResult struct {
	Records map[Tier][]DetectionRecord
}

// Producer fills the current slot with the next frame. It returns io.EOF when
// the source is exhausted.
type Producer interface {
	Produce(ctx context.Context, index int, dst *Slot) error
}

// Stage consumes published cycles. It must not modify the slots it is shown.
type Stage interface {
	Name() string
	Process(ctx context.Context, c Cycle) (StageResult, error)
}

// CycleObserver is called by the acquirer once every stage has finished a cycle
// and before the buffers rotate.
type CycleObserver func(c Cycle, results []StageResult)

// RunStats summarizes a completed run.
type RunStats struct {
	Frames  int
	Records map[Tier]int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver installs a cycle observer.
func WithObserver(fn CycleObserver) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator runs one producer and N stages in lock-step. Each cycle the
// producer waits for every stage to finish, rotates the buffers, produces the
// next frame and publishes it; stages wait for the publication, read both
// buffers and report done. The buffers are only written while no stage holds a
// cycle, so no other locking of frame data is needed.
type Coordinator struct {
	producer Producer
	stages   []Stage
	observer CycleObserver
	logger   *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	index     int
	available bool
	done      []bool
	killed    bool
	results   []StageResult
	err       error
	totals    map[Tier]int

	current  *Slot
	previous *Slot

	// states[0] is the producer, states[i+1] is stages[i].
	states []atomic.Int32
}

// NewCoordinator wires a producer to its stages.
func NewCoordinator(producer Producer, stages []Stage, opts ...Option) *Coordinator {
	c := &Coordinator{
		producer: producer,
		stages:   stages,
		logger:   slog.New(slog.DiscardHandler),
		states:   make([]atomic.Int32, len(stages)+1),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// States returns a snapshot of every worker state, producer first.
func (c *Coordinator) States() []WorkerState {
	out := make([]WorkerState, len(c.states))
	for i := range c.states {
		out[i] = WorkerState(c.states[i].Load())
	}
	return out
}

// Run drives the pipeline until the producer is exhausted, ctx is cancelled or a
// worker fails. Cancellation is observed between cycles; work already started
// always completes. It returns ctx.Err() after a cancellation.
func (c *Coordinator) Run(ctx context.Context) (RunStats, error) {
	c.reset()

	var wg sync.WaitGroup
	for i, st := range c.stages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.stageLoop(ctx, i, st)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.acquireLoop(ctx)
	}()
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	stats := RunStats{Frames: c.index + 1, Records: make(map[Tier]int, len(c.totals))}
	for t, n := range c.totals {
		stats.Records[t] = n
	}
	return stats, c.err
}

func (c *Coordinator) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = -1
	c.available = false
	c.killed = false
	c.err = nil
	c.done = make([]bool, len(c.stages))
	for i := range c.done {
		c.done[i] = true
	}
	c.results = make([]StageResult, len(c.stages))
	c.totals = make(map[Tier]int)
	c.current = &Slot{}
	c.previous = &Slot{}
	for i := range c.states {
		c.states[i].Store(int32(WorkerIdle))
	}
}

func (c *Coordinator) acquireLoop(ctx context.Context) {
	for {
		c.setState(0, WorkerWaitForSignal)
		finished, results, ok := c.waitAllDone()
		if !ok {
			c.setState(0, WorkerKilled)
			return
		}
		if finished.Index >= 0 && c.observer != nil {
			c.observer(finished, results)
		}
		if err := ctx.Err(); err != nil {
			c.logger.Info("pipeline cancelled", slog.Int("frames", finished.Index+1))
			c.kill(err)
			c.setState(0, WorkerKilled)
			return
		}

		c.setState(0, WorkerWorking)
		next := c.openCycle()

		err := c.producer.Produce(ctx, next, c.current)
		switch {
		case err == nil:
			c.publish(next)
			c.setState(0, WorkerSignalDone)
		case errors.Is(err, io.EOF):
			c.logger.Info("end of stream", slog.Int("frames", next))
			c.kill(nil)
			c.setState(0, WorkerKilled)
			return
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.kill(err)
			c.setState(0, WorkerKilled)
			return
		default:
			c.kill(fmt.Errorf("acquire frame %d: %w", next, err))
			c.setState(0, WorkerKilled)
			return
		}
	}
}

func (c *Coordinator) stageLoop(ctx context.Context, i int, st Stage) {
	for {
		c.setState(i+1, WorkerWaitForSignal)
		cycle, ok := c.waitFrame(i)
		if !ok {
			c.setState(i+1, WorkerKilled)
			return
		}

		c.setState(i+1, WorkerWorking)
		res, err := st.Process(ctx, cycle)
		if err != nil {
			c.kill(fmt.Errorf("%s frame %d: %w", st.Name(), cycle.Index, err))
			c.setState(i+1, WorkerKilled)
			return
		}
		c.markDone(i, res)
		c.setState(i+1, WorkerSignalDone)
	}
}

// waitAllDone blocks until every stage has finished the published cycle. It
// returns that cycle and its results, or false once the pipeline is killed.
func (c *Coordinator) waitAllDone() (Cycle, []StageResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.killed && !c.allDone() {
		c.cond.Wait()
	}
	if c.killed {
		return Cycle{}, nil, false
	}
	results := make([]StageResult, len(c.results))
	copy(results, c.results)
	return c.cycleLocked(), results, true
}

// openCycle clears the published state and rotates the buffers. It returns the
// index of the frame about to be produced.
func (c *Coordinator) openCycle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = false
	for i := range c.done {
		c.done[i] = false
		c.results[i] = StageResult{}
	}
	c.previous, c.current = c.current, c.previous
	return c.index + 1
}

func (c *Coordinator) publish(index int) {
	c.mu.Lock()
	c.index = index
	c.available = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Coordinator) waitFrame(i int) (Cycle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.killed && !(c.available && !c.done[i]) {
		c.cond.Wait()
	}
	if c.killed {
		return Cycle{}, false
	}
	return c.cycleLocked(), true
}

func (c *Coordinator) markDone(i int, res StageResult) {
	c.mu.Lock()
	c.done[i] = true
	c.results[i] = res
	for t, recs := range res.Records {
		c.totals[t] += len(recs)
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// kill ends the run. The first non-nil error is kept.
func (c *Coordinator) kill(err error) {
	c.mu.Lock()
	c.killed = true
	if err != nil && c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Coordinator) cycleLocked() Cycle {
	cy := Cycle{Index: c.index, Current: c.current}
	if c.index > 0 && c.previous.Valid {
		cy.Previous = c.previous
	}
	return cy
}

func (c *Coordinator) allDone() bool {
	for _, d := range c.done {
		if !d {
			return false
		}
	}
	return true
}

func (c *Coordinator) setState(i int, s WorkerState) {
	c.states[i].Store(int32(s))
}
