package birdtracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingProducer fills slots with 1x1 frames whose pixel is the frame index.
type countingProducer struct {
	limit    int
	produced atomic.Int64
	failAt   int
}

func (p *countingProducer) Produce(ctx context.Context, index int, dst *Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.failAt > 0 && index == p.failAt {
		return errors.New("decoder exploded")
	}
	if index >= p.limit {
		return io.EOF
	}
	f := NewFrame(1, 1)
	f.Pix[0] = uint8(index)
	dst.Index = index
	dst.Stabilized = Stabilized{Frame: f}
	dst.Valid = true
	p.produced.Add(1)
	return nil
}

// recordingStage checks the barrier from inside Process and records what it saw.
type recordingStage struct {
	name     string
	producer *countingProducer
	delay    time.Duration
	failAt   int

	mu       sync.Mutex
	seen     []int
	problems []string
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Process(ctx context.Context, c Cycle) (StageResult, error) {
	if s.failAt > 0 && c.Index == s.failAt {
		return StageResult{}, errors.New("tier crashed")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, c.Index)

	if got := s.producer.produced.Load(); got != int64(c.Index+1) {
		s.problems = append(s.problems, fmt.Sprintf("cycle %d: producer already at %d", c.Index, got))
	}
	if px := c.Current.Stabilized.Frame.Pix[0]; int(px) != c.Index {
		s.problems = append(s.problems, fmt.Sprintf("cycle %d: current holds frame %d", c.Index, px))
	}
	switch {
	case c.Index == 0 && c.Previous != nil:
		s.problems = append(s.problems, "cycle 0 has a previous frame")
	case c.Index > 0 && c.Previous == nil:
		s.problems = append(s.problems, fmt.Sprintf("cycle %d has no previous frame", c.Index))
	case c.Index > 0 && int(c.Previous.Stabilized.Frame.Pix[0]) != c.Index-1:
		s.problems = append(s.problems, fmt.Sprintf("cycle %d: previous holds frame %d", c.Index, c.Previous.Stabilized.Frame.Pix[0]))
	}
	return StageResult{Records: map[Tier][]DetectionRecord{Tier1: {{Frame: c.Index}}}}, nil
}

func (s *recordingStage) check(t *testing.T, want int) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.problems {
		t.Error(s.name + ": " + p)
	}
	if len(s.seen) != want {
		t.Fatalf("%s processed %d cycles, want %d", s.name, len(s.seen), want)
	}
	for i, idx := range s.seen {
		if idx != i {
			t.Fatalf("%s processed cycle %d at position %d", s.name, idx, i)
		}
	}
}

func TestCoordinatorLockStep(t *testing.T) {
	producer := &countingProducer{limit: 25}
	fast := &recordingStage{name: "fast", producer: producer}
	slow := &recordingStage{name: "slow", producer: producer, delay: time.Millisecond}

	var observed []int
	coord := NewCoordinator(producer, []Stage{fast, slow}, WithObserver(func(c Cycle, results []StageResult) {
		observed = append(observed, c.Index)
		if len(results) != 2 {
			t.Errorf("observer got %d results, want 2", len(results))
		}
	}))

	stats, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Frames != 25 {
		t.Fatalf("Frames = %d, want 25", stats.Frames)
	}
	if stats.Records[Tier1] != 50 {
		t.Fatalf("Tier1 records = %d, want 50", stats.Records[Tier1])
	}
	fast.check(t, 25)
	slow.check(t, 25)
	if len(observed) != 25 || observed[24] != 24 {
		t.Fatalf("observer saw %v", observed)
	}
	for i, s := range coord.States() {
		if s != WorkerKilled {
			t.Fatalf("worker %d ended in state %s, want killed", i, s)
		}
	}
}

func TestCoordinatorEmptySource(t *testing.T) {
	producer := &countingProducer{limit: 0}
	stage := &recordingStage{name: "only", producer: producer}
	stats, err := NewCoordinator(producer, []Stage{stage}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Frames != 0 {
		t.Fatalf("Frames = %d, want 0", stats.Frames)
	}
	stage.check(t, 0)
}

func TestCoordinatorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := &countingProducer{limit: 1000}
	stage := &recordingStage{name: "only", producer: producer}
	coord := NewCoordinator(producer, []Stage{stage}, WithObserver(func(c Cycle, _ []StageResult) {
		if c.Index == 4 {
			cancel()
		}
	}))

	stats, err := coord.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if stats.Frames != 5 {
		t.Fatalf("Frames = %d, want 5", stats.Frames)
	}
	stage.check(t, 5)
}

func TestCoordinatorStageFailure(t *testing.T) {
	producer := &countingProducer{limit: 100}
	good := &recordingStage{name: "good", producer: producer}
	bad := &recordingStage{name: "bad", producer: producer, failAt: 3}

	_, err := NewCoordinator(producer, []Stage{good, bad}).Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failing stage")
	}
	if produced := producer.produced.Load(); produced != 4 {
		t.Fatalf("producer ran ahead to %d frames after failure", produced)
	}
}

func TestCoordinatorProducerFailure(t *testing.T) {
	producer := &countingProducer{limit: 100, failAt: 2}
	stage := &recordingStage{name: "only", producer: producer}
	stats, err := NewCoordinator(producer, []Stage{stage}).Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failing producer")
	}
	if stats.Frames != 2 {
		t.Fatalf("Frames = %d, want 2", stats.Frames)
	}
	stage.check(t, 2)
}
