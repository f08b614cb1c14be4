package schedule

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mintforge/coin-preview/pkg/pipeline"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxWorkers = 2
	return cfg
}

func testSource() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 8, 8))
}

// fastProcess completes almost immediately but still honors cancellation,
// like the real pipeline does at stage boundaries.
func fastProcess(ctx context.Context, _ image.Image, _ pipeline.Params, _ pipeline.Tier) (*image.NRGBA, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
}

// collector gathers results thread-safely.
type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) add(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

// waitIdle polls until no jobs are running.
func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Metrics().Pending == 0 {
			// Settle once more: a completion may resubmit.
			time.Sleep(10 * time.Millisecond)
			if s.Metrics().Pending == 0 {
				return
			}
			continue
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduler did not go idle")
}

func TestSubmitWithoutSource(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()

	if s.Submit(pipeline.DefaultParams()) {
		t.Error("Submit without a source must not admit")
	}
}

func TestSingleSubmitDeliversFinal(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()
	s.SetProcess(fastProcess)
	var c collector
	s.OnResult(c.add)
	s.SetSource(testSource())

	if !s.Submit(pipeline.DefaultParams()) {
		t.Fatal("idle scheduler must admit immediately")
	}
	waitIdle(t, s)

	results := c.snapshot()
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Tier != pipeline.Final {
		t.Errorf("Non-drag submit must run at final tier, got %v", results[0].Tier)
	}
}

func TestDragConvergence(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()
	s.SetProcess(fastProcess)
	var c collector
	s.OnResult(c.add)
	s.SetSource(testSource())

	s.BeginDrag()
	var last pipeline.Params
	for i := 0; i < 50; i++ {
		p := pipeline.DefaultParams()
		p.Brightness = i - 25
		s.Submit(p)
		last = p
	}
	s.EndDrag()
	waitIdle(t, s)

	var finals []Result
	for _, r := range c.snapshot() {
		if r.Tier == pipeline.Final {
			finals = append(finals, r)
		}
	}
	if len(finals) != 1 {
		t.Fatalf("Expected exactly one final result after drag end, got %d", len(finals))
	}
	if finals[0].Params != last {
		t.Errorf("Final reflects %+v, want last submitted %+v", finals[0].Params, last)
	}

	m := s.Metrics()
	if m.Admitted == 0 {
		t.Error("Expected at least one admission during the drag")
	}
	if m.Admitted > 50 {
		t.Errorf("Admission control failed to collapse the burst: %d admitted", m.Admitted)
	}
}

func TestStaleResultNeverApplied(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()

	// Jobs complete only when their gate is released, and deliberately
	// ignore cancellation, simulating work that finishes after being
	// superseded.
	gates := map[int]chan struct{}{
		1: make(chan struct{}),
		2: make(chan struct{}),
	}
	s.SetProcess(func(_ context.Context, _ image.Image, p pipeline.Params, _ pipeline.Tier) (*image.NRGBA, error) {
		<-gates[p.Brightness]
		return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
	})
	var c collector
	s.OnResult(c.add)
	s.SetSource(testSource())

	older := pipeline.DefaultParams()
	older.Brightness = 1
	newer := pipeline.DefaultParams()
	newer.Brightness = 2

	if !s.Submit(older) {
		t.Fatal("first submit must be admitted")
	}
	// Age the previous admission so the rate limiter lets the second in.
	s.mu.Lock()
	s.lastAdmit = time.Now().Add(-time.Minute)
	s.mu.Unlock()
	if !s.Submit(newer) {
		t.Fatal("second submit must be admitted below the worker cap")
	}

	close(gates[2]) // newer completes first and is accepted
	deadline := time.Now().Add(5 * time.Second)
	for len(c.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(gates[1]) // older completes afterwards
	waitIdle(t, s)

	results := c.snapshot()
	if len(results) != 1 {
		t.Fatalf("Expected exactly one applied result, got %d", len(results))
	}
	if results[0].Params != newer {
		t.Errorf("Applied result %+v, want newer params %+v", results[0].Params, newer)
	}
}

func TestGenerationsOrderReversedDelivery(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()
	s.SetProcess(fastProcess)

	// The first accepted result is held inside its delivery callback while a
	// second candidate is submitted, accepted and delivered, so the two
	// accepted results reach the consumer in reverse acceptance order.
	var calls int32
	releaseFirst := make(chan struct{})
	var c collector
	s.OnResult(func(r Result) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-releaseFirst
		}
		c.add(r)
	})
	s.SetSource(testSource())

	first := pipeline.DefaultParams()
	first.Brightness = 1
	if !s.Submit(first) {
		t.Fatal("first submit must be admitted")
	}
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("first result never reached delivery")
	}

	second := pipeline.DefaultParams()
	second.Brightness = 2
	if !s.Submit(second) {
		t.Fatal("second submit must be admitted on an idle pool")
	}
	for len(c.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(releaseFirst)
	waitIdle(t, s)

	results := c.snapshot()
	if len(results) != 2 {
		t.Fatalf("Expected 2 delivered results, got %d", len(results))
	}
	if results[0].Params != second || results[1].Params != first {
		t.Fatalf("Expected reversed delivery order, got %+v then %+v",
			results[0].Params, results[1].Params)
	}
	// Generations expose the true acceptance order regardless of delivery
	// order, so consumers can discard the late-arriving older result.
	if results[1].Generation >= results[0].Generation {
		t.Errorf("Older acceptance carries generation %d, newer %d; want strictly increasing",
			results[1].Generation, results[0].Generation)
	}
	if results[1].Generation == 0 || results[0].Generation == 0 {
		t.Error("Accepted results must carry a nonzero generation")
	}
}

func TestAdmissionIntervalKeepsFractionalRate(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()

	// At 3 jobs/s the exact interval is 333.33ms; an elapsed time between
	// the truncated and the exact interval must not admit.
	base := time.Now()
	s.mu.Lock()
	s.metrics.currentFPS = 3
	s.lastAdmit = base
	s.running[99] = &job{id: 99, cancel: func() {}}
	s.now = func() time.Time { return base.Add(333*time.Millisecond + 100*time.Microsecond) }
	early := s.admissibleLocked()
	s.now = func() time.Time { return base.Add(334 * time.Millisecond) }
	late := s.admissibleLocked()
	delete(s.running, 99)
	s.now = time.Now
	s.mu.Unlock()

	if early {
		t.Error("Admitted before the exact 1/3s interval elapsed")
	}
	if !late {
		t.Error("Elapsed time past the interval must admit below the worker cap")
	}
}

func TestAdmissionDropsWhenSaturated(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 1
	s := NewWithConfig(cfg)
	defer s.Close()

	release := make(chan struct{})
	s.SetProcess(func(ctx context.Context, _ image.Image, _ pipeline.Params, _ pipeline.Tier) (*image.NRGBA, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
		return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
	})
	s.SetSource(testSource())

	if !s.Submit(pipeline.DefaultParams()) {
		t.Fatal("idle scheduler must admit")
	}
	p := pipeline.DefaultParams()
	p.Contrast = 10
	if s.Submit(p) {
		t.Error("saturated scheduler must drop the candidate")
	}
	if got := s.Metrics().Dropped; got != 1 {
		t.Errorf("Expected 1 drop, got %d", got)
	}
	close(release)
	waitIdle(t, s)
}

func TestDroppedCandidateResubmittedOnCompletion(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 1
	s := NewWithConfig(cfg)
	defer s.Close()

	release := make(chan struct{})
	s.SetProcess(func(ctx context.Context, _ image.Image, _ pipeline.Params, _ pipeline.Tier) (*image.NRGBA, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
		return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
	})
	var c collector
	s.OnResult(c.add)
	s.SetSource(testSource())

	first := pipeline.DefaultParams()
	s.Submit(first)
	second := pipeline.DefaultParams()
	second.Contrast = 30
	if s.Submit(second) {
		t.Fatal("second submit should have been dropped")
	}
	close(release)
	waitIdle(t, s)

	results := c.snapshot()
	if len(results) == 0 {
		t.Fatal("Expected results after drain")
	}
	lastApplied := results[len(results)-1]
	if lastApplied.Params != second {
		t.Errorf("Scheduler converged to %+v, want the dropped candidate %+v", lastApplied.Params, second)
	}
}

func TestFailureSurfacedAndSchedulingContinues(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()

	s.SetProcess(func(ctx context.Context, src image.Image, p pipeline.Params, tier pipeline.Tier) (*image.NRGBA, error) {
		if p.Invert {
			return nil, fmt.Errorf("decode blew up")
		}
		return fastProcess(ctx, src, p, tier)
	})
	var c collector
	s.OnResult(c.add)
	errs := make(chan error, 1)
	s.OnError(func(_ pipeline.Params, err error) { errs <- err })
	s.SetSource(testSource())

	bad := pipeline.DefaultParams()
	bad.Invert = true
	s.Submit(bad)
	select {
	case <-errs:
	case <-time.After(5 * time.Second):
		t.Fatal("failure was not surfaced")
	}
	waitIdle(t, s)
	if got := s.Metrics().Failed; got != 1 {
		t.Errorf("Expected 1 failed job, got %d", got)
	}
	if len(c.snapshot()) != 0 {
		t.Error("Failed job must not deliver a result")
	}

	// The scheduler keeps admitting after a failure.
	good := pipeline.DefaultParams()
	if !s.Submit(good) {
		t.Fatal("submit after failure must be admitted")
	}
	waitIdle(t, s)
	if len(c.snapshot()) != 1 {
		t.Errorf("Expected 1 result after recovery, got %d", len(c.snapshot()))
	}
}

func TestCancelAllAbortsRunningWork(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()

	started := make(chan struct{})
	s.SetProcess(func(ctx context.Context, _ image.Image, _ pipeline.Params, _ pipeline.Tier) (*image.NRGBA, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	var c collector
	s.OnResult(c.add)
	s.SetSource(testSource())

	s.Submit(pipeline.DefaultParams())
	<-started
	s.CancelAll()
	waitIdle(t, s)

	if got := s.Metrics().Cancelled; got != 1 {
		t.Errorf("Expected 1 cancelled job, got %d", got)
	}
	if len(c.snapshot()) != 0 {
		t.Error("Cancelled job must not deliver a result")
	}
}

func TestFPSConvergesToCapacity(t *testing.T) {
	tests := []struct {
		name      string
		latencyMs float64
		workers   int
	}{
		{"moderate load", 500, 4},
		{"slow hardware", 2000, 2},
		{"fast hardware", 20, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MaxWorkers = tt.workers
			var m metrics
			m.init(cfg)

			for i := 0; i < 100; i++ {
				m.recordLatency(time.Duration(tt.latencyMs) * time.Millisecond)
				if m.currentFPS < cfg.MinFPS || m.currentFPS > cfg.MaxFPS {
					t.Fatalf("FPS %v left [%v, %v]", m.currentFPS, cfg.MinFPS, cfg.MaxFPS)
				}
			}

			ideal := 1000 / (tt.latencyMs * cfg.SafetyFactor)
			if ideal > cfg.MaxFPS {
				ideal = cfg.MaxFPS
			}
			want := float64(tt.workers) * ideal
			if want > cfg.MaxFPS {
				want = cfg.MaxFPS
			}
			want = clampFPS(want, cfg.MinFPS, cfg.MaxFPS)
			if math.Abs(m.currentFPS-want)/want > 0.05 {
				t.Errorf("FPS converged to %v, want within 5%% of %v", m.currentFPS, want)
			}
		})
	}
}

func TestFPSNeedsThreeSamples(t *testing.T) {
	cfg := DefaultConfig()
	var m metrics
	m.init(cfg)
	initial := m.currentFPS

	m.recordLatency(100 * time.Millisecond)
	m.recordLatency(100 * time.Millisecond)
	if m.currentFPS != initial {
		t.Errorf("FPS changed after %d samples: %v", 2, m.currentFPS)
	}
	m.recordLatency(100 * time.Millisecond)
	if m.currentFPS == initial {
		t.Error("FPS should retune at the third sample")
	}
}

func TestLatencyWindowBounded(t *testing.T) {
	cfg := DefaultConfig()
	var m metrics
	m.init(cfg)
	for i := 0; i < 25; i++ {
		m.recordLatency(time.Duration(i) * time.Millisecond)
	}
	if len(m.latenciesMs) != cfg.LatencyWindow {
		t.Errorf("Window holds %d samples, want %d", len(m.latenciesMs), cfg.LatencyWindow)
	}
	// Oldest samples are evicted first.
	if m.latenciesMs[0] != 15 {
		t.Errorf("Oldest retained sample is %v, want 15", m.latenciesMs[0])
	}
}

func TestSetSourceClearsState(t *testing.T) {
	s := NewWithConfig(testConfig())
	defer s.Close()

	started := make(chan struct{})
	s.SetProcess(func(ctx context.Context, _ image.Image, _ pipeline.Params, _ pipeline.Tier) (*image.NRGBA, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s.SetSource(testSource())
	s.Submit(pipeline.DefaultParams())
	<-started

	s.SetSource(testSource())
	waitIdle(t, s)
	if got := s.Metrics().Cancelled; got != 1 {
		t.Errorf("Expected the in-flight job cancelled on source change, got %d", got)
	}
}
