package schedule

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// metrics is the scheduler's internal control state: the rolling latency
// window and the self-tuned admission rate, plus lifetime counters.
// Mutated only under the scheduler mutex.
type metrics struct {
	latenciesMs  []float64
	window       int
	currentFPS   float64
	minFPS       float64
	maxFPS       float64
	smoothing    float64
	safetyFactor float64
	workers      int

	admitted  uint64
	dropped   uint64
	cancelled uint64
	failed    uint64
}

func (m *metrics) init(cfg Config) {
	m.window = cfg.LatencyWindow
	m.currentFPS = clampFPS(cfg.InitialFPS, cfg.MinFPS, cfg.MaxFPS)
	m.minFPS = cfg.MinFPS
	m.maxFPS = cfg.MaxFPS
	m.smoothing = cfg.Smoothing
	m.safetyFactor = cfg.SafetyFactor
	m.workers = cfg.MaxWorkers
}

// recordLatency appends a completed job's wall-clock latency and, once three
// samples exist, blends the derived sustainable rate into the current FPS.
// The ideal interval pads the average latency by the safety factor so a
// single worker never has a job queued behind the running one; capacity
// scales that by the worker count, clamped to the configured band.
func (m *metrics) recordLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	m.latenciesMs = append(m.latenciesMs, ms)
	if len(m.latenciesMs) > m.window {
		m.latenciesMs = m.latenciesMs[len(m.latenciesMs)-m.window:]
	}
	if len(m.latenciesMs) < 3 {
		return
	}

	avg := stat.Mean(m.latenciesMs, nil)
	if avg <= 0 {
		return
	}
	idealInterval := avg * m.safetyFactor
	idealFPS := 1000 / idealInterval
	if idealFPS > m.maxFPS {
		idealFPS = m.maxFPS
	}
	capacityFPS := float64(m.workers) * idealFPS
	if capacityFPS > m.maxFPS {
		capacityFPS = m.maxFPS
	}
	m.currentFPS += m.smoothing * (capacityFPS - m.currentFPS)
	m.currentFPS = clampFPS(m.currentFPS, m.minFPS, m.maxFPS)
}

func clampFPS(fps, lo, hi float64) float64 {
	if fps < lo {
		return lo
	}
	if fps > hi {
		return hi
	}
	return fps
}

// Snapshot is a point-in-time copy of the scheduler's control state, exposed
// for diagnostics and status display only.
type Snapshot struct {
	Pending     int
	MaxWorkers  int
	CurrentFPS  float64
	LatenciesMs []float64
	Admitted    uint64
	Dropped     uint64
	Cancelled   uint64
	Failed      uint64
}

// Metrics returns a snapshot of the scheduler's control state.
func (s *Scheduler) Metrics() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	lats := make([]float64, len(s.metrics.latenciesMs))
	copy(lats, s.metrics.latenciesMs)
	return Snapshot{
		Pending:     len(s.running),
		MaxWorkers:  s.cfg.MaxWorkers,
		CurrentFPS:  s.metrics.currentFPS,
		LatenciesMs: lats,
		Admitted:    s.metrics.admitted,
		Dropped:     s.metrics.dropped,
		Cancelled:   s.metrics.cancelled,
		Failed:      s.metrics.failed,
	}
}
