// Package schedule implements the adaptive recompute scheduler: admission
// control over a bounded worker pool, preview/final quality selection around
// drag gestures, latency-driven rate tuning, and stale-result rejection.
//
// A Scheduler instance is owned by one viewport session. It is never shared
// process-wide, so concurrent sessions (or tests) cannot interfere.
package schedule

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/mintforge/coin-preview/internal/logging"
	"github.com/mintforge/coin-preview/pkg/pipeline"
)

// ProcessFunc executes one recompute job. The default is pipeline.Apply;
// tests substitute synthetic workloads.
type ProcessFunc func(ctx context.Context, src image.Image, p pipeline.Params, tier pipeline.Tier) (*image.NRGBA, error)

// Config holds the scheduler tuning knobs.
type Config struct {
	// MaxWorkers bounds concurrently running jobs. Zero means the hardware
	// estimate min(NumCPU, 4).
	MaxWorkers int
	// MinFPS and MaxFPS clamp the self-tuned admission rate.
	MinFPS float64
	MaxFPS float64
	// InitialFPS seeds the admission rate before latency samples exist.
	InitialFPS float64
	// LatencyWindow is the rolling latency sample count.
	LatencyWindow int
	// Smoothing blends the measured capacity into the current rate.
	Smoothing float64
	// SafetyFactor pads the average latency when deriving the sustainable
	// interval, leaving headroom so workers never queue up.
	SafetyFactor float64
	// PreviewMaxSide caps the longest side of preview-tier inputs. Zero
	// means pipeline.PreviewMaxSide.
	PreviewMaxSide int
	// Logger receives debug/warn records; nil stays silent.
	Logger *slog.Logger
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	if workers < 1 {
		workers = 1
	}
	return Config{
		MaxWorkers:    workers,
		MinFPS:        1,
		MaxFPS:        8,
		InitialFPS:    4,
		LatencyWindow: 10,
		Smoothing:     0.3,
		SafetyFactor:  1.5,
	}
}

// Result is a completed, accepted recompute delivered to the result callback.
// Generation orders acceptances: it is assigned under the scheduler lock and
// strictly increases, while delivery runs on worker goroutines and may arrive
// out of order. Consumers must discard a result older than the one they hold.
type Result struct {
	Params     pipeline.Params
	Tier       pipeline.Tier
	Image      *image.NRGBA
	Latency    time.Duration
	Generation uint64
}

type job struct {
	id     uint64
	params pipeline.Params
	hash   string
	tier   pipeline.Tier
	cancel context.CancelFunc
	start  time.Time
}

// Scheduler collapses a stream of parameter-change candidates into a bounded
// number of executed jobs while guaranteeing the last parameter state
// eventually gets a full-quality result.
type Scheduler struct {
	cfg     Config
	log     *slog.Logger
	process ProcessFunc
	now     func() time.Time

	onResult func(Result)
	onError  func(pipeline.Params, error)

	mu         sync.Mutex
	source     image.Image
	running    map[uint64]*job
	nextID     uint64
	lastAdmit  time.Time
	dragActive bool

	latest     pipeline.Params
	latestHash string
	haveLatest bool

	acceptedHash string
	acceptedTier pipeline.Tier
	haveAccepted bool
	acceptGen    uint64

	metrics metrics
	closed  bool
	wg      sync.WaitGroup
}

// New creates a scheduler with the default tuning.
func New() *Scheduler {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a scheduler with custom tuning. Zero-valued fields
// fall back to their defaults.
func NewWithConfig(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.MinFPS <= 0 {
		cfg.MinFPS = def.MinFPS
	}
	if cfg.MaxFPS <= 0 {
		cfg.MaxFPS = def.MaxFPS
	}
	if cfg.InitialFPS <= 0 {
		cfg.InitialFPS = def.InitialFPS
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = def.LatencyWindow
	}
	if cfg.Smoothing <= 0 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.SafetyFactor <= 0 {
		cfg.SafetyFactor = def.SafetyFactor
	}
	previewMax := cfg.PreviewMaxSide
	s := &Scheduler{
		cfg: cfg,
		log: logging.Or(cfg.Logger),
		process: func(ctx context.Context, src image.Image, p pipeline.Params, tier pipeline.Tier) (*image.NRGBA, error) {
			return pipeline.ApplyWithLimit(ctx, src, p, tier, previewMax)
		},
		now:     time.Now,
		running: make(map[uint64]*job),
	}
	s.metrics.init(cfg)
	return s
}

// SetProcess substitutes the job executor. Intended for tests.
func (s *Scheduler) SetProcess(fn ProcessFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.process = fn
	}
}

// OnResult registers the callback receiving accepted results. The callback
// runs on a worker goroutine; it must not block for long.
func (s *Scheduler) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// OnError registers the callback receiving job failures. Cancellations are
// never reported.
func (s *Scheduler) OnError(fn func(pipeline.Params, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// SetSource replaces the input heightmap. In-flight work is aborted and all
// admission and acceptance state is cleared; the caller is expected to
// submit fresh parameters afterwards.
func (s *Scheduler) SetSource(src image.Image) {
	s.mu.Lock()
	s.source = src
	s.cancelAllLocked()
	s.haveLatest = false
	s.haveAccepted = false
	s.lastAdmit = time.Time{}
	s.mu.Unlock()
}

// BeginDrag marks the start of continuous manipulation: subsequent
// candidates run at preview tier under throttling.
func (s *Scheduler) BeginDrag() {
	s.mu.Lock()
	s.dragActive = true
	s.mu.Unlock()
}

// EndDrag closes a manipulation interval. Exactly one unthrottled
// final-tier job is forced for the last-known parameters, superseding any
// in-flight preview, so the visible state converges to full quality.
func (s *Scheduler) EndDrag() {
	s.mu.Lock()
	s.dragActive = false
	if !s.haveLatest || s.source == nil || s.closed || s.convergedLocked() {
		s.mu.Unlock()
		return
	}
	p := s.latest
	s.admitLocked(p, pipeline.Final)
	s.mu.Unlock()
}

// Submit offers a parameter-change candidate. It reports whether a job was
// admitted; dropped candidates are not queued, since only the latest
// parameter state matters and a later completion resubmits it.
func (s *Scheduler) Submit(p pipeline.Params) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.source == nil {
		return false
	}

	s.latest = p
	s.latestHash = p.Hash()
	s.haveLatest = true

	tier := pipeline.Final
	if s.dragActive {
		tier = pipeline.Preview
	}

	if !s.admissibleLocked() {
		s.metrics.dropped++
		s.log.Debug("candidate dropped by admission control",
			"pending", len(s.running), "fps", s.metrics.currentFPS)
		return false
	}
	s.admitLocked(p, tier)
	return true
}

// admissibleLocked applies the admission rule: an idle pool admits
// immediately; a busy pool admits only below the worker cap and no sooner
// than the self-tuned interval after the previous admission.
func (s *Scheduler) admissibleLocked() bool {
	if len(s.running) == 0 {
		return true
	}
	if len(s.running) >= s.cfg.MaxWorkers {
		return false
	}
	interval := time.Duration(float64(time.Second) / s.metrics.currentFPS)
	return s.now().Sub(s.lastAdmit) >= interval
}

// admitLocked starts a job, cancelling running jobs it supersedes (same or
// lower tier).
func (s *Scheduler) admitLocked(p pipeline.Params, tier pipeline.Tier) {
	for _, r := range s.running {
		if r.tier <= tier {
			r.cancel()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.nextID++
	j := &job{
		id:     s.nextID,
		params: p,
		hash:   p.Hash(),
		tier:   tier,
		cancel: cancel,
		start:  s.now(),
	}
	s.running[j.id] = j
	s.lastAdmit = j.start
	s.metrics.admitted++
	src := s.source

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		img, err := s.process(ctx, src, j.params, j.tier)
		s.complete(j, img, err)
	}()
}

// complete settles a finished job: tunes the admission rate, applies the
// acceptance rule, and resubmits the latest parameters if this job no
// longer represents them.
func (s *Scheduler) complete(j *job, img *image.NRGBA, err error) {
	s.mu.Lock()
	delete(s.running, j.id)
	latency := s.now().Sub(j.start)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.metrics.cancelled++
		} else {
			s.metrics.failed++
			s.log.Warn("recompute job failed", "tier", j.tier.String(), "error", err)
			cb := s.onError
			s.mu.Unlock()
			if cb != nil {
				cb(j.params, err)
			}
			s.mu.Lock()
		}
		s.resubmitStaleLocked(j)
		s.mu.Unlock()
		return
	}

	s.metrics.recordLatency(latency)

	// Acceptance rule: a result applies only if its parameters are still the
	// most recently requested, and a preview never replaces a final already
	// accepted for the same parameters.
	accept := j.hash == s.latestHash
	if accept && s.haveAccepted && s.acceptedHash == j.hash &&
		s.acceptedTier == pipeline.Final && j.tier == pipeline.Preview {
		accept = false
	}
	var gen uint64
	if accept {
		s.acceptedHash = j.hash
		s.acceptedTier = j.tier
		s.haveAccepted = true
		s.acceptGen++
		gen = s.acceptGen
	} else {
		s.log.Debug("stale result dropped", "tier", j.tier.String())
	}
	cb := s.onResult
	params := j.params
	s.resubmitStaleLocked(j)
	s.mu.Unlock()

	if accept && cb != nil {
		cb(Result{Params: params, Tier: j.tier, Image: img, Latency: latency, Generation: gen})
	}
}

// resubmitStaleLocked closes the convergence loop: when a job settles while
// newer parameters have arrived, and no running job covers them, a fresh
// job for the latest state is admitted. Failed parameters are never retried
// for their own hash.
func (s *Scheduler) resubmitStaleLocked(j *job) {
	if s.closed || !s.haveLatest || s.source == nil || s.latestHash == j.hash {
		return
	}
	if s.convergedLocked() {
		return
	}
	for _, r := range s.running {
		if r.hash == s.latestHash {
			return
		}
	}
	tier := pipeline.Final
	if s.dragActive {
		tier = pipeline.Preview
	}
	s.admitLocked(s.latest, tier)
}

// convergedLocked reports whether a full-quality result for the latest
// requested parameters has already been accepted.
func (s *Scheduler) convergedLocked() bool {
	return s.haveAccepted && s.acceptedHash == s.latestHash && s.acceptedTier == pipeline.Final
}

// CancelAll aborts every running job and clears all admission state.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	s.cancelAllLocked()
	s.haveLatest = false
	s.lastAdmit = time.Time{}
	s.mu.Unlock()
}

func (s *Scheduler) cancelAllLocked() {
	for _, r := range s.running {
		r.cancel()
	}
}

// Close aborts outstanding work and waits for the workers to exit. The
// scheduler must not be used afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancelAllLocked()
	s.mu.Unlock()
	s.wg.Wait()
}
