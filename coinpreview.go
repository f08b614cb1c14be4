// Package coinpreview provides a real-time preview session for coin relief
// generation: a heightmap image is placed over a target coin outline inside
// a pannable, zoomable viewport while a background scheduler keeps a
// processed preview of the heightmap up to date with the current parameters.
//
// Geometry changes (pan, zoom, placement, shape) repaint immediately and
// never trigger recomputation; pixel-content changes (grayscale method,
// brightness, contrast, gamma, invert) go through the adaptive scheduler,
// which throttles preview-quality jobs during a drag and converges to one
// full-quality result when interaction stops.
//
// Basic usage:
//
//	session := coinpreview.New()
//	defer session.Close()
//
//	session.OnInvalidate(func(st coinpreview.Status) {
//		// repaint the host canvas, update status display
//	})
//	session.SetHeightmap(img)
//
//	session.BeginDrag()
//	session.SetProcessing(params) // repeatedly, during a slider drag
//	session.EndDrag()
//
//	frame := session.Render(800, 600)
package coinpreview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/mintforge/coin-preview/pkg/generation"
	"github.com/mintforge/coin-preview/pkg/geometry"
	"github.com/mintforge/coin-preview/pkg/imageio"
	"github.com/mintforge/coin-preview/pkg/meshapi"
	"github.com/mintforge/coin-preview/pkg/pipeline"
	"github.com/mintforge/coin-preview/pkg/render"
	"github.com/mintforge/coin-preview/pkg/schedule"
)

// Version of the coin preview library.
const Version = "1.0.0"

// Status is a snapshot handed to the invalidation callback so the host UI
// can update auxiliary display without polling internal state.
type Status struct {
	Zoom     float64
	PanX     float64
	PanY     float64
	FPS      float64
	Tier     pipeline.Tier
	HasImage bool
}

// Config bundles the session's component configurations.
type Config struct {
	Renderer  render.Config
	Scheduler schedule.Config
}

// Session owns one viewport and one scheduler. Create it with New, release
// it with Close. Sessions are independent: concurrent sessions never share
// state.
type Session struct {
	renderer  *render.Renderer
	scheduler *schedule.Scheduler

	mu           sync.Mutex
	processing   pipeline.Params
	source       image.Image
	onInvalidate func(Status)
	onError      func(error)
}

// New creates a session with default configuration.
func New() *Session {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a session with custom renderer and scheduler
// configuration.
func NewWithConfig(cfg Config) *Session {
	s := &Session{
		renderer:   render.NewWithConfig(cfg.Renderer),
		scheduler:  schedule.NewWithConfig(cfg.Scheduler),
		processing: pipeline.DefaultParams(),
	}
	s.scheduler.OnResult(s.acceptResult)
	s.scheduler.OnError(s.reportError)
	return s
}

// OnInvalidate registers the render-invalidation callback, fired whenever a
// new processed image is accepted or the view changes. The callback may run
// on a worker goroutine.
func (s *Session) OnInvalidate(fn func(Status)) {
	s.mu.Lock()
	s.onInvalidate = fn
	s.mu.Unlock()
}

// OnError registers a callback for recompute failures. A failed job leaves
// the last-good image displayed; the error is a non-blocking notice.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// SetHeightmap replaces the source image. All in-flight work is aborted,
// the processed state is cleared, and a full-quality recompute of the
// current processing parameters is triggered.
func (s *Session) SetHeightmap(img image.Image) {
	s.mu.Lock()
	s.source = img
	p := s.processing
	s.mu.Unlock()

	s.renderer.SetProcessed(nil)
	s.scheduler.SetSource(img)
	if img != nil {
		s.scheduler.Submit(p)
	}
	s.invalidate()
}

// LoadHeightmap reads a heightmap from disk and installs it.
func (s *Session) LoadHeightmap(path string) error {
	img, err := imageio.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load heightmap: %w", err)
	}
	s.SetHeightmap(img)
	return nil
}

// SetProcessing submits new pixel-content parameters to the scheduler.
// Invalid parameters are rejected before any job is admitted.
func (s *Session) SetProcessing(p pipeline.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	unchanged := p == s.processing
	s.processing = p
	s.mu.Unlock()
	if unchanged {
		return nil
	}
	s.scheduler.Submit(p)
	return nil
}

// Processing returns the current pixel-content parameters.
func (s *Session) Processing() pipeline.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// SetPlacement updates the heightmap placement. Purely geometric: no
// recompute, immediate repaint.
func (s *Session) SetPlacement(p geometry.Placement) {
	s.renderer.SetPlacement(p)
	s.invalidate()
}

// Placement returns the current heightmap placement.
func (s *Session) Placement() geometry.Placement {
	return s.renderer.Placement()
}

// SetShape updates the target coin outline. Purely geometric.
func (s *Session) SetShape(shape geometry.Shape) {
	s.renderer.SetShape(shape)
	s.invalidate()
}

// Shape returns the current coin outline.
func (s *Session) Shape() geometry.Shape {
	return s.renderer.Shape()
}

// Pan shifts the view by a drag delta in screen pixels.
func (s *Session) Pan(dxScreen, dyScreen float64) {
	s.renderer.Pan(dxScreen, dyScreen)
	s.invalidate()
}

// ZoomAt zooms about a screen point by the given number of wheel notches.
func (s *Session) ZoomAt(mx, my float64, notches int) {
	s.renderer.ZoomAt(mx, my, notches)
	s.invalidate()
}

// ResetView recenters the world origin at the canvas center with zoom 1.
func (s *Session) ResetView(width, height float64) {
	s.renderer.Reset(width, height)
	s.invalidate()
}

// Resize reports a display-size change and returns the backing-store size.
func (s *Session) Resize(displayW, displayH float64) (int, int) {
	return s.renderer.Resize(displayW, displayH)
}

// BeginDrag brackets the start of continuous manipulation.
func (s *Session) BeginDrag() { s.scheduler.BeginDrag() }

// EndDrag closes continuous manipulation and forces one final-quality
// recompute for the last submitted parameters.
func (s *Session) EndDrag() { s.scheduler.EndDrag() }

// Render paints the scene at the given pixel size.
func (s *Session) Render(w, h int) image.Image {
	return s.renderer.Render(w, h)
}

// View returns the current view transform.
func (s *Session) View() geometry.ViewTransform {
	return s.renderer.View()
}

// Metrics returns a diagnostics snapshot of the scheduler.
func (s *Session) Metrics() schedule.Snapshot {
	return s.scheduler.Metrics()
}

// ProcessedImage returns the most recently accepted processed heightmap, or
// nil when no recompute has completed yet.
func (s *Session) ProcessedImage() image.Image {
	p := s.renderer.Processed()
	if p == nil {
		return nil
	}
	return p.Image
}

// SaveProcessed writes the current processed heightmap to disk.
func (s *Session) SaveProcessed(path string, quality int) error {
	img := s.ProcessedImage()
	if img == nil {
		return fmt.Errorf("no processed image available yet")
	}
	return imageio.Save(img, path, quality)
}

// CoinParams assembles the mesh-generation parameters from the current
// shape and placement plus the physical thickness and relief depth.
func (s *Session) CoinParams(thicknessMM, reliefDepthMM float64) meshapi.CoinParams {
	shape := s.renderer.Shape()
	placement := s.renderer.Placement()
	return meshapi.CoinParams{
		Shape:           shapeName(shape),
		DiameterMM:      shape.SizeMM(),
		ThicknessMM:     thicknessMM,
		ReliefDepthMM:   reliefDepthMM,
		ScalePercent:    placement.ScalePercent,
		OffsetXPercent:  placement.OffsetXPercent,
		OffsetYPercent:  placement.OffsetYPercent,
		RotationDegrees: placement.RotationDegrees,
	}
}

// GenerateMesh encodes the current processed heightmap and drives the
// upload, generation and polling workflow through the orchestrator.
func (s *Session) GenerateMesh(ctx context.Context, o *generation.Orchestrator, thicknessMM, reliefDepthMM float64, onProgress func(generation.Progress)) ([]byte, error) {
	img := s.ProcessedImage()
	if img == nil {
		return nil, fmt.Errorf("no processed image available yet")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode heightmap: %w", err)
	}
	return o.Run(ctx, buf.Bytes(), s.CoinParams(thicknessMM, reliefDepthMM), onProgress)
}

// Close aborts outstanding work and releases the scheduler. The session
// must not be used afterwards.
func (s *Session) Close() {
	s.scheduler.Close()
}

// acceptResult installs an accepted recompute and notifies the host. The
// renderer discards results delivered out of acceptance order; only an
// installed result invalidates the view.
func (s *Session) acceptResult(r schedule.Result) {
	installed := s.renderer.SetProcessed(&render.Processed{
		Image:      r.Image,
		Tier:       r.Tier,
		Hash:       r.Params.Hash(),
		Generation: r.Generation,
	})
	if installed {
		s.invalidate()
	}
}

func (s *Session) reportError(p pipeline.Params, err error) {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	if cb != nil {
		cb(fmt.Errorf("recompute failed: %w", err))
	}
}

func (s *Session) invalidate() {
	s.mu.Lock()
	cb := s.onInvalidate
	s.mu.Unlock()
	if cb == nil {
		return
	}
	view := s.renderer.View()
	st := Status{
		Zoom: view.Zoom,
		PanX: view.PanX,
		PanY: view.PanY,
		FPS:  s.scheduler.Metrics().CurrentFPS,
	}
	if p := s.renderer.Processed(); p != nil {
		st.HasImage = true
		st.Tier = p.Tier
	}
	cb(st)
}

func shapeName(s geometry.Shape) string {
	switch s.(type) {
	case geometry.Circle:
		return "circle"
	case geometry.Square:
		return "square"
	case geometry.Hexagon:
		return "hexagon"
	case geometry.Octagon:
		return "octagon"
	}
	return "circle"
}
