// Package render implements the viewport renderer: it owns the view
// transform, turns pointer gestures into pan/zoom mutations, and paints the
// full scene (grid, heightmap, coin outline, rulers) into an offscreen
// raster on demand.
package render

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mintforge/coin-preview/internal/logging"
	"github.com/mintforge/coin-preview/pkg/geometry"
	"github.com/mintforge/coin-preview/pkg/pipeline"
)

// Processed is an immutable processed-heightmap snapshot. The renderer keeps
// exactly one, swapped atomically, so a paint never observes a partially
// written result. Generation carries the scheduler's acceptance order;
// SetProcessed never lets an older acceptance replace a newer one.
type Processed struct {
	Image      *image.NRGBA
	Tier       pipeline.Tier
	Hash       string
	Generation uint64
}

// Config holds the renderer's construction parameters.
type Config struct {
	// PixelsPerMM converts coin millimeters to world pixels. Zero means
	// geometry.DefaultPixelsPerMM.
	PixelsPerMM float64
	// DevicePixelRatio scales display size to backing-store resolution.
	// Zero means 1.
	DevicePixelRatio float64
	// Shape is the initial coin outline. Nil means Circle(30).
	Shape geometry.Shape
	// Placement is the initial heightmap placement.
	Placement geometry.Placement
	// Logger receives debug records; nil stays silent.
	Logger *slog.Logger
}

// DefaultConfig returns the production renderer settings.
func DefaultConfig() Config {
	return Config{
		PixelsPerMM:      geometry.DefaultPixelsPerMM,
		DevicePixelRatio: 1,
		Shape:            geometry.Circle{DiameterMM: 30},
		Placement:        geometry.DefaultPlacement(),
	}
}

// Renderer owns the view transform and paints the scene. Geometry mutations
// (pan, zoom, shape, placement) are synchronous and cheap; the processed
// heightmap arrives asynchronously through SetProcessed.
type Renderer struct {
	mu          sync.Mutex
	view        geometry.ViewTransform
	shape       geometry.Shape
	placement   geometry.Placement
	pixelsPerMM float64
	dpr         float64
	sized       bool

	processed atomic.Pointer[Processed]
	rot       rotationCache
	log       *slog.Logger
}

// New creates a renderer with the default configuration.
func New() *Renderer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a renderer with custom settings. Zero-valued fields
// fall back to their defaults.
func NewWithConfig(cfg Config) *Renderer {
	def := DefaultConfig()
	if cfg.PixelsPerMM <= 0 {
		cfg.PixelsPerMM = def.PixelsPerMM
	}
	if cfg.DevicePixelRatio <= 0 {
		cfg.DevicePixelRatio = def.DevicePixelRatio
	}
	if cfg.Shape == nil {
		cfg.Shape = def.Shape
	}
	if cfg.Placement == (geometry.Placement{}) {
		cfg.Placement = def.Placement
	}
	return &Renderer{
		view:        geometry.DefaultView(),
		shape:       cfg.Shape,
		placement:   cfg.Placement,
		pixelsPerMM: cfg.PixelsPerMM,
		dpr:         cfg.DevicePixelRatio,
		log:         logging.Or(cfg.Logger),
	}
}

// View returns the current view transform.
func (r *Renderer) View() geometry.ViewTransform {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// SetView replaces the view transform. Non-finite or non-positive-zoom
// input is rejected and the last valid transform is retained.
func (r *Renderer) SetView(v geometry.ViewTransform) error {
	if !v.Valid() {
		return fmt.Errorf("invalid view transform %+v: components must be finite with positive zoom", v)
	}
	v.Zoom = geometry.ClampZoom(v.Zoom)
	r.mu.Lock()
	r.view = v
	r.mu.Unlock()
	return nil
}

// Pan shifts the view by a drag delta given in screen pixels.
func (r *Renderer) Pan(dxScreen, dyScreen float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.view.Panned(dxScreen, dyScreen)
	if !next.Valid() {
		r.log.Debug("pan rejected", "dx", dxScreen, "dy", dyScreen)
		return
	}
	r.view = next
}

// ZoomAt multiplies the zoom by geometry.ZoomStep per wheel notch,
// keeping the world point under the screen position (mx, my) fixed.
// Negative notches zoom out.
func (r *Renderer) ZoomAt(mx, my float64, notches int) {
	factor := 1.0
	for i := 0; i < notches; i++ {
		factor *= geometry.ZoomStep
	}
	for i := 0; i > notches; i-- {
		factor /= geometry.ZoomStep
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.view.ZoomedAt(mx, my, factor)
	if !next.Valid() {
		r.log.Debug("zoom rejected", "mx", mx, "my", my, "notches", notches)
		return
	}
	r.view = next
}

// Reset recenters the world origin at the canvas center with zoom 1.
func (r *Renderer) Reset(width, height float64) {
	r.mu.Lock()
	r.view = geometry.CenteredView(width, height)
	r.mu.Unlock()
}

// Resize reports a display-size change and returns the backing-store pixel
// size (display size times device pixel ratio). The first resize centers
// the view; later resizes preserve the user's pan and zoom.
func (r *Renderer) Resize(displayW, displayH float64) (int, int) {
	w := int(displayW*r.dpr + 0.5)
	h := int(displayH*r.dpr + 0.5)
	r.mu.Lock()
	if !r.sized && w > 0 && h > 0 {
		r.view = geometry.CenteredView(float64(w), float64(h))
		r.sized = true
	}
	r.mu.Unlock()
	return w, h
}

// SetShape replaces the coin outline.
func (r *Renderer) SetShape(s geometry.Shape) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.shape = s
	r.mu.Unlock()
}

// Shape returns the current coin outline.
func (r *Renderer) Shape() geometry.Shape {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shape
}

// SetPlacement replaces the heightmap placement.
func (r *Renderer) SetPlacement(p geometry.Placement) {
	r.mu.Lock()
	r.placement = p
	r.mu.Unlock()
}

// Placement returns the current heightmap placement.
func (r *Renderer) Placement() geometry.Placement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.placement
}

// PixelsPerMM returns the view-scale constant.
func (r *Renderer) PixelsPerMM() float64 {
	return r.pixelsPerMM
}

// SetProcessed swaps in a new processed heightmap snapshot and reports
// whether it was installed. Results are delivered on worker goroutines and
// can arrive out of acceptance order; a snapshot older than the installed
// one is discarded so paint never regresses to a superseded result. Pass nil
// to clear the image (for example when a new source is loaded).
func (r *Renderer) SetProcessed(p *Processed) bool {
	if p == nil {
		r.processed.Store(nil)
		return true
	}
	for {
		cur := r.processed.Load()
		if cur != nil && cur.Generation > p.Generation {
			r.log.Debug("processed snapshot discarded",
				"generation", p.Generation, "installed", cur.Generation)
			return false
		}
		if r.processed.CompareAndSwap(cur, p) {
			return true
		}
	}
}

// Processed returns the current processed snapshot, or nil when no
// recompute has completed yet.
func (r *Renderer) Processed() *Processed {
	return r.processed.Load()
}
