package render

import (
	"image"
	"image/color"
	"math"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mintforge/coin-preview/pkg/geometry"
)

// Painting constants. Rulers live in screen space along the top and left
// edges; the overlay dims everything outside the coin outline.
const (
	rulerBandPx  = 22.0
	overlayAlpha = 0.3
)

// Render paints the full scene back to front: background, grid with origin
// axes, placed heightmap, coin clip overlay and boundary, rulers. A missing
// processed image is skipped, never waited for.
func (r *Renderer) Render(w, h int) image.Image {
	r.mu.Lock()
	view := r.view
	shape := r.shape
	placement := r.placement
	ppmm := r.pixelsPerMM
	r.mu.Unlock()

	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	dc := gg.NewContext(w, h)
	fw, fh := float64(w), float64(h)

	// Background.
	dc.SetRGB(0.13, 0.13, 0.15)
	dc.DrawRectangle(0, 0, fw, fh)
	dc.Fill()

	spacingMM := geometry.TickSpacingMM(ppmm, view.Zoom)
	paintGrid(dc, view, spacingMM*ppmm, fw, fh)
	r.paintHeightmap(dc, view, shape, placement, ppmm)
	paintShapeOverlay(dc, view, shape, ppmm, fw, fh)
	paintRulerBands(dc, view, spacingMM, ppmm, fw, fh)

	out := dc.Image()
	if rgba, ok := out.(*image.RGBA); ok {
		drawRulerLabels(rgba, view, spacingMM, ppmm, w, h)
	}
	return out
}

// paintGrid draws vertical and horizontal grid lines at the tick spacing,
// with the world axes emphasized.
func paintGrid(dc *gg.Context, view geometry.ViewTransform, stepWorld, w, h float64) {
	if stepWorld <= 0 {
		return
	}
	tl := view.ScreenToWorld(geometry.Point{X: 0, Y: 0})
	br := view.ScreenToWorld(geometry.Point{X: w, Y: h})

	for wx := math.Floor(tl.X/stepWorld) * stepWorld; wx <= br.X+stepWorld; wx += stepWorld {
		sx := view.WorldToScreen(geometry.Point{X: wx}).X
		dc.DrawLine(sx, 0, sx, h)
	}
	for wy := math.Floor(tl.Y/stepWorld) * stepWorld; wy <= br.Y+stepWorld; wy += stepWorld {
		sy := view.WorldToScreen(geometry.Point{Y: wy}).Y
		dc.DrawLine(0, sy, w, sy)
	}
	dc.SetRGBA(1, 1, 1, 0.08)
	dc.SetLineWidth(1)
	dc.Stroke()

	origin := view.WorldToScreen(geometry.Point{})
	dc.DrawLine(origin.X, 0, origin.X, h)
	dc.DrawLine(0, origin.Y, w, origin.Y)
	dc.SetRGBA(1, 1, 1, 0.25)
	dc.SetLineWidth(1.5)
	dc.Stroke()
}

// paintHeightmap composites the processed image: drawn centered at its
// world-space placement point, scaled to the coin-relative fit size, with
// the rotation pre-baked into the raster. Translating first and rotating
// the raster about its own center afterwards keeps offset and rotation
// composing predictably: the image orbits its offset position, not the coin
// center.
func (r *Renderer) paintHeightmap(dc *gg.Context, view geometry.ViewTransform, shape geometry.Shape, placement geometry.Placement, ppmm float64) {
	proc := r.processed.Load()
	if proc == nil || proc.Image == nil {
		return
	}
	src := proc.Image
	b := src.Bounds()
	fitW, fitH := placement.FitSize(b.Dx(), b.Dy(), shape.SizeMM(), ppmm)
	if fitW <= 0 || fitH <= 0 {
		return
	}

	rotated := r.rot.get(src, placement.RotationDegrees)
	boundsW, boundsH := geometry.RotatedBounds(fitW, fitH, placement.RotationDegrees)

	center := view.WorldToScreen(placement.CenterWorld(shape.SizeMM(), ppmm))
	dstW := boundsW * view.Zoom
	dstH := boundsH * view.Zoom
	if dstW < 1 || dstH < 1 {
		return
	}

	dc.DrawImageEx(gg.ImageBufFromImage(rotated), gg.DrawImageOptions{
		X:             center.X - dstW/2,
		Y:             center.Y - dstH/2,
		DstWidth:      dstW,
		DstHeight:     dstH,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
	})
}

// paintShapeOverlay dims everything outside the coin outline with a single
// even-odd fill (outer rect plus shape subpath), then strokes the boundary.
func paintShapeOverlay(dc *gg.Context, view geometry.ViewTransform, shape geometry.Shape, ppmm, w, h float64) {
	outline := geometry.BoundaryOf(shape, ppmm)

	dc.Push()
	dc.SetFillRule(gg.FillRuleEvenOdd)
	dc.DrawRectangle(0, 0, w, h)
	dc.NewSubPath()
	addOutlinePath(dc, view, outline)
	dc.SetRGBA(0, 0, 0, overlayAlpha)
	dc.Fill()
	dc.Pop()

	addOutlinePath(dc, view, outline)
	dc.SetRGBA(0.95, 0.8, 0.3, 0.9)
	dc.SetLineWidth(1.5)
	dc.Stroke()
}

func addOutlinePath(dc *gg.Context, view geometry.ViewTransform, outline geometry.Outline) {
	if outline.IsCircle {
		c := view.WorldToScreen(geometry.Point{})
		dc.DrawCircle(c.X, c.Y, outline.Radius*view.Zoom)
		return
	}
	if len(outline.Vertices) == 0 {
		return
	}
	first := view.WorldToScreen(outline.Vertices[0])
	dc.MoveTo(first.X, first.Y)
	for _, v := range outline.Vertices[1:] {
		p := view.WorldToScreen(v)
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
}

// paintRulerBands draws the ruler backgrounds and tick marks along the top
// and left canvas edges. Rulers live in screen space: they never pan or
// zoom, only their tick positions follow the view.
func paintRulerBands(dc *gg.Context, view geometry.ViewTransform, spacingMM, ppmm, w, h float64) {
	dc.SetRGBA(0.09, 0.09, 0.1, 0.92)
	dc.DrawRectangle(0, 0, w, rulerBandPx)
	dc.DrawRectangle(0, 0, rulerBandPx, h)
	dc.Fill()

	stepWorld := spacingMM * ppmm
	if stepWorld <= 0 {
		return
	}
	tl := view.ScreenToWorld(geometry.Point{X: 0, Y: 0})
	br := view.ScreenToWorld(geometry.Point{X: w, Y: h})

	for wx := math.Floor(tl.X/stepWorld) * stepWorld; wx <= br.X+stepWorld; wx += stepWorld {
		sx := view.WorldToScreen(geometry.Point{X: wx}).X
		dc.DrawLine(sx, rulerBandPx-6, sx, rulerBandPx)
	}
	for wy := math.Floor(tl.Y/stepWorld) * stepWorld; wy <= br.Y+stepWorld; wy += stepWorld {
		sy := view.WorldToScreen(geometry.Point{Y: wy}).Y
		dc.DrawLine(rulerBandPx-6, sy, rulerBandPx, sy)
	}
	dc.SetRGBA(0.8, 0.8, 0.8, 0.9)
	dc.SetLineWidth(1)
	dc.Stroke()
}

// drawRulerLabels writes millimeter labels next to the ruler ticks. Labels
// are rasterized directly onto the output buffer with the fixed 7x13 face.
func drawRulerLabels(dst *image.RGBA, view geometry.ViewTransform, spacingMM, ppmm float64, w, h int) {
	stepWorld := spacingMM * ppmm
	if stepWorld <= 0 {
		return
	}
	src := image.NewUniform(color.RGBA{R: 210, G: 210, B: 210, A: 255})
	tl := view.ScreenToWorld(geometry.Point{X: 0, Y: 0})
	br := view.ScreenToWorld(geometry.Point{X: float64(w), Y: float64(h)})

	for wx := math.Floor(tl.X/stepWorld) * stepWorld; wx <= br.X+stepWorld; wx += stepWorld {
		sx := view.WorldToScreen(geometry.Point{X: wx}).X
		if sx < rulerBandPx {
			continue
		}
		d := &font.Drawer{Dst: dst, Src: src, Face: basicfont.Face7x13,
			Dot: fixed.P(int(sx)+3, 12)}
		d.DrawString(formatMM(wx / ppmm))
	}
	for wy := math.Floor(tl.Y/stepWorld) * stepWorld; wy <= br.Y+stepWorld; wy += stepWorld {
		sy := view.WorldToScreen(geometry.Point{Y: wy}).Y
		if sy < rulerBandPx {
			continue
		}
		d := &font.Drawer{Dst: dst, Src: src, Face: basicfont.Face7x13,
			Dot: fixed.P(3, int(sy)-3)}
		d.DrawString(formatMM(wy / ppmm))
	}
}

func formatMM(mm float64) string {
	return strconv.FormatFloat(mm, 'g', 4, 64)
}

// rotationCache memoizes the last pre-rotated raster. Consecutive paints at
// the same angle (the common case between parameter changes) reuse it.
type rotationCache struct {
	mu      sync.Mutex
	src     *image.NRGBA
	angle   float64
	rotated *image.NRGBA
}

// get returns src rotated clockwise by deg degrees, expanded to its
// bounding box with transparent fill.
func (c *rotationCache) get(src *image.NRGBA, deg float64) *image.NRGBA {
	if deg == 0 {
		return src
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.src == src && c.angle == deg && c.rotated != nil {
		return c.rotated
	}
	// imaging rotates counter-clockwise for positive angles; screen-space
	// clockwise needs the sign flipped.
	c.rotated = imaging.Rotate(src, -deg, color.Transparent)
	c.src = src
	c.angle = deg
	return c.rotated
}
