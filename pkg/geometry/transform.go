// Package geometry implements the world/screen coordinate engine for the
// coin preview viewport: the view transform, adaptive ruler tick selection,
// coin outline generation, and heightmap placement math.
//
// World space is the fixed coordinate system the coin, grid, and image live
// in, with the coin centered at the origin. Screen space is canvas pixels.
// All functions here are pure; the view transform is a plain value.
package geometry

import "math"

// Zoom limits for a view transform. Out-of-range zoom requests are clamped,
// never rejected.
const (
	MinZoom = 0.1
	MaxZoom = 10.0
)

// ZoomStep is the multiplicative zoom change per wheel notch.
const ZoomStep = 1.1

// DefaultPixelsPerMM converts physical coin millimeters to world pixels.
const DefaultPixelsPerMM = 4.0

// Point is a location in world or screen space.
type Point struct {
	X float64
	Y float64
}

// ViewTransform maps world coordinates to screen coordinates: a world point
// is shifted by the pan offset, then scaled by the zoom. The zero value has
// zoom 0 and is unusable; start from DefaultView or CenteredView.
type ViewTransform struct {
	PanX float64
	PanY float64
	Zoom float64
}

// DefaultView places the world origin at the screen origin with zoom 1.
func DefaultView() ViewTransform {
	return ViewTransform{Zoom: 1}
}

// CenteredView places the world origin at the center of a canvas of the
// given pixel size, with zoom 1.
func CenteredView(width, height float64) ViewTransform {
	return ViewTransform{PanX: width / 2, PanY: height / 2, Zoom: 1}
}

// WorldToScreen projects a world point to screen pixels.
func (v ViewTransform) WorldToScreen(p Point) Point {
	return Point{
		X: (p.X + v.PanX) * v.Zoom,
		Y: (p.Y + v.PanY) * v.Zoom,
	}
}

// ScreenToWorld is the exact inverse of WorldToScreen.
func (v ViewTransform) ScreenToWorld(p Point) Point {
	return Point{
		X: p.X/v.Zoom - v.PanX,
		Y: p.Y/v.Zoom - v.PanY,
	}
}

// Panned returns the view shifted by a drag delta given in screen pixels.
// The delta is divided by the zoom so dragging tracks the pointer exactly at
// any magnification.
func (v ViewTransform) Panned(dxScreen, dyScreen float64) ViewTransform {
	v.PanX += dxScreen / v.Zoom
	v.PanY += dyScreen / v.Zoom
	return v
}

// ZoomedAt returns the view with its zoom multiplied by factor and the pan
// re-solved so the world point under the screen position (mx, my) stays
// under it. The resulting zoom is clamped to [MinZoom, MaxZoom].
func (v ViewTransform) ZoomedAt(mx, my, factor float64) ViewTransform {
	world := v.ScreenToWorld(Point{X: mx, Y: my})
	v.Zoom = ClampZoom(v.Zoom * factor)
	v.PanX = mx/v.Zoom - world.X
	v.PanY = my/v.Zoom - world.Y
	return v
}

// ClampZoom forces a zoom level into [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// Valid reports whether every component is finite and the zoom is positive.
// Pointer handlers use it to reject garbage input while keeping the last
// valid transform.
func (v ViewTransform) Valid() bool {
	return isFinite(v.PanX) && isFinite(v.PanY) && isFinite(v.Zoom) && v.Zoom > 0
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
