package geometry

import "math"

// Placement positions the heightmap relative to the coin. Scale and offsets
// are percentages of the coin size; rotation is degrees, positive turning
// clockwise on screen. Offsets carry no hard bounds: an image placed fully
// outside the coin is valid and must still render.
type Placement struct {
	ScalePercent    float64
	OffsetXPercent  float64
	OffsetYPercent  float64
	RotationDegrees float64
}

// DefaultPlacement fills the coin at 100% scale, centered and unrotated.
func DefaultPlacement() Placement {
	return Placement{ScalePercent: 100}
}

// CenterWorld returns the image center in world pixels for a coin of the
// given size. Offsets are percentages of the coin size, so the result is a
// pure world-space position independent of pan and zoom.
func (p Placement) CenterWorld(sizeMM, pixelsPerMM float64) Point {
	base := sizeMM * pixelsPerMM
	return Point{
		X: p.OffsetXPercent / 100 * base,
		Y: p.OffsetYPercent / 100 * base,
	}
}

// FitSize returns the drawn image size in world pixels. The longest image
// side spans the coin size scaled by ScalePercent; the short side keeps the
// source aspect ratio. Degenerate inputs yield a zero size.
func (p Placement) FitSize(imgW, imgH int, sizeMM, pixelsPerMM float64) (w, h float64) {
	long := sizeMM * pixelsPerMM * p.ScalePercent / 100
	if long <= 0 || !isFinite(long) || imgW <= 0 || imgH <= 0 {
		return 0, 0
	}
	if imgW >= imgH {
		return long, long * float64(imgH) / float64(imgW)
	}
	return long * float64(imgW) / float64(imgH), long
}

// RotatedBounds returns the axis-aligned bounding size of a w x h rectangle
// rotated by the given angle in degrees. Drawing a pre-rotated raster at
// this size, centered on the placement point, is equivalent to translating
// the image by its offset and then rotating it about its own center.
func RotatedBounds(w, h, degrees float64) (float64, float64) {
	rad := degrees * math.Pi / 180
	sin := math.Abs(math.Sin(rad))
	cos := math.Abs(math.Cos(rad))
	return w*cos + h*sin, w*sin + h*cos
}
