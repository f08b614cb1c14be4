package geometry

import "math"

// Shape is the target coin outline. The variant set is closed: BoundaryOf
// switches exhaustively over it, so a new variant fails to compile until
// every consumer handles it. The scalar on each variant is the coin size in
// millimeters: the diameter for round shapes, the side length for the
// square.
type Shape interface {
	// SizeMM returns the coin size scalar in millimeters.
	SizeMM() float64

	sealed()
}

// Circle is a round coin of the given diameter.
type Circle struct {
	DiameterMM float64
}

// Square is an axis-aligned square coin of the given side length.
type Square struct {
	SideMM float64
}

// Hexagon is a six-sided coin; DiameterMM spans opposite vertices.
type Hexagon struct {
	DiameterMM float64
}

// Octagon is an eight-sided coin; DiameterMM spans opposite vertices.
type Octagon struct {
	DiameterMM float64
}

func (c Circle) SizeMM() float64  { return c.DiameterMM }
func (s Square) SizeMM() float64  { return s.SideMM }
func (h Hexagon) SizeMM() float64 { return h.DiameterMM }
func (o Octagon) SizeMM() float64 { return o.DiameterMM }

func (Circle) sealed()  {}
func (Square) sealed()  {}
func (Hexagon) sealed() {}
func (Octagon) sealed() {}

// Outline is a shape boundary in world pixels, centered at the world
// origin. Either IsCircle is set with a Radius, or Vertices holds a closed
// polygon. A degenerate (zero size) outline has Radius 0 or all-zero
// vertices; it never fails.
type Outline struct {
	IsCircle bool
	Radius   float64
	Vertices []Point
}

// BoundaryOf generates the outline for a shape at the given view scale.
// Polygon vertices sit at angles i*2pi/N starting at angle 0, so vertex 0
// lies on the positive X axis (pointy-right convention). Negative sizes are
// treated as zero.
func BoundaryOf(s Shape, pixelsPerMM float64) Outline {
	sizePx := s.SizeMM() * pixelsPerMM
	if sizePx < 0 || !isFinite(sizePx) {
		sizePx = 0
	}
	half := sizePx / 2

	switch s.(type) {
	case Circle:
		return Outline{IsCircle: true, Radius: half}
	case Square:
		return Outline{Vertices: []Point{
			{X: -half, Y: -half},
			{X: half, Y: -half},
			{X: half, Y: half},
			{X: -half, Y: half},
		}}
	case Hexagon:
		return Outline{Vertices: regularVertices(6, half)}
	case Octagon:
		return Outline{Vertices: regularVertices(8, half)}
	}
	return Outline{}
}

func regularVertices(n int, radius float64) []Point {
	pts := make([]Point, n)
	for i := range pts {
		a := float64(i) * 2 * math.Pi / float64(n)
		pts[i] = Point{X: radius * math.Cos(a), Y: radius * math.Sin(a)}
	}
	return pts
}
