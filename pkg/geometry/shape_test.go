package geometry

import (
	"math"
	"testing"
)

func TestPolygonVertexCounts(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  int
	}{
		{"hexagon", Hexagon{DiameterMM: 30}, 6},
		{"octagon", Octagon{DiameterMM: 30}, 8},
		{"square", Square{SideMM: 30}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := BoundaryOf(tt.shape, 4)
			if out.IsCircle {
				t.Fatal("expected a polygon outline")
			}
			if len(out.Vertices) != tt.want {
				t.Errorf("got %d vertices, want %d", len(out.Vertices), tt.want)
			}
		})
	}
}

func TestPolygonVerticesEquidistant(t *testing.T) {
	for _, shape := range []Shape{Hexagon{DiameterMM: 30}, Octagon{DiameterMM: 30}} {
		out := BoundaryOf(shape, 4)
		wantR := 30.0 * 4 / 2
		for i, v := range out.Vertices {
			r := math.Hypot(v.X, v.Y)
			if math.Abs(r-wantR) > 1e-9 {
				t.Errorf("%T vertex %d at radius %v, want %v", shape, i, r, wantR)
			}
		}
	}
}

func TestPolygonVertexZeroOnPositiveXAxis(t *testing.T) {
	out := BoundaryOf(Hexagon{DiameterMM: 30}, 4)
	v0 := out.Vertices[0]
	if math.Abs(v0.Y) > 1e-9 || v0.X <= 0 {
		t.Errorf("vertex 0 at (%v,%v), want it on the positive X axis", v0.X, v0.Y)
	}
}

func TestSquareAxisAligned(t *testing.T) {
	out := BoundaryOf(Square{SideMM: 30}, 4)
	half := 30.0 * 4 / 2
	for i, v := range out.Vertices {
		if math.Abs(math.Abs(v.X)-half) > 1e-9 || math.Abs(math.Abs(v.Y)-half) > 1e-9 {
			t.Errorf("vertex %d at (%v,%v), want corners at +-%v", i, v.X, v.Y, half)
		}
	}
}

func TestCircleOutline(t *testing.T) {
	out := BoundaryOf(Circle{DiameterMM: 30}, 4)
	if !out.IsCircle {
		t.Fatal("expected a circle outline")
	}
	if out.Radius != 60 {
		t.Errorf("radius = %v, want 60", out.Radius)
	}
}

func TestZeroSizeShapesDegenerate(t *testing.T) {
	shapes := []Shape{
		Circle{},
		Square{},
		Hexagon{},
		Octagon{},
		Circle{DiameterMM: -5},
	}
	for _, s := range shapes {
		out := BoundaryOf(s, 4)
		if out.IsCircle {
			if out.Radius != 0 {
				t.Errorf("%T: radius = %v, want 0", s, out.Radius)
			}
			continue
		}
		for _, v := range out.Vertices {
			if v.X != 0 || v.Y != 0 {
				t.Errorf("%T: vertex (%v,%v), want all at origin", s, v.X, v.Y)
			}
		}
	}
}

func TestShapeSizeMM(t *testing.T) {
	if got := (Circle{DiameterMM: 25}).SizeMM(); got != 25 {
		t.Errorf("Circle.SizeMM() = %v, want 25", got)
	}
	if got := (Square{SideMM: 18}).SizeMM(); got != 18 {
		t.Errorf("Square.SizeMM() = %v, want 18", got)
	}
}
