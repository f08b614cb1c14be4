package geometry

import "math"

// TargetTickPx is the desired on-screen gap between ruler ticks.
const TargetTickPx = 60.0

// fallbackTickMM is returned when the view scale is degenerate.
const fallbackTickMM = 10.0

var tickMantissas = [...]float64{1, 2, 5}

// TickSpacingMM picks the ruler tick spacing in millimeters from the
// sequence {1, 2, 5} x 10^n, choosing the candidate whose on-screen gap
// (spacing * pixelsPerMM * zoom) lands closest to TargetTickPx. Exact ties
// resolve to the larger spacing so rulers carry fewer labels.
func TickSpacingMM(pixelsPerMM, zoom float64) float64 {
	pxPerMM := pixelsPerMM * zoom
	if !isFinite(pxPerMM) || pxPerMM <= 0 {
		return fallbackTickMM
	}

	best := fallbackTickMM
	bestDev := math.Inf(1)
	for exp := -3; exp <= 5; exp++ {
		scale := math.Pow(10, float64(exp))
		for _, m := range tickMantissas {
			mm := m * scale
			dev := math.Abs(mm*pxPerMM - TargetTickPx)
			// <= keeps the later, larger candidate on an exact tie.
			if dev <= bestDev {
				bestDev = dev
				best = mm
			}
		}
	}
	return best
}
