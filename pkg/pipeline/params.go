// Package pipeline implements the heightmap processing stages: grayscale
// conversion, brightness/contrast, gamma and inversion. Every stage boundary
// checks the context so a superseded job stops without producing a partial
// result.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Method selects the grayscale conversion. The set is closed: the grayscale
// stage switches exhaustively over it, so adding a method without handling
// it everywhere fails to compile.
type Method int

const (
	// Luminosity weights channels by perceived brightness (0.21R 0.72G 0.07B).
	Luminosity Method = iota
	// Average takes the arithmetic mean of the channels.
	Average
	// Lightness averages the largest and smallest channel.
	Lightness
)

// String returns the method name used in config files and the UI.
func (m Method) String() string {
	switch m {
	case Luminosity:
		return "luminosity"
	case Average:
		return "average"
	case Lightness:
		return "lightness"
	}
	return "unknown"
}

// ParseMethod converts a config/UI name back to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "luminosity":
		return Luminosity, nil
	case "average":
		return Average, nil
	case "lightness":
		return Lightness, nil
	}
	return Luminosity, fmt.Errorf("unknown grayscale method %q", s)
}

// Params are the pixel-content processing parameters. Two equal Params
// values always produce the same output for the same input, so the scheduler
// compares them to detect no-op changes and stale results.
type Params struct {
	Grayscale  Method
	Brightness int
	Contrast   int
	Gamma      float64
	Invert     bool
}

// DefaultParams returns neutral processing: luminosity grayscale, no
// adjustment.
func DefaultParams() Params {
	return Params{Grayscale: Luminosity, Gamma: 1.0}
}

// Validate checks every field and reports the first violation.
func (p Params) Validate() error {
	switch p.Grayscale {
	case Luminosity, Average, Lightness:
	default:
		return fmt.Errorf("grayscale method must be luminosity, average or lightness")
	}
	if p.Brightness < -100 || p.Brightness > 100 {
		return fmt.Errorf("brightness must be between -100 and 100")
	}
	if p.Contrast < -100 || p.Contrast > 100 {
		return fmt.Errorf("contrast must be between -100 and 100")
	}
	if p.Gamma <= 0.1 || p.Gamma >= 3.0 {
		return fmt.Errorf("gamma must be between 0.1 and 3.0 exclusive")
	}
	return nil
}

// Hash returns a stable identity key for the parameter state. The scheduler
// keys jobs and results by it to reject stale completions.
func (p Params) Hash() string {
	var b strings.Builder
	b.WriteString(p.Grayscale.String())
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(p.Brightness))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(p.Contrast))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(p.Gamma, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(p.Invert))
	return b.String()
}
