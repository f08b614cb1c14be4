package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Tier is the quality level of a recompute job.
type Tier int

const (
	// Preview trades resolution for latency: the input is downscaled before
	// the stages run and the result is upscaled back afterwards.
	Preview Tier = iota
	// Final processes at full resolution.
	Final
)

// String returns the tier name for logs and status display.
func (t Tier) String() string {
	if t == Final {
		return "final"
	}
	return "preview"
}

// PreviewMaxSide is the default cap on the longest side of a preview-tier
// input.
const PreviewMaxSide = 400

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Apply runs the processing stages over src and returns a fresh buffer; src
// is never modified. The context is checked between every stage, and at
// preview tier around the resizes, so cancellation stops the job at the next
// boundary with ctx.Err() and no partial result.
func Apply(ctx context.Context, src image.Image, p Params, tier Tier) (*image.NRGBA, error) {
	return ApplyWithLimit(ctx, src, p, tier, PreviewMaxSide)
}

// ApplyWithLimit is Apply with a custom preview-tier size cap. A
// non-positive cap falls back to PreviewMaxSide.
func ApplyWithLimit(ctx context.Context, src image.Image, p Params, tier Tier, previewMaxSide int) (*image.NRGBA, error) {
	if previewMaxSide <= 0 {
		previewMaxSide = PreviewMaxSide
	}
	if src == nil {
		return nil, &StageError{Stage: "decode", Err: fmt.Errorf("nil source image")}
	}
	if err := p.Validate(); err != nil {
		return nil, &StageError{Stage: "validate", Err: err}
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &StageError{Stage: "decode", Err: fmt.Errorf("empty source image %dx%d", b.Dx(), b.Dy())}
	}

	img := imaging.Clone(src)
	origW, origH := b.Dx(), b.Dy()

	if tier == Preview {
		img = downscale(img, previewMaxSide)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img = grayscale(img, p.Grayscale)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.Brightness != 0 {
		img = imaging.AdjustBrightness(img, float64(p.Brightness))
	}
	if p.Contrast != 0 {
		img = imaging.AdjustContrast(img, float64(p.Contrast))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.Gamma != 1.0 {
		img = imaging.AdjustGamma(img, p.Gamma)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.Invert {
		img = imaging.Invert(img)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if tier == Preview && (img.Bounds().Dx() != origW || img.Bounds().Dy() != origH) {
		img = imaging.Resize(img, origW, origH, imaging.Box)
	}
	return img, nil
}

// downscale caps the longest side at maxSide, preserving aspect ratio.
// Images already within the cap pass through untouched.
func downscale(img *image.NRGBA, maxSide int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxSide, 0, imaging.Box)
	}
	return imaging.Resize(img, 0, maxSide, imaging.Box)
}

func grayscale(img *image.NRGBA, m Method) *image.NRGBA {
	switch m {
	case Luminosity:
		return imaging.Grayscale(img)
	case Average:
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			v := uint8((int(c.R) + int(c.G) + int(c.B)) / 3)
			return color.NRGBA{R: v, G: v, B: v, A: c.A}
		})
	case Lightness:
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			v := uint8((int(maxChannel(c)) + int(minChannel(c))) / 2)
			return color.NRGBA{R: v, G: v, B: v, A: c.A}
		})
	}
	return img
}

func maxChannel(c color.NRGBA) uint8 {
	m := c.R
	if c.G > m {
		m = c.G
	}
	if c.B > m {
		m = c.B
	}
	return m
}

func minChannel(c color.NRGBA) uint8 {
	m := c.R
	if c.G < m {
		m = c.G
	}
	if c.B < m {
		m = c.B
	}
	return m
}
