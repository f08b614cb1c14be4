// Package imageio loads and saves heightmap rasters. WebP is handled
// explicitly (encode via chai2010, decode with an x/image fallback); other
// formats go through the registered decoders.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/mintforge/coin-preview/internal/utils"
)

// Load reads a heightmap from a file path with WebP support.
func Load(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(utils.FileExtension(path), "webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err == nil {
			if img, _, err := image.Decode(f); err == nil {
				return img, nil
			}
		}
	} else {
		if _, err := f.Seek(0, 0); err == nil {
			if img, _, err := image.Decode(f); err == nil {
				return img, nil
			}
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// Decode reads a heightmap from a reader, trying the registered decoders
// first and explicit WebP afterwards.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format")
}

// Save writes an image to path, choosing the encoder by file extension.
// WebP saves lossless; JPEG uses the given quality; everything else
// defaults to PNG behavior via the imaging encoders.
func Save(img image.Image, path string, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	switch strings.ToLower(utils.FileExtension(path)) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: true, Quality: float32(quality)})
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return imaging.Save(img, path)
	}
}
