package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// DefaultThreshold is the changed-pixel fraction above which a window
// counts as changed.
const DefaultThreshold = 0.01

// per-channel tolerance in 16-bit color space
const tolerance uint32 = 256

// Diff compares two images of equal size. It returns the fraction of
// differing pixels and an image with differences in red over a dimmed copy
// of current.
func Diff(baseline, current image.Image) (float64, *image.RGBA, error) {
	bb, cb := baseline.Bounds(), current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return 1, nil, fmt.Errorf("size changed: baseline %dx%d, current %dx%d", bb.Dx(), bb.Dy(), cb.Dx(), cb.Dy())
	}

	out := image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	total := bb.Dx() * bb.Dy()
	if total == 0 {
		return 0, out, nil
	}
	changed := 0
	for y := 0; y < bb.Dy(); y++ {
		for x := 0; x < bb.Dx(); x++ {
			c := current.At(cb.Min.X+x, cb.Min.Y+y)
			if colorsEqual(baseline.At(bb.Min.X+x, bb.Min.Y+y), c) {
				r, g, b, a := c.RGBA()
				out.Set(x, y, color.RGBA{R: uint8(r >> 9), G: uint8(g >> 9), B: uint8(b >> 9), A: uint8(a >> 8)})
				continue
			}
			out.Set(x, y, color.RGBA{R: 255, A: 255})
			changed++
		}
	}
	return float64(changed) / float64(total), out, nil
}

// DiffPNG decodes both PNGs and calls Diff.
func DiffPNG(baseline, current []byte) (float64, *image.RGBA, error) {
	b, err := png.Decode(bytes.NewReader(baseline))
	if err != nil {
		return 0, nil, fmt.Errorf("decode baseline: %w", err)
	}
	c, err := png.Decode(bytes.NewReader(current))
	if err != nil {
		return 0, nil, fmt.Errorf("decode current: %w", err)
	}
	return Diff(b, c)
}

func colorsEqual(c1, c2 color.Color) bool {
	r1, g1, b1, a1 := c1.RGBA()
	r2, g2, b2, a2 := c2.RGBA()
	return absDiff(r1, r2) <= tolerance &&
		absDiff(g1, g2) <= tolerance &&
		absDiff(b1, b2) <= tolerance &&
		absDiff(a1, a2) <= tolerance
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func describe(fraction float64) string {
	percent := fraction * 100
	switch {
	case percent == 0:
		return "No visual changes"
	case percent < 0.1:
		return "Minimal changes (< 0.1%)"
	case percent < 1:
		return fmt.Sprintf("Minor changes (%.2f%%)", percent)
	case percent < 5:
		return fmt.Sprintf("Moderate changes (%.2f%%)", percent)
	default:
		return fmt.Sprintf("Significant changes (%.2f%%)", percent)
	}
}
