// Package surface provides cropping surfaces: a headless rectangle that the
// CLI, HTTP tool and desktop canvas drive, plus smart initial placement.
package surface

import (
	"image"
	"math"

	"github.com/dixieflatline76/InstaRatio/pkg/preset"
)

// Fit returns the initial crop box for an image of the given size: frac of
// each dimension, shrunk to the ratio and centred.
func Fit(size image.Point, r preset.Ratio, frac float64) image.Rectangle {
	if size.X <= 0 || size.Y <= 0 {
		return image.Rectangle{}
	}
	if frac <= 0 || frac > 1 {
		frac = 1
	}

	w := float64(size.X) * frac
	h := float64(size.Y) * frac
	if v, ok := r.Value(); ok {
		if h*v > w {
			h = w / v
		} else {
			w = h * v
		}
	}
	return centred(size, image.Pt(size.X/2, size.Y/2), w, h)
}

// Constrain reshapes rect to ratio about its centre, keeping its area where
// the image allows. Free leaves the rectangle as is, clamped to the image.
func Constrain(rect image.Rectangle, size image.Point, r preset.Ratio) image.Rectangle {
	rect = Clamp(rect, size)
	v, ok := r.Value()
	if !ok || rect.Empty() {
		return rect
	}

	area := float64(rect.Dx() * rect.Dy())
	w := math.Sqrt(area * v)
	h := w / v
	// Scale down until it fits inside the image.
	if w > float64(size.X) {
		w = float64(size.X)
		h = w / v
	}
	if h > float64(size.Y) {
		h = float64(size.Y)
		w = h * v
	}
	c := image.Pt(rect.Min.X+rect.Dx()/2, rect.Min.Y+rect.Dy()/2)
	return centred(size, c, w, h)
}

// Anchor reshapes rect to ratio keeping its top-left corner and width, then
// shrinks it if the height runs past the image.
func Anchor(rect image.Rectangle, size image.Point, r preset.Ratio) image.Rectangle {
	rect = rect.Canon()
	v, ok := r.Value()
	if !ok || rect.Empty() {
		return Clamp(rect, size)
	}
	w := float64(rect.Dx())
	h := w / v
	if maxW := float64(size.X - rect.Min.X); w > maxW {
		w = maxW
		h = w / v
	}
	if maxH := float64(size.Y - rect.Min.Y); h > maxH {
		h = maxH
		w = h * v
	}
	iw, ih := round(w), round(h)
	if iw < 1 || ih < 1 {
		return image.Rectangle{}
	}
	return Clamp(image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+iw, rect.Min.Y+ih), size)
}

// Clamp moves rect inside an image of the given size, shrinking it only when
// it is larger than the image.
func Clamp(rect image.Rectangle, size image.Point) image.Rectangle {
	rect = rect.Canon()
	w := min(rect.Dx(), size.X)
	h := min(rect.Dy(), size.Y)
	x := min(max(rect.Min.X, 0), size.X-w)
	y := min(max(rect.Min.Y, 0), size.Y-h)
	return image.Rect(x, y, x+w, y+h)
}

func centred(size, c image.Point, w, h float64) image.Rectangle {
	iw := min(max(round(w), 1), size.X)
	ih := min(max(round(h), 1), size.Y)
	x := c.X - iw/2
	y := c.Y - ih/2
	return Clamp(image.Rect(x, y, x+iw, y+ih), size)
}

func round(f float64) int {
	return int(math.Round(f))
}
