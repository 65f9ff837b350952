package surface

import (
	"image"
	"sync"

	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
)

// MinCropSide is the smallest shorter side zooming in may shrink the crop box
// to. Below it rounding to whole pixels visibly breaks the ratio.
const MinCropSide = 16

// Rect is a headless cropping surface. It keeps the crop box in source pixel
// coordinates and applies the aspect ratio constraint to every change.
type Rect struct {
	mu        sync.Mutex
	size      image.Point
	cfg       crop.SurfaceConfig
	rect      image.Rectangle
	destroyed bool
	onChange  func(image.Rectangle)
}

// New binds a surface to img with the crop box placed by Fit.
func New(img image.Image, cfg crop.SurfaceConfig) *Rect {
	size := img.Bounds().Size()
	return &Rect{
		size: size,
		cfg:  cfg,
		rect: Fit(size, cfg.AspectRatio, cfg.AutoCropArea),
	}
}

// NewAt binds a surface to img with the crop box centred on focus.
func NewAt(img image.Image, cfg crop.SurfaceConfig, focus image.Point) *Rect {
	r := New(img, cfg)
	half := image.Pt(r.rect.Dx()/2, r.rect.Dy()/2)
	r.rect = Clamp(r.rect.Sub(r.rect.Min).Add(focus.Sub(half)), r.size)
	return r
}

// Factory is a crop.SurfaceFactory producing Rect surfaces.
func Factory(img image.Image, cfg crop.SurfaceConfig) crop.Surface {
	return New(img, cfg)
}

// OnChange registers fn to be called with the new crop box after every change.
func (r *Rect) OnChange(fn func(image.Rectangle)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// SetAspectRatio re-constrains the current crop box about its centre.
func (r *Rect) SetAspectRatio(ratio preset.Ratio) {
	r.update(func() {
		r.cfg.AspectRatio = ratio
		r.rect = Constrain(r.rect, r.size, ratio)
	})
}

// CropRect returns the crop box, or an empty rectangle once destroyed.
func (r *Rect) CropRect() image.Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return image.Rectangle{}
	}
	return r.rect
}

// Destroy detaches the surface. Later calls are no-ops.
func (r *Rect) Destroy() {
	r.mu.Lock()
	r.destroyed = true
	r.onChange = nil
	r.mu.Unlock()
}

// Destroyed reports whether Destroy was called.
func (r *Rect) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// SetRect replaces the crop box, e.g. after a drag. The ratio is enforced by
// keeping the top-left corner and the width.
func (r *Rect) SetRect(rect image.Rectangle) image.Rectangle {
	r.update(func() {
		if r.cfg.ViewMode == crop.ViewModeFree && r.cfg.AspectRatio.IsFree() {
			r.rect = rect.Canon()
			return
		}
		r.rect = Anchor(rect, r.size, r.cfg.AspectRatio)
	})
	return r.CropRect()
}

// Move shifts the crop box by d, stopping at the image edges.
func (r *Rect) Move(d image.Point) image.Rectangle {
	r.update(func() {
		moved := r.rect.Add(d)
		if r.cfg.ViewMode != crop.ViewModeFree {
			moved = Clamp(moved, r.size)
		}
		r.rect = moved
	})
	return r.CropRect()
}

// Zoom scales the crop box about its centre. factor > 1 zooms in, which makes
// the crop box smaller in source pixels.
func (r *Rect) Zoom(factor float64) image.Rectangle {
	if factor <= 0 {
		return r.CropRect()
	}
	r.update(func() {
		if !r.cfg.Zoomable {
			return
		}
		c := image.Pt(r.rect.Min.X+r.rect.Dx()/2, r.rect.Min.Y+r.rect.Dy()/2)
		w := float64(r.rect.Dx()) / factor
		h := float64(r.rect.Dy()) / factor
		if v, ok := r.cfg.AspectRatio.Value(); ok {
			h = w / v
			if w > float64(r.size.X) {
				w = float64(r.size.X)
				h = w / v
			}
			if h > float64(r.size.Y) {
				h = float64(r.size.Y)
				w = h * v
			}
		}
		if factor > 1 {
			floor := float64(min(MinCropSide, r.size.X, r.size.Y))
			cur := float64(min(r.rect.Dx(), r.rect.Dy()))
			if short := min(w, h); short < floor {
				if cur <= floor {
					return
				}
				w, h = w*floor/short, h*floor/short
			}
		}
		r.rect = centred(r.size, c, w, h)
	})
	return r.CropRect()
}

// Reset puts the crop box back where it started.
func (r *Rect) Reset() image.Rectangle {
	r.update(func() {
		r.rect = Fit(r.size, r.cfg.AspectRatio, r.cfg.AutoCropArea)
	})
	return r.CropRect()
}

// Ratio returns the active constraint.
func (r *Rect) Ratio() preset.Ratio {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.AspectRatio
}

// Size returns the size of the bound image.
func (r *Rect) Size() image.Point {
	return r.size
}

func (r *Rect) update(fn func()) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	fn()
	rect, cb := r.rect, r.onChange
	r.mu.Unlock()

	if cb != nil {
		cb(rect)
	}
}
