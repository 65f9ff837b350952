package ui

import (
	"image"
	"image/color"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/pkg/surface"
)

const zoomStep = 1.1

var (
	shadeColor = color.NRGBA{A: 0x99}
	boxColor   = color.NRGBA{R: 0x39, G: 0x98, B: 0xf5, A: 0xff}
)

// CropCanvas shows an image with a draggable crop box. It is the crop.Surface
// of the desktop app; the geometry lives in a surface.Rect.
type CropCanvas struct {
	widget.BaseWidget

	img   image.Image
	rect  *surface.Rect
	cfg   crop.SurfaceConfig
	start image.Point // drag origin in source pixels, for DragModeCrop
	rem   fyne.Delta  // sub-pixel drag remainder
	drag  dragState
}

type dragState int

const (
	dragIdle dragState = iota
	dragMoving
	dragDrawing
)

var (
	_ crop.Surface    = (*CropCanvas)(nil)
	_ fyne.Draggable  = (*CropCanvas)(nil)
	_ fyne.Scrollable = (*CropCanvas)(nil)
)

// CanvasFactory wraps base so every surface it makes is shown in a CropCanvas.
// base must produce *surface.Rect values; anything else falls back to
// surface.New.
func CanvasFactory(base crop.SurfaceFactory) crop.SurfaceFactory {
	return func(img image.Image, cfg crop.SurfaceConfig) crop.Surface {
		return NewCropCanvas(img, cfg, base)
	}
}

// NewCropCanvas creates a canvas for img using base to place the crop box.
func NewCropCanvas(img image.Image, cfg crop.SurfaceConfig, base crop.SurfaceFactory) *CropCanvas {
	var r *surface.Rect
	if base != nil {
		r, _ = base(img, cfg).(*surface.Rect)
	}
	if r == nil {
		r = surface.New(img, cfg)
	}
	c := &CropCanvas{img: img, rect: r, cfg: cfg}
	c.ExtendBaseWidget(c)
	r.OnChange(func(image.Rectangle) {
		fyne.Do(c.Refresh)
	})
	return c
}

// SetAspectRatio implements crop.Surface.
func (c *CropCanvas) SetAspectRatio(r preset.Ratio) {
	c.rect.SetAspectRatio(r)
}

// CropRect implements crop.Surface.
func (c *CropCanvas) CropRect() image.Rectangle {
	return c.rect.CropRect()
}

// Destroy implements crop.Surface. The widget is hidden and stops reacting
// to input.
func (c *CropCanvas) Destroy() {
	c.rect.Destroy()
	fyne.Do(c.Hide)
}

// Reset puts the crop box back in its initial place.
func (c *CropCanvas) Reset() {
	c.rect.Reset()
}

// Dragged moves the crop box, or draws a new one when the drag started
// outside it and the drag mode allows that.
func (c *CropCanvas) Dragged(e *fyne.DragEvent) {
	if c.rect.Destroyed() {
		return
	}
	scale, offset := c.fit(c.Size())
	if scale <= 0 {
		return
	}

	if c.drag == dragIdle {
		from := toSource(e.Position.Subtract(e.Dragged), scale, offset)
		switch {
		case from.In(c.rect.CropRect()) && c.cfg.DragMode != crop.DragModeNone:
			c.drag = dragMoving
		case c.cfg.DragMode == crop.DragModeCrop:
			c.drag = dragDrawing
			c.start = from
		default:
			return
		}
	}

	switch c.drag {
	case dragMoving:
		if !c.cfg.Movable {
			return
		}
		c.rem = fyne.NewDelta(c.rem.DX+e.Dragged.DX/scale, c.rem.DY+e.Dragged.DY/scale)
		dx, dy := math.Trunc(float64(c.rem.DX)), math.Trunc(float64(c.rem.DY))
		c.rem = fyne.NewDelta(c.rem.DX-float32(dx), c.rem.DY-float32(dy))
		if dx != 0 || dy != 0 {
			c.rect.Move(image.Pt(int(dx), int(dy)))
		}
	case dragDrawing:
		to := toSource(e.Position, scale, offset)
		c.rect.SetRect(image.Rectangle{Min: c.start, Max: to}.Canon())
	}
}

// DragEnd ends the current gesture.
func (c *CropCanvas) DragEnd() {
	c.drag = dragIdle
	c.rem = fyne.Delta{}
}

// Scrolled zooms the crop box.
func (c *CropCanvas) Scrolled(e *fyne.ScrollEvent) {
	switch {
	case e.Scrolled.DY > 0:
		c.rect.Zoom(zoomStep)
	case e.Scrolled.DY < 0:
		c.rect.Zoom(1 / zoomStep)
	}
}

// CreateRenderer implements fyne.Widget.
func (c *CropCanvas) CreateRenderer() fyne.WidgetRenderer {
	img := canvas.NewImageFromImage(c.img)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleSmooth

	box := canvas.NewRectangle(color.Transparent)
	box.StrokeColor = boxColor
	box.StrokeWidth = 2

	r := &cropRenderer{c: c, img: img, box: box}
	for i := range r.shades {
		r.shades[i] = canvas.NewRectangle(shadeColor)
	}
	return r
}

// fit returns the scale and offset of the image when contained in size.
func (c *CropCanvas) fit(size fyne.Size) (float32, fyne.Position) {
	sz := c.rect.Size()
	if sz.X == 0 || sz.Y == 0 {
		return 0, fyne.Position{}
	}
	scale := fyne.Min(size.Width/float32(sz.X), size.Height/float32(sz.Y))
	w, h := float32(sz.X)*scale, float32(sz.Y)*scale
	return scale, fyne.NewPos((size.Width-w)/2, (size.Height-h)/2)
}

func toSource(p fyne.Position, scale float32, offset fyne.Position) image.Point {
	p = p.Subtract(offset)
	return image.Pt(int(math.Round(float64(p.X/scale))), int(math.Round(float64(p.Y/scale))))
}

type cropRenderer struct {
	c      *CropCanvas
	img    *canvas.Image
	box    *canvas.Rectangle
	shades [4]*canvas.Rectangle // top, bottom, left, right
}

func (r *cropRenderer) Layout(size fyne.Size) {
	r.img.Resize(size)
	r.img.Move(fyne.NewPos(0, 0))

	scale, off := r.c.fit(size)
	sz := r.c.rect.Size()
	imgW, imgH := float32(sz.X)*scale, float32(sz.Y)*scale
	cr := r.c.rect.CropRect()

	x0, y0 := off.X+float32(cr.Min.X)*scale, off.Y+float32(cr.Min.Y)*scale
	x1, y1 := off.X+float32(cr.Max.X)*scale, off.Y+float32(cr.Max.Y)*scale

	r.box.Move(fyne.NewPos(x0, y0))
	r.box.Resize(fyne.NewSize(x1-x0, y1-y0))

	place := func(s *canvas.Rectangle, x, y, w, h float32) {
		s.Move(fyne.NewPos(x, y))
		s.Resize(fyne.NewSize(fyne.Max(w, 0), fyne.Max(h, 0)))
	}
	place(r.shades[0], off.X, off.Y, imgW, y0-off.Y)
	place(r.shades[1], off.X, y1, imgW, off.Y+imgH-y1)
	place(r.shades[2], off.X, y0, x0-off.X, y1-y0)
	place(r.shades[3], x1, y0, off.X+imgW-x1, y1-y0)
}

func (r *cropRenderer) MinSize() fyne.Size {
	return fyne.NewSize(320, 240)
}

func (r *cropRenderer) Refresh() {
	r.Layout(r.c.Size())
	r.img.Refresh()
	r.box.Refresh()
	for _, s := range r.shades {
		s.Refresh()
	}
}

func (r *cropRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.img, r.shades[0], r.shades[1], r.shades[2], r.shades[3], r.box}
}

func (r *cropRenderer) Destroy() {}
