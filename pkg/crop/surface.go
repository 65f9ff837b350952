package crop

import (
	"image"

	"github.com/dixieflatline76/InstaRatio/pkg/preset"
)

// ViewMode restricts how far the crop box may travel relative to the image.
type ViewMode int

const (
	// ViewModeFree places no restriction on the crop box.
	ViewModeFree ViewMode = iota
	// ViewModeWithinImage keeps the crop box inside the image.
	ViewModeWithinImage
)

// DragMode selects what a drag on the image background does.
type DragMode string

const (
	DragModeCrop DragMode = "crop"
	DragModeMove DragMode = "move"
	DragModeNone DragMode = "none"
)

// SurfaceConfig is handed to a cropping surface at creation. The orchestrator
// only fills in AspectRatio; everything else is passed through as configured.
type SurfaceConfig struct {
	AspectRatio  preset.Ratio
	ViewMode     ViewMode
	DragMode     DragMode
	AutoCropArea float64 // fraction of the image the initial crop box covers
	Movable      bool
	Zoomable     bool
	Rotatable    bool
	Scalable     bool
}

// DefaultSurfaceConfig mirrors the settings the web tool ships with.
func DefaultSurfaceConfig() SurfaceConfig {
	return SurfaceConfig{
		AspectRatio:  preset.Free(),
		ViewMode:     ViewModeWithinImage,
		DragMode:     DragModeMove,
		AutoCropArea: 0.8,
		Movable:      true,
		Zoomable:     true,
		Rotatable:    true,
		Scalable:     true,
	}
}

// Surface is an interactive cropping widget bound to one source image.
// It reports the crop rectangle in source pixel coordinates relative to the
// image origin.
type Surface interface {
	SetAspectRatio(r preset.Ratio)
	CropRect() image.Rectangle
	Destroy()
}

// SurfaceFactory creates a surface bound to img.
type SurfaceFactory func(img image.Image, cfg SurfaceConfig) Surface
