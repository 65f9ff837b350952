package crop

import (
	"errors"

	"github.com/dixieflatline76/InstaRatio/pkg/preset"
)

var (
	// ErrUnknownPreset is returned when selecting a preset that is not registered.
	ErrUnknownPreset = preset.ErrUnknownPreset
	// ErrUnsupportedImage is returned when the uploaded bytes cannot be decoded.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrNoActiveCrop is returned when processing without a loaded image.
	ErrNoActiveCrop = errors.New("no active crop")
	// ErrRasterization is returned when the surface reports a degenerate rectangle.
	ErrRasterization = errors.New("rasterization failed")
	// ErrNoOutput is returned when downloading before anything was processed.
	ErrNoOutput = errors.New("no processed image")
	// ErrStaleLoad is returned when a load completes after a newer one began.
	ErrStaleLoad = errors.New("superseded by a newer load")
)
