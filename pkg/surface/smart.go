package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/util/log"
	pigo "github.com/esimov/pigo/core"
	"github.com/muesli/smartcrop"
)

// ErrNoFocus is returned by a Focuser that found nothing worth centring on.
var ErrNoFocus = errors.New("no focus point found")

// DefaultPlacementTimeout bounds how long smart placement may take per image.
const DefaultPlacementTimeout = 3 * time.Second

// Focuser picks the point the initial crop box should be centred on.
type Focuser interface {
	Focus(ctx context.Context, img image.Image, r preset.Ratio) (image.Point, error)
}

// SmartFactory returns a surface factory that centres the initial crop box on
// the first focus point found by focusers, falling back to the image centre.
func SmartFactory(timeout time.Duration, focusers ...Focuser) crop.SurfaceFactory {
	if timeout <= 0 {
		timeout = DefaultPlacementTimeout
	}
	return func(img image.Image, cfg crop.SurfaceConfig) crop.Surface {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		for _, f := range focusers {
			p, err := f.Focus(ctx, img, cfg.AspectRatio)
			if err != nil {
				log.Debugf("Smart placement: %T: %v", f, err)
				continue
			}
			return NewAt(img, cfg, p.Sub(img.Bounds().Min))
		}
		return New(img, cfg)
	}
}

// Energy finds the most interesting region with smartcrop's edge, skin and
// saturation analysis.
type Energy struct {
	resampler imaging.ResampleFilter
}

// NewEnergy creates an Energy focuser.
func NewEnergy() *Energy {
	return &Energy{resampler: imaging.Lanczos}
}

// Focus returns the centre of smartcrop's best crop for the ratio. Free crops
// have no target shape, so there is nothing to find.
func (e *Energy) Focus(ctx context.Context, img image.Image, r preset.Ratio) (image.Point, error) {
	v, ok := r.Value()
	if !ok {
		return image.Point{}, ErrNoFocus
	}
	if err := checkContext(ctx); err != nil {
		return image.Point{}, err
	}

	width, height := 1000, int(1000/v+0.5)
	if v < 1 {
		width, height = int(1000*v+0.5), 1000
	}

	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: e.resampler})

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		best, err := analyzer.FindBestCrop(img, width, height)
		resultChan <- cropResult{crop: best, err: err}
	}()

	select {
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return image.Point{}, fmt.Errorf("finding best crop: %w", result.err)
		}
		c := result.crop
		return image.Pt(c.Min.X+c.Dx()/2, c.Min.Y+c.Dy()/2), nil
	}
}

// resizer implements smartcrop's Resizer on top of imaging.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}

// Faces centres crops on the most confident face found by a pigo cascade.
type Faces struct {
	classifier *pigo.Pigo

	MinSizePct  int     // smallest face as a percentage of the shorter side
	ShiftFactor float64 // sliding window stride
	ScaleFactor float64 // cascade scale step
	MinQuality  float32 // detections below this score are ignored
	IoU         float64 // overlap threshold when clustering detections
}

// LoadFaces reads a pigo cascade file (e.g. "facefinder") from path.
func LoadFaces(path string) (*Faces, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading face model: %w", err)
	}
	return NewFaces(data)
}

// NewFaces unpacks a pigo cascade.
func NewFaces(model []byte) (*Faces, error) {
	classifier, err := pigo.NewPigo().Unpack(model)
	if err != nil {
		return nil, fmt.Errorf("unpacking face model: %w", err)
	}
	return &Faces{
		classifier:  classifier,
		MinSizePct:  1,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		MinQuality:  10.0,
		IoU:         0.2,
	}, nil
}

// Focus returns the centre of the best face. The ratio does not matter.
func (f *Faces) Focus(ctx context.Context, img image.Image, _ preset.Ratio) (image.Point, error) {
	if err := checkContext(ctx); err != nil {
		return image.Point{}, err
	}

	resultChan := make(chan []pigo.Detection, 1)
	go func() {
		resultChan <- f.detect(img)
	}()

	var dets []pigo.Detection
	select {
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	case dets = <-resultChan:
	}

	best := -1
	for i, d := range dets {
		if d.Q < f.MinQuality {
			continue
		}
		if best < 0 || d.Q > dets[best].Q {
			best = i
		}
	}
	if best < 0 {
		return image.Point{}, ErrNoFocus
	}
	b := img.Bounds()
	return image.Pt(b.Min.X+dets[best].Col, b.Min.Y+dets[best].Row), nil
}

func (f *Faces) detect(img image.Image) []pigo.Detection {
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()
	minSize := max(20, min(cols, rows)*f.MinSizePct/100)

	params := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     max(cols, rows),
		ShiftFactor: f.ShiftFactor,
		ScaleFactor: f.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := f.classifier.RunCascade(params, 0.0)
	return f.classifier.ClusterDetections(dets, f.IoU)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Configure returns the plain Factory, or a SmartFactory when smart is set.
// Faces are tried before energy when faceModelPath names a pigo cascade.
func Configure(smart bool, faceModelPath string) (crop.SurfaceFactory, error) {
	if !smart {
		return Factory, nil
	}
	var focusers []Focuser
	if faceModelPath != "" {
		faces, err := LoadFaces(faceModelPath)
		if err != nil {
			return nil, err
		}
		focusers = append(focusers, faces)
	}
	focusers = append(focusers, NewEnergy())
	return SmartFactory(DefaultPlacementTimeout, focusers...), nil
}
