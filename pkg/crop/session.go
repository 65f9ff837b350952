// Package crop owns an editing session: the loaded image, the selected preset,
// the cropping surface bound to the image and the processed output.
package crop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/util"
	"github.com/dixieflatline76/InstaRatio/util/log"
)

// EventKind identifies a session state change.
type EventKind string

const (
	EventImageLoaded   EventKind = "image_loaded"
	EventPresetChanged EventKind = "preset_changed"
	EventProcessed     EventKind = "processed"
	EventClosed        EventKind = "closed"
)

// Event describes a committed state change.
type Event struct {
	Kind   EventKind `json:"type"`
	Preset string    `json:"preset"`
	Ratio  string    `json:"ratio"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
	Format string    `json:"format,omitempty"`
}

// Ticket identifies one asynchronous load. Only the newest ticket may commit.
type Ticket uint64

// Option configures a Session.
type Option func(*Session)

// WithSurfaceConfig sets the settings passed to every new surface.
func WithSurfaceConfig(cfg SurfaceConfig) Option {
	return func(s *Session) { s.surfaceCfg = cfg }
}

// WithJPEGQuality sets the quality used when the output is JPEG.
func WithJPEGQuality(q int) Option {
	return func(s *Session) {
		if q >= 1 && q <= 100 {
			s.quality = q
		}
	}
}

// WithObserver registers fn to be called after every committed change.
// fn runs outside the session lock.
func WithObserver(fn func(Event)) Option {
	return func(s *Session) { s.observer = fn }
}

// WithInitialPreset overrides the starting preset. Unknown names are ignored.
func WithInitialPreset(name string) Option {
	return func(s *Session) { s.initial = name }
}

// Session is one editing session. All methods are safe for concurrent use,
// although the tool itself drives it from a single event loop.
type Session struct {
	mu       sync.Mutex
	commitMu sync.Mutex // serializes surface replacement

	registry   *preset.Registry
	newSurface SurfaceFactory
	surfaceCfg SurfaceConfig
	quality    int
	observer   func(Event)
	initial    string
	loads      *util.Sequence

	source   *Source
	selected string
	output   *Output
	surface  Surface
	closes   uint64
}

// NewSession creates an empty session over reg. newSurface is called once per
// successfully loaded image.
func NewSession(reg *preset.Registry, newSurface SurfaceFactory, opts ...Option) (*Session, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, errors.New("preset registry is empty")
	}
	if newSurface == nil {
		return nil, errors.New("surface factory is nil")
	}

	s := &Session{
		registry:   reg,
		newSurface: newSurface,
		surfaceCfg: DefaultSurfaceConfig(),
		quality:    DefaultJPEGQuality,
		loads:      util.NewSequence(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case s.initial != "" && reg.Contains(s.initial):
		s.selected = s.initial
	case reg.Contains(preset.Default):
		s.selected = preset.Default
	default:
		s.selected = reg.Names()[0]
	}
	return s, nil
}

// SetJPEGQuality changes the quality used by later Process calls. Values
// outside 1..100 are ignored.
func (s *Session) SetJPEGQuality(q int) {
	if q < 1 || q > 100 {
		return
	}
	s.mu.Lock()
	s.quality = q
	s.mu.Unlock()
}

// Registry returns the preset catalogue the session validates against.
func (s *Session) Registry() *preset.Registry {
	return s.registry
}

// BeginLoad starts a load and supersedes any load still in flight.
func (s *Session) BeginLoad() Ticket {
	return Ticket(s.loads.Next())
}

// CommitLoad decodes data and, if t is still the newest load, makes it the
// session image. A superseded load returns ErrStaleLoad and changes nothing.
//
// The surface factory runs without the state lock held, so accessors and
// SelectPreset stay responsive while smart placement analyses the image.
// Commits are serialized so the old surface is always destroyed before the
// new one is created.
func (s *Session) CommitLoad(ctx context.Context, t Ticket, data []byte, mimeType string) (*Source, error) {
	src, err := DecodeImage(ctx, data, mimeType)
	if err != nil {
		if !s.loads.IsCurrent(uint64(t)) {
			log.Debugf("Discarding failed load %d, newest is %d: %v", t, s.loads.Current(), err)
			return nil, ErrStaleLoad
		}
		return nil, err
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	if !s.loads.IsCurrent(uint64(t)) {
		s.mu.Unlock()
		log.Debugf("Discarding load %d, newest is %d", t, s.loads.Current())
		return nil, ErrStaleLoad
	}
	if s.surface != nil {
		s.surface.Destroy()
		s.surface = nil
	}
	s.source = nil
	s.output = nil
	closes := s.closes
	cfg := s.surfaceCfg
	cfg.AspectRatio = s.ratioLocked()
	newSurface := s.newSurface
	s.mu.Unlock()

	surf := newSurface(src.Image, cfg)

	s.mu.Lock()
	if s.closes != closes {
		s.mu.Unlock()
		surf.Destroy()
		log.Debugf("Discarding load %d, session closed while placing the crop box", t)
		return nil, ErrStaleLoad
	}
	ratio := s.ratioLocked()
	if ratio != cfg.AspectRatio {
		surf.SetAspectRatio(ratio)
	}
	s.surface = surf
	s.source = src
	ev := Event{
		Kind:   EventImageLoaded,
		Preset: s.selected,
		Ratio:  ratio.String(),
		Width:  src.Width(),
		Height: src.Height(),
		Format: src.MIMEType,
	}
	s.mu.Unlock()

	log.Printf("Loaded %dx%d %s image", src.Width(), src.Height(), src.MIMEType)
	s.notify(ev)
	return src, nil
}

// LoadImage decodes data and makes it the session image.
func (s *Session) LoadImage(ctx context.Context, data []byte, mimeType string) (*Source, error) {
	return s.CommitLoad(ctx, s.BeginLoad(), data, mimeType)
}

// SelectPreset changes the active preset and re-constrains the current surface in place.
func (s *Session) SelectPreset(name string) error {
	ratio, err := s.registry.RatioFor(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.selected = name
	if s.surface != nil {
		s.surface.SetAspectRatio(ratio)
	}
	ev := Event{Kind: EventPresetChanged, Preset: name, Ratio: ratio.String()}
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

// Process rasterizes the surface's current crop rectangle and stores the result.
func (s *Session) Process(ctx context.Context) (*Output, error) {
	s.mu.Lock()
	if s.surface == nil || s.source == nil {
		s.mu.Unlock()
		return nil, ErrNoActiveCrop
	}

	rect := s.surface.CropRect()
	bitmap, err := rasterize(s.source.Image, rect)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	mimeType := outputMIME(s.source)
	data, err := EncodeImage(ctx, bitmap, mimeType, s.quality)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrRasterization, err)
	}

	out := &Output{
		Data:     data,
		MIMEType: mimeType,
		Width:    bitmap.Bounds().Dx(),
		Height:   bitmap.Bounds().Dy(),
	}
	s.output = out
	ev := Event{
		Kind:   EventProcessed,
		Preset: s.selected,
		Ratio:  s.ratioLocked().String(),
		Width:  out.Width,
		Height: out.Height,
		Format: out.MIMEType,
	}
	s.mu.Unlock()

	log.Printf("Processed crop %v into %dx%d %s (%d bytes)", rect, out.Width, out.Height, mimeType, len(data))
	s.notify(ev)
	return out, nil
}

// DownloadName returns the file name the current output would be saved under.
func (s *Session) DownloadName() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output == nil {
		return "", ErrNoOutput
	}
	return Filename(s.selected, s.output.Ext()), nil
}

// Download hands the processed output to sink and returns the file name used.
func (s *Session) Download(ctx context.Context, sink Sink) (string, error) {
	s.mu.Lock()
	out := s.output
	selected := s.selected
	s.mu.Unlock()

	if out == nil {
		return "", ErrNoOutput
	}
	name := Filename(selected, out.Ext())
	if err := sink.Save(ctx, name, out.Data); err != nil {
		return "", fmt.Errorf("saving %s: %w", name, err)
	}
	log.Printf("Saved %s (%d bytes)", name, len(out.Data))
	return name, nil
}

// Close destroys the surface and drops the loaded image.
func (s *Session) Close() {
	s.mu.Lock()
	s.loads.Next() // any load still in flight is now stale
	s.closes++
	if s.surface == nil && s.source == nil {
		s.mu.Unlock()
		return
	}
	if s.surface != nil {
		s.surface.Destroy()
		s.surface = nil
	}
	s.source = nil
	s.output = nil
	ev := Event{Kind: EventClosed, Preset: s.selected, Ratio: s.ratioLocked().String()}
	s.mu.Unlock()

	s.notify(ev)
}

// SelectedPreset returns the active preset name.
func (s *Session) SelectedPreset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Ratio returns the active preset's ratio.
func (s *Session) Ratio() preset.Ratio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratioLocked()
}

// Source returns the loaded image, or nil.
func (s *Session) Source() *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Output returns the most recent processed output, or nil.
func (s *Session) Output() *Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// Surface returns the active cropping surface, or nil when no image is loaded.
func (s *Session) Surface() Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

func (s *Session) ratioLocked() preset.Ratio {
	r, err := s.registry.RatioFor(s.selected)
	if err != nil {
		// selected is validated on every write
		panic(err)
	}
	return r
}

func (s *Session) notify(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
}
