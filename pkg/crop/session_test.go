package crop

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSurface records the calls the session makes on a cropping surface.
type MockSurface struct {
	mock.Mock
}

func (m *MockSurface) SetAspectRatio(r preset.Ratio) {
	m.Called(r)
}

func (m *MockSurface) CropRect() image.Rectangle {
	args := m.Called()
	return args.Get(0).(image.Rectangle)
}

func (m *MockSurface) Destroy() {
	m.Called()
}

// surfaceLog hands out mock surfaces and remembers what it was asked for.
type surfaceLog struct {
	mu       sync.Mutex
	created  []*MockSurface
	configs  []SurfaceConfig
	rect     image.Rectangle
	sequence []string
}

func (l *surfaceLog) factory(img image.Image, cfg SurfaceConfig) Surface {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := &MockSurface{}
	idx := len(l.created)
	m.On("CropRect").Return(l.rect).Maybe()
	m.On("SetAspectRatio", mock.Anything).Return().Maybe()
	m.On("Destroy").Return().Run(func(mock.Arguments) {
		l.mu.Lock()
		l.sequence = append(l.sequence, "destroy"+string(rune('0'+idx)))
		l.mu.Unlock()
	}).Maybe()
	l.created = append(l.created, m)
	l.configs = append(l.configs, cfg)
	l.sequence = append(l.sequence, "create"+string(rune('0'+idx)))
	return m
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(w, h)))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func newTestSession(t *testing.T, rect image.Rectangle, opts ...Option) (*Session, *surfaceLog) {
	t.Helper()
	l := &surfaceLog{rect: rect}
	s, err := NewSession(preset.Builtin(), l.factory, opts...)
	require.NoError(t, err)
	return s, l
}

// memorySink keeps the last saved file.
type memorySink struct {
	name string
	data []byte
	err  error
}

func (m *memorySink) Save(_ context.Context, name string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.name = name
	m.data = data
	return nil
}

func TestNewSessionDefaults(t *testing.T) {
	s, _ := newTestSession(t, image.Rectangle{})
	assert.Equal(t, preset.Default, s.SelectedPreset())
	assert.Nil(t, s.Source())
	assert.Nil(t, s.Output())
	assert.Nil(t, s.Surface())

	s, _ = newTestSession(t, image.Rectangle{}, WithInitialPreset("TikTok (9:16)"))
	assert.Equal(t, "TikTok (9:16)", s.SelectedPreset())

	s, _ = newTestSession(t, image.Rectangle{}, WithInitialPreset("nope"))
	assert.Equal(t, preset.Default, s.SelectedPreset())

	_, err := NewSession(preset.Builtin(), nil)
	assert.Error(t, err)
}

func TestLoadImageCreatesSurfaceWithRatio(t *testing.T) {
	s, l := newTestSession(t, image.Rect(0, 0, 10, 10))
	require.NoError(t, s.SelectPreset("Instagram Post (4:5)"))

	src, err := s.LoadImage(context.Background(), encodePNG(t, 40, 30), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 40, src.Width())
	assert.Equal(t, 30, src.Height())

	require.Len(t, l.configs, 1)
	v, ok := l.configs[0].AspectRatio.Value()
	assert.True(t, ok)
	assert.InDelta(t, 0.8, v, 1e-9)
	assert.Equal(t, 0.8, l.configs[0].AutoCropArea)
	assert.Equal(t, DragModeMove, l.configs[0].DragMode)
	assert.True(t, l.configs[0].Rotatable)
}

func TestLoadImageDestroysBeforeCreate(t *testing.T) {
	s, l := newTestSession(t, image.Rect(0, 0, 10, 10))
	ctx := context.Background()

	_, err := s.LoadImage(ctx, encodePNG(t, 20, 20), "image/png")
	require.NoError(t, err)
	_, err = s.LoadImage(ctx, encodePNG(t, 30, 30), "image/png")
	require.NoError(t, err)

	assert.Equal(t, []string{"create0", "destroy0", "create1"}, l.sequence)
	l.created[0].AssertNumberOfCalls(t, "Destroy", 1)
	l.created[1].AssertNotCalled(t, "Destroy")
	assert.Same(t, l.created[1], s.Surface())
}

func TestLoadImageResetsOutput(t *testing.T) {
	s, _ := newTestSession(t, image.Rect(0, 0, 10, 10))
	ctx := context.Background()

	_, err := s.LoadImage(ctx, encodePNG(t, 20, 20), "image/png")
	require.NoError(t, err)
	_, err = s.Process(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Output())

	_, err = s.LoadImage(ctx, encodePNG(t, 20, 20), "image/png")
	require.NoError(t, err)
	assert.Nil(t, s.Output())

	_, err = s.Download(ctx, &memorySink{})
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestLoadImageUnsupportedLeavesState(t *testing.T) {
	s, l := newTestSession(t, image.Rect(0, 0, 10, 10))
	ctx := context.Background()

	first, err := s.LoadImage(ctx, encodePNG(t, 20, 20), "image/png")
	require.NoError(t, err)
	_, err = s.Process(ctx)
	require.NoError(t, err)

	_, err = s.LoadImage(ctx, []byte("definitely not an image"), "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	assert.Same(t, first, s.Source())
	assert.NotNil(t, s.Output())
	assert.Len(t, l.created, 1)
	l.created[0].AssertNotCalled(t, "Destroy")
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	s, l := newTestSession(t, image.Rect(0, 0, 10, 10))
	ctx := context.Background()

	older := s.BeginLoad()
	newer := s.BeginLoad()

	src, err := s.CommitLoad(ctx, newer, encodePNG(t, 30, 30), "image/png")
	require.NoError(t, err)

	_, err = s.CommitLoad(ctx, older, encodePNG(t, 50, 50), "image/png")
	assert.ErrorIs(t, err, ErrStaleLoad)

	assert.Same(t, src, s.Source())
	assert.Equal(t, 30, s.Source().Width())
	assert.Len(t, l.created, 1)
}

func TestSelectPresetUnknown(t *testing.T) {
	s, _ := newTestSession(t, image.Rectangle{})
	err := s.SelectPreset("Friendster Banner")
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.Equal(t, preset.Default, s.SelectedPreset())
}

func TestSelectPresetReconfiguresInPlace(t *testing.T) {
	s, l := newTestSession(t, image.Rect(0, 0, 10, 10))
	_, err := s.LoadImage(context.Background(), encodePNG(t, 20, 20), "image/png")
	require.NoError(t, err)

	require.NoError(t, s.SelectPreset("YouTube Thumbnail (16:9)"))
	require.NoError(t, s.SelectPreset(preset.FreeCrop))

	require.Len(t, l.created, 1)
	surf := l.created[0]
	surf.AssertNotCalled(t, "Destroy")
	surf.AssertCalled(t, "SetAspectRatio", preset.Fixed(16, 9))
	surf.AssertCalled(t, "SetAspectRatio", preset.Free())
	assert.Equal(t, []string{"create0"}, l.sequence)
}

func TestProcessWithoutImage(t *testing.T) {
	s, _ := newTestSession(t, image.Rectangle{})
	_, err := s.Process(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveCrop)
}

func TestProcessDegenerateRect(t *testing.T) {
	tests := []struct {
		name string
		rect image.Rectangle
	}{
		{"zero width", image.Rect(5, 5, 5, 15)},
		{"zero height", image.Rect(5, 5, 15, 5)},
		{"outside image", image.Rect(10, 10, 50, 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, tt.rect)
			_, err := s.LoadImage(context.Background(), encodePNG(t, 20, 20), "image/png")
			require.NoError(t, err)

			_, err = s.Process(context.Background())
			assert.ErrorIs(t, err, ErrRasterization)
			assert.Nil(t, s.Output())
		})
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	for _, tc := range []struct {
		mime string
		data func(*testing.T, int, int) []byte
	}{
		{"image/png", encodePNG},
		{"image/jpeg", encodeJPEG},
	} {
		t.Run(tc.mime, func(t *testing.T) {
			s, _ := newTestSession(t, image.Rect(3, 4, 19, 20))
			ctx := context.Background()
			_, err := s.LoadImage(ctx, tc.data(t, 32, 32), tc.mime)
			require.NoError(t, err)

			a, err := s.Process(ctx)
			require.NoError(t, err)
			b, err := s.Process(ctx)
			require.NoError(t, err)

			assert.Equal(t, a.Data, b.Data)
			assert.Equal(t, tc.mime, a.MIMEType)
		})
	}
}

func TestProcessCopiesExactPixels(t *testing.T) {
	s, _ := newTestSession(t, image.Rect(5, 7, 12, 10))
	ctx := context.Background()
	_, err := s.LoadImage(ctx, encodePNG(t, 20, 20), "image/png")
	require.NoError(t, err)

	out, err := s.Process(ctx)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 7, 3), img.Bounds())

	want := gradient(20, 20)
	for y := 0; y < 3; y++ {
		for x := 0; x < 7; x++ {
			r1, g1, b1, a1 := img.At(x, y).RGBA()
			r2, g2, b2, a2 := want.At(x+5, y+7).RGBA()
			assert.Equal(t, [4]uint32{r2, g2, b2, a2}, [4]uint32{r1, g1, b1, a1}, "pixel %d,%d", x, y)
		}
	}
}

func TestDownloadWithoutOutput(t *testing.T) {
	s, _ := newTestSession(t, image.Rectangle{})
	sink := &memorySink{}
	_, err := s.Download(context.Background(), sink)
	assert.ErrorIs(t, err, ErrNoOutput)
	assert.Empty(t, sink.name)

	_, err = s.DownloadName()
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestDownloadSinkError(t *testing.T) {
	s, _ := newTestSession(t, image.Rect(0, 0, 4, 4))
	ctx := context.Background()
	_, err := s.LoadImage(ctx, encodePNG(t, 8, 8), "image/png")
	require.NoError(t, err)
	_, err = s.Process(ctx)
	require.NoError(t, err)

	boom := errors.New("disk full")
	_, err = s.Download(ctx, &memorySink{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.NotNil(t, s.Output())
}

func TestEndToEndSquareCrop(t *testing.T) {
	for _, tc := range []struct {
		mime string
		data func(*testing.T, int, int) []byte
		ext  string
	}{
		{"image/png", encodePNG, "png"},
		{"image/jpeg", encodeJPEG, "jpeg"},
	} {
		t.Run(tc.ext, func(t *testing.T) {
			s, _ := newTestSession(t, image.Rect(50, 25, 300, 275))
			ctx := context.Background()

			_, err := s.LoadImage(ctx, tc.data(t, 400, 300), tc.mime)
			require.NoError(t, err)
			require.NoError(t, s.SelectPreset("Instagram Post (1:1)"))

			out, err := s.Process(ctx)
			require.NoError(t, err)
			assert.Equal(t, 250, out.Width)
			assert.Equal(t, 250, out.Height)

			cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
			require.NoError(t, err)
			assert.Equal(t, 250, cfg.Width)
			assert.Equal(t, 250, cfg.Height)

			sink := &memorySink{}
			name, err := s.Download(ctx, sink)
			require.NoError(t, err)
			assert.Equal(t, "instaratio_processed_Instagram_Post__1_1_."+tc.ext, name)
			assert.True(t, strings.HasSuffix(sink.name, "Instagram_Post__1_1_."+tc.ext))
			assert.Equal(t, out.Data, sink.data)
		})
	}
}

func TestObserverEvents(t *testing.T) {
	var events []Event
	s, _ := newTestSession(t, image.Rect(0, 0, 4, 4), WithObserver(func(ev Event) {
		events = append(events, ev)
	}))
	ctx := context.Background()

	_, err := s.LoadImage(ctx, encodePNG(t, 8, 6), "image/png")
	require.NoError(t, err)
	require.NoError(t, s.SelectPreset(preset.FreeCrop))
	_, err = s.Process(ctx)
	require.NoError(t, err)
	s.Close()

	require.Len(t, events, 4)
	assert.Equal(t, EventImageLoaded, events[0].Kind)
	assert.Equal(t, 8, events[0].Width)
	assert.Equal(t, EventPresetChanged, events[1].Kind)
	assert.Equal(t, "Free", events[1].Ratio)
	assert.Equal(t, EventProcessed, events[2].Kind)
	assert.Equal(t, 4, events[2].Width)
	assert.Equal(t, EventClosed, events[3].Kind)
}

func TestCloseReleasesSurface(t *testing.T) {
	s, l := newTestSession(t, image.Rect(0, 0, 4, 4))
	ctx := context.Background()
	pending := s.BeginLoad()

	_, err := s.LoadImage(ctx, encodePNG(t, 8, 8), "image/png")
	require.NoError(t, err)

	s.Close()
	l.created[0].AssertNumberOfCalls(t, "Destroy", 1)
	assert.Nil(t, s.Surface())
	assert.Nil(t, s.Source())

	_, err = s.CommitLoad(ctx, pending, encodePNG(t, 8, 8), "image/png")
	assert.ErrorIs(t, err, ErrStaleLoad)

	_, err = s.Process(ctx)
	assert.ErrorIs(t, err, ErrNoActiveCrop)

	s.Close()
	l.created[0].AssertNumberOfCalls(t, "Destroy", 1)
}

func TestSetJPEGQualityAffectsLaterProcess(t *testing.T) {
	s, _ := newTestSession(t, image.Rect(0, 0, 64, 64))
	ctx := context.Background()
	_, err := s.LoadImage(ctx, encodeJPEG(t, 64, 64), "image/jpeg")
	require.NoError(t, err)

	high, err := s.Process(ctx)
	require.NoError(t, err)

	s.SetJPEGQuality(10)
	low, err := s.Process(ctx)
	require.NoError(t, err)
	assert.Less(t, len(low.Data), len(high.Data))

	s.SetJPEGQuality(0)
	again, err := s.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, low.Data, again.Data)
}

// gatedFactory blocks surface creation until release is closed.
type gatedFactory struct {
	started chan struct{}
	release chan struct{}
	surface *MockSurface
}

func newGatedFactory() *gatedFactory {
	m := &MockSurface{}
	m.On("CropRect").Return(image.Rect(0, 0, 4, 4)).Maybe()
	m.On("SetAspectRatio", mock.Anything).Return().Maybe()
	m.On("Destroy").Return().Maybe()
	return &gatedFactory{
		started: make(chan struct{}),
		release: make(chan struct{}),
		surface: m,
	}
}

func (g *gatedFactory) factory(image.Image, SurfaceConfig) Surface {
	close(g.started)
	<-g.release
	return g.surface
}

type loadResult struct {
	src *Source
	err error
}

func TestSlowSurfaceFactoryDoesNotBlockSession(t *testing.T) {
	g := newGatedFactory()
	s, err := NewSession(preset.Builtin(), g.factory)
	require.NoError(t, err)

	data := encodePNG(t, 16, 16)
	loaded := make(chan loadResult, 1)
	go func() {
		src, err := s.LoadImage(context.Background(), data, "image/png")
		loaded <- loadResult{src, err}
	}()
	<-g.started

	selected := make(chan error, 1)
	go func() { selected <- s.SelectPreset(preset.FreeCrop) }()
	select {
	case err := <-selected:
		require.NoError(t, err)
	case <-time.After(time.Second):
		close(g.release)
		t.Fatal("SelectPreset waited for surface creation")
	}
	assert.Nil(t, s.Surface())

	close(g.release)
	res := <-loaded
	require.NoError(t, res.err)
	assert.Same(t, res.src, s.Source())
	assert.Same(t, g.surface, s.Surface())
	// The preset changed while the surface was being built.
	g.surface.AssertCalled(t, "SetAspectRatio", preset.Free())
}

func TestCloseDuringSurfaceCreation(t *testing.T) {
	g := newGatedFactory()
	s, err := NewSession(preset.Builtin(), g.factory)
	require.NoError(t, err)

	loaded := make(chan loadResult, 1)
	go func() {
		src, err := s.LoadImage(context.Background(), encodePNG(t, 16, 16), "image/png")
		loaded <- loadResult{src, err}
	}()
	<-g.started

	s.Close()
	close(g.release)
	res := <-loaded
	assert.ErrorIs(t, res.err, ErrStaleLoad)
	assert.Nil(t, s.Surface())
	assert.Nil(t, s.Source())
	g.surface.AssertNumberOfCalls(t, "Destroy", 1)
}

func TestSupersededLoadFailureIsStale(t *testing.T) {
	s, l := newTestSession(t, image.Rect(0, 0, 10, 10))
	ctx := context.Background()

	older := s.BeginLoad()
	newer := s.BeginLoad()

	_, err := s.CommitLoad(ctx, older, []byte("not an image"), "image/png")
	assert.ErrorIs(t, err, ErrStaleLoad)
	assert.NotErrorIs(t, err, ErrUnsupportedImage)

	_, err = s.CommitLoad(ctx, newer, []byte("not an image"), "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.Empty(t, l.created)
}
