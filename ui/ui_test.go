package ui

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dixieflatline76/InstaRatio/config"
	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/pkg/surface"
	"github.com/dixieflatline76/InstaRatio/pkg/ui/setting"
)

func squareCfg() crop.SurfaceConfig {
	cfg := crop.DefaultSurfaceConfig()
	cfg.AspectRatio = preset.Fixed(1, 1)
	return cfg
}

func drag(c *CropCanvas, x, y, dx, dy float32) {
	c.Dragged(&fyne.DragEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(x+dx, y+dy)},
		Dragged:    fyne.NewDelta(dx, dy),
	})
}

func TestCropCanvasMoveAndZoom(t *testing.T) {
	test.NewApp()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	c := NewCropCanvas(img, squareCfg(), surface.Factory)
	c.Resize(fyne.NewSize(400, 300))

	assert.Equal(t, image.Rect(80, 30, 320, 270), c.CropRect())

	drag(c, 200, 150, 10, 5)
	c.DragEnd()
	assert.Equal(t, image.Rect(90, 35, 330, 275), c.CropRect())

	// Dragging outside the box does nothing in move mode.
	drag(c, 5, 5, 10, 0)
	c.DragEnd()
	assert.Equal(t, image.Rect(90, 35, 330, 275), c.CropRect())

	c.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, 1)})
	got := c.CropRect()
	assert.Less(t, got.Dx(), 240)
	assert.Equal(t, got.Dx(), got.Dy())

	c.Reset()
	assert.Equal(t, image.Rect(80, 30, 320, 270), c.CropRect())
}

func TestCropCanvasSubPixelDrag(t *testing.T) {
	test.NewApp()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	c := NewCropCanvas(img, squareCfg(), surface.Factory)
	c.Resize(fyne.NewSize(800, 600)) // two screen pixels per source pixel

	drag(c, 400, 300, 1, 0)
	assert.Equal(t, image.Rect(80, 30, 320, 270), c.CropRect())
	drag(c, 401, 300, 1, 0)
	assert.Equal(t, image.Rect(81, 30, 321, 270), c.CropRect())
	c.DragEnd()
}

func TestCropCanvasDrawMode(t *testing.T) {
	test.NewApp()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	cfg := squareCfg()
	cfg.DragMode = crop.DragModeCrop
	c := NewCropCanvas(img, cfg, surface.Factory)
	c.Resize(fyne.NewSize(400, 300))

	drag(c, 10, 10, 50, 20)
	got := c.CropRect()
	assert.Equal(t, image.Pt(10, 10), got.Min)
	assert.Equal(t, 50, got.Dx())
	assert.Equal(t, 50, got.Dy())
	c.DragEnd()
}

func TestCropCanvasDestroy(t *testing.T) {
	test.NewApp()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	c := NewCropCanvas(img, squareCfg(), nil)
	c.Destroy()

	assert.True(t, c.CropRect().Empty())
	drag(c, 20, 15, 5, 0)
	assert.True(t, c.CropRect().Empty())
}

func TestCanvasFactoryFallsBack(t *testing.T) {
	test.NewApp()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	other := func(image.Image, crop.SurfaceConfig) crop.Surface { return nil }

	s := CanvasFactory(other)(img, squareCfg())
	require.IsType(t, &CropCanvas{}, s)
	assert.Equal(t, image.Rect(80, 30, 320, 270), s.CropRect())
}

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestInstaRatioAppDrivesSession(t *testing.T) {
	a := test.NewApp()
	cfg := config.NewAppConfig(config.NewMemoryPreferences())
	cfg.SetDefaultPreset("Twitter Post (16:9)")

	ia, err := NewInstaRatioApp(a, cfg)
	require.NoError(t, err)
	s := ia.Session()
	assert.Equal(t, "Twitter Post (16:9)", s.SelectedPreset())
	assert.Equal(t, "Twitter Post (16:9) (1.78)", ia.presetSelect.Selected)
	assert.Len(t, ia.presetSelect.Options, 11)
	assert.True(t, ia.processBtn.Disabled())

	_, err = s.LoadImage(context.Background(), pngData(t, 400, 300), "image/png")
	require.NoError(t, err)
	require.IsType(t, &CropCanvas{}, s.Surface())

	ia.presetSelect.SetSelected("Instagram Post (1:1) (1.00)")
	assert.Equal(t, "Instagram Post (1:1)", s.SelectedPreset())
	r := s.Surface().CropRect()
	assert.Equal(t, r.Dx(), r.Dy())

	out, err := s.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crop.MIMEPNG, out.MIMEType)

	name, err := s.DownloadName()
	require.NoError(t, err)
	assert.Equal(t, "instaratio_processed_Instagram_Post__1_1_.png", name)
}

func TestApplyPreferences(t *testing.T) {
	a := test.NewApp()
	cfg := config.NewAppConfig(config.NewMemoryPreferences())
	ia, err := NewInstaRatioApp(a, cfg)
	require.NoError(t, err)

	cfg.SetSmartPlacement(true)
	cfg.SetFaceModelPath(filepath.Join(t.TempDir(), "missing"))
	ia.applyPreferences()

	// A broken face model keeps the previous factory.
	_, err = ia.Session().LoadImage(context.Background(), pngData(t, 400, 300), "image/png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(80, 30, 320, 270), ia.Session().Surface().CropRect())
}

func TestSettingsManagerStagesChanges(t *testing.T) {
	test.NewApp()
	w := test.NewWindow(nil)
	defer w.Close()

	applied := 0
	sm := NewSettingsManager(w, func() { applied++ })
	form := container.NewVBox()

	var got bool
	check := sm.CreateBoolSetting(&setting.BoolConfig{
		Name:      "flag",
		ApplyFunc: func(b bool) { got = b },
	}, form)

	var quality int
	slider := sm.CreateSliderSetting(&setting.SliderConfig{
		Name: "quality", Min: 1, Max: 100, InitialValue: 95,
		ApplyFunc: func(v int) { quality = v },
	}, form)

	assert.Equal(t, 0, sm.Pending())
	assert.True(t, sm.GetApplySettingsButton().Disabled())

	check.SetChecked(true)
	slider.SetValue(60)
	assert.Equal(t, 2, sm.Pending())
	assert.False(t, sm.GetApplySettingsButton().Disabled())

	check.SetChecked(false)
	assert.Equal(t, 1, sm.Pending())

	test.Tap(sm.GetApplySettingsButton())
	assert.Equal(t, 60, quality)
	assert.False(t, got)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, sm.Pending())
	assert.True(t, sm.GetApplySettingsButton().Disabled())
	assert.Equal(t, w, sm.GetSettingsWindow())
}

func TestTextEntrySettingSkipsInvalid(t *testing.T) {
	test.NewApp()
	sm := NewSettingsManager(test.NewWindow(nil), nil)
	form := container.NewVBox()

	entry := sm.CreateTextEntrySetting(&setting.TextEntrySettingConfig{
		Name:      "model",
		Validator: fileOrEmpty,
		ApplyFunc: func(string) {},
	}, form)

	entry.SetText(filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, 0, sm.Pending())

	entry.SetText(t.TempDir())
	assert.Equal(t, 0, sm.Pending(), "directories are rejected")

	entry.SetText("")
	assert.Equal(t, 0, sm.Pending())
}

func TestThemeFor(t *testing.T) {
	bg := theme.ColorNameBackground
	def := theme.DefaultTheme()

	assert.Equal(t, def.Color(bg, theme.VariantDark), themeFor("Dark").Color(bg, theme.VariantLight))
	assert.Equal(t, def.Color(bg, theme.VariantLight), themeFor("Light").Color(bg, theme.VariantDark))
	assert.Equal(t, def, themeFor("System"))
	assert.Equal(t, def, themeFor("bogus"))
}

func TestSettingsLabels(t *testing.T) {
	test.NewApp()
	sm := NewSettingsManager(test.NewWindow(nil), nil)

	section := sm.CreateSectionTitleLabel("Output")
	assert.Equal(t, widget.HighImportance, section.Importance)
	assert.True(t, section.TextStyle.Bold)

	title := sm.CreateSettingTitleLabel("JPEG quality")
	assert.Equal(t, widget.MediumImportance, title.Importance)
	assert.Equal(t, fyne.TextWrapWord, title.Wrapping)

	desc, ok := sm.CreateSettingDescriptionLabel("Used for JPEG sources.").(*widget.Label)
	require.True(t, ok)
	assert.Equal(t, widget.LowImportance, desc.Importance)
	assert.True(t, desc.TextStyle.Italic)
	assert.Equal(t, "Used for JPEG sources.", desc.Text)
}
