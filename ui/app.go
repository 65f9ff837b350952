package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"os"
	"slices"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/dixieflatline76/InstaRatio/asset"
	"github.com/dixieflatline76/InstaRatio/config"
	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/pkg/sink"
	"github.com/dixieflatline76/InstaRatio/pkg/surface"
	"github.com/dixieflatline76/InstaRatio/pkg/ui/setting"
	"github.com/dixieflatline76/InstaRatio/util"
	"github.com/dixieflatline76/InstaRatio/util/log"
)

// Extensions offered by the Open Image dialog.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

const updateCheckTimeout = 15 * time.Second

// InstaRatioApp is the desktop front end of a crop session.
type InstaRatioApp struct {
	app      fyne.App
	win      fyne.Window
	cfg      *config.AppConfig
	assetMgr *asset.Manager
	session  *crop.Session

	baseMu sync.Mutex
	base   crop.SurfaceFactory

	busy *util.SafeFlag

	presetSelect *widget.Select
	labelToName  map[string]string
	nameToLabel  map[string]string
	stage        *fyne.Container
	preview      *canvas.Image
	status       *widget.Label
	processBtn   *widget.Button
	saveBtn      *widget.Button
	quickSaveBtn *widget.Button
	resetBtn     *widget.Button
}

// NewInstaRatioApp wires a session to a window of a.
func NewInstaRatioApp(a fyne.App, cfg *config.AppConfig) (*InstaRatioApp, error) {
	ia := &InstaRatioApp{
		app:         a,
		cfg:         cfg,
		assetMgr:    asset.NewManager(),
		busy:        util.NewSafeBoolWithValue(false),
		labelToName: make(map[string]string),
		nameToLabel: make(map[string]string),
	}

	base, err := surface.Configure(cfg.GetSmartPlacement(), cfg.GetFaceModelPath())
	if err != nil {
		log.Printf("Smart placement unavailable, using centred crop: %v", err)
		base = surface.Factory
	}
	ia.base = base

	ia.session, err = crop.NewSession(preset.Builtin(), CanvasFactory(ia.currentBase),
		crop.WithJPEGQuality(cfg.GetJPEGQuality()),
		crop.WithInitialPreset(cfg.GetDefaultPreset()),
		crop.WithObserver(ia.onEvent),
	)
	if err != nil {
		return nil, err
	}

	if icon, err := ia.assetMgr.GetIcon(asset.AppIcon); err == nil {
		a.SetIcon(icon)
	}
	a.Settings().SetTheme(themeFor(cfg.GetTheme()))

	ia.win = a.NewWindow(config.AppName)
	ia.win.Resize(fyne.NewSize(1100, 720))
	ia.win.SetContent(ia.buildContent())
	ia.win.SetMainMenu(ia.buildMenu())
	ia.win.SetOnClosed(ia.session.Close)
	ia.refreshControls()
	return ia, nil
}

// Session returns the session driven by the window.
func (ia *InstaRatioApp) Session() *crop.Session {
	return ia.session
}

// Window returns the main window.
func (ia *InstaRatioApp) Window() fyne.Window {
	return ia.win
}

// Run shows the window and blocks until the app quits.
func (ia *InstaRatioApp) Run() {
	if ia.cfg.GetUpdateCheckEnabled() {
		go ia.checkForUpdates(false)
	}
	ia.win.CenterOnScreen()
	ia.win.ShowAndRun()
}

func (ia *InstaRatioApp) currentBase(img image.Image, cfg crop.SurfaceConfig) crop.Surface {
	ia.baseMu.Lock()
	base := ia.base
	ia.baseMu.Unlock()
	return base(img, cfg)
}

func (ia *InstaRatioApp) buildContent() fyne.CanvasObject {
	var options []string
	for p := range ia.session.Registry().List() {
		label := p.Label()
		ia.labelToName[label] = p.Name
		ia.nameToLabel[p.Name] = label
		options = append(options, label)
	}
	ia.presetSelect = widget.NewSelect(options, nil)
	ia.presetSelect.SetSelected(ia.nameToLabel[ia.session.SelectedPreset()])
	ia.presetSelect.OnChanged = ia.selectPreset

	openBtn := widget.NewButtonWithIcon("Open Image", theme.FolderOpenIcon(), ia.openImage)
	ia.resetBtn = widget.NewButtonWithIcon("Reset", theme.ViewRestoreIcon(), ia.resetCrop)
	ia.processBtn = widget.NewButtonWithIcon("Process Image", theme.ContentCutIcon(), ia.processImage)
	ia.saveBtn = widget.NewButtonWithIcon("Save As...", theme.DocumentSaveIcon(), ia.saveAs)
	ia.quickSaveBtn = widget.NewButtonWithIcon("Save to Folder", theme.DownloadIcon(), ia.quickSave)

	toolbar := container.NewHBox(
		openBtn,
		widget.NewLabel("Aspect ratio:"),
		ia.presetSelect,
		ia.resetBtn,
		ia.processBtn,
		ia.saveBtn,
		ia.quickSaveBtn,
	)

	placeholder := widget.NewLabel("Open an image to start cropping.")
	placeholder.Alignment = fyne.TextAlignCenter
	ia.stage = container.NewStack(container.NewCenter(placeholder))

	ia.preview = canvas.NewImageFromImage(nil)
	ia.preview.FillMode = canvas.ImageFillContain
	previewPane := container.NewBorder(headingLabel("Result"), nil, nil, nil, ia.preview)

	split := container.NewHSplit(ia.stage, previewPane)
	split.Offset = 0.7

	ia.status = widget.NewLabel("")
	return container.NewBorder(toolbar, ia.status, nil, nil, split)
}

func (ia *InstaRatioApp) buildMenu() *fyne.MainMenu {
	file := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Image...", ia.openImage),
		fyne.NewMenuItem("Save As...", ia.saveAs),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Preferences", ia.showPreferences),
	)
	help := fyne.NewMenu("Help",
		fyne.NewMenuItem("Check for Updates", func() { go ia.checkForUpdates(true) }),
		fyne.NewMenuItem("About "+config.AppName, ia.showAbout),
	)
	return fyne.NewMainMenu(file, help)
}

// refreshControls enables the buttons that make sense for the session state.
func (ia *InstaRatioApp) refreshControls() {
	hasImage := ia.session.Surface() != nil
	hasOutput := ia.session.Output() != nil
	setEnabled(ia.processBtn, hasImage && !ia.busy.Value())
	setEnabled(ia.resetBtn, hasImage)
	setEnabled(ia.saveBtn, hasOutput)
	setEnabled(ia.quickSaveBtn, hasOutput)
}

func setEnabled(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}

// onEvent runs on whatever goroutine changed the session.
func (ia *InstaRatioApp) onEvent(ev crop.Event) {
	fyne.Do(func() {
		switch ev.Kind {
		case crop.EventImageLoaded:
			if c, ok := ia.session.Surface().(*CropCanvas); ok {
				ia.stage.Objects = []fyne.CanvasObject{c}
				ia.stage.Refresh()
			}
			ia.preview.Image = nil
			ia.preview.Refresh()
			ia.status.SetText(fmt.Sprintf("%dx%d %s, %s", ev.Width, ev.Height, ev.Format, ev.Preset))
		case crop.EventPresetChanged:
			ia.status.SetText(fmt.Sprintf("Aspect ratio %s (%s)", ev.Preset, ev.Ratio))
		case crop.EventProcessed:
			ia.showPreview()
			ia.status.SetText(fmt.Sprintf("Processed %dx%d %s", ev.Width, ev.Height, ev.Format))
		case crop.EventClosed:
			ia.stage.Objects = nil
			ia.stage.Refresh()
		}
		ia.refreshControls()
	})
}

func (ia *InstaRatioApp) showPreview() {
	out := ia.session.Output()
	if out == nil {
		return
	}
	img, _, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		log.Printf("Failed to decode preview: %v", err)
		return
	}
	ia.preview.Image = img
	ia.preview.Refresh()
}

func (ia *InstaRatioApp) selectPreset(label string) {
	name, ok := ia.labelToName[label]
	if !ok {
		return
	}
	if err := ia.session.SelectPreset(name); err != nil {
		dialog.ShowError(err, ia.win)
	}
}

func (ia *InstaRatioApp) openImage() {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, ia.win)
			return
		}
		if rc == nil {
			return
		}
		ia.loadFrom(rc)
	}, ia.win)
	d.SetFilter(storage.NewExtensionFileFilter(imageExtensions))
	d.Show()
}

// loadFrom reads and decodes rc off the UI goroutine. Only the newest of
// overlapping loads is applied.
func (ia *InstaRatioApp) loadFrom(rc fyne.URIReadCloser) {
	ticket := ia.session.BeginLoad()
	ia.status.SetText("Loading " + rc.URI().Name() + "...")

	go func() {
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err == nil {
			_, err = ia.session.CommitLoad(context.Background(), ticket, data, rc.URI().MimeType())
		}
		if errors.Is(err, crop.ErrStaleLoad) {
			return
		}
		if err != nil {
			log.Printf("Failed to load %s: %v", rc.URI(), err)
			fyne.Do(func() {
				ia.status.SetText("")
				dialog.ShowError(err, ia.win)
			})
		}
	}()
}

func (ia *InstaRatioApp) resetCrop() {
	if c, ok := ia.session.Surface().(*CropCanvas); ok {
		c.Reset()
	}
}

func (ia *InstaRatioApp) processImage() {
	if !ia.busy.Swap(false, true) {
		return
	}
	ia.refreshControls()
	ia.status.SetText("Processing...")

	go func() {
		_, err := ia.session.Process(context.Background())
		ia.busy.Set(false)
		fyne.Do(func() {
			if err != nil {
				ia.status.SetText("")
				dialog.ShowError(err, ia.win)
			}
			ia.refreshControls()
		})
	}()
}

func (ia *InstaRatioApp) saveAs() {
	name, err := ia.session.DownloadName()
	if err != nil {
		dialog.ShowError(err, ia.win)
		return
	}

	d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, ia.win)
			return
		}
		if wc == nil {
			return
		}
		go ia.download(writerSink(wc), wc.URI().String())
	}, ia.win)
	d.SetFileName(name)
	if dir := ia.outputDir(); dir != "" {
		if l, err := storage.ListerForURI(storage.NewFileURI(dir)); err == nil {
			d.SetLocation(l)
		}
	}
	d.Show()
}

func (ia *InstaRatioApp) quickSave() {
	dir := ia.outputDir()
	go ia.download(sink.NewDir(dir), dir)
}

func (ia *InstaRatioApp) download(s crop.Sink, where string) {
	name, err := ia.session.Download(context.Background(), s)
	fyne.Do(func() {
		if err != nil {
			dialog.ShowError(err, ia.win)
			return
		}
		ia.status.SetText(fmt.Sprintf("Saved %s to %s", name, where))
	})
}

func (ia *InstaRatioApp) outputDir() string {
	if dir := ia.cfg.GetOutputDir(); dir != "" {
		return dir
	}
	return sink.DefaultDir()
}

// writerSink saves into a file chosen in the save dialog. The name argument is
// ignored because the user already picked one.
func writerSink(wc fyne.URIWriteCloser) crop.Sink {
	return crop.SinkFunc(func(_ context.Context, _ string, data []byte) error {
		_, err := wc.Write(data)
		if cerr := wc.Close(); err == nil {
			err = cerr
		}
		return err
	})
}

func (ia *InstaRatioApp) showPreferences() {
	w := ia.app.NewWindow(fmt.Sprintf("%s Preferences", config.AppName))
	w.Resize(fyne.NewSize(640, 520))

	sm := NewSettingsManager(w, func() {
		ia.applyPreferences()
		w.Close()
	})
	form := container.NewVBox(sm.CreateSectionTitleLabel("Cropping"))

	names := ia.session.Registry().Names()
	current := slices.Index(names, ia.cfg.GetDefaultPreset())
	if current < 0 {
		current = slices.Index(names, preset.Default)
	}
	sm.CreateSelectSetting(&setting.SelectConfig{
		Name:         "defaultPreset",
		Options:      names,
		InitialValue: current,
		Label:        sm.CreateSettingTitleLabel("Default aspect ratio"),
		ApplyFunc:    func(i int) { ia.cfg.SetDefaultPreset(names[i]) },
	}, form)

	sm.CreateBoolSetting(&setting.BoolConfig{
		Name:         "smartPlacement",
		InitialValue: ia.cfg.GetSmartPlacement(),
		Label:        sm.CreateSettingTitleLabel("Smart placement"),
		HelpContent:  sm.CreateSettingDescriptionLabel("Place the first crop box over faces or the busiest part of the image instead of the centre."),
		ApplyFunc:    ia.cfg.SetSmartPlacement,
	}, form)

	sm.CreateTextEntrySetting(&setting.TextEntrySettingConfig{
		Name:         "faceModel",
		InitialValue: ia.cfg.GetFaceModelPath(),
		PlaceHolder:  "path to a pigo facefinder cascade",
		Label:        sm.CreateSettingTitleLabel("Face model"),
		HelpContent:  sm.CreateSettingDescriptionLabel("Optional. Without a model, smart placement uses image energy only."),
		Validator:    fileOrEmpty,
		ApplyFunc:    ia.cfg.SetFaceModelPath,
	}, form)

	form.Add(sm.CreateSectionTitleLabel("Output"))
	sm.CreateSliderSetting(&setting.SliderConfig{
		Name:         "jpegQuality",
		Min:          1,
		Max:          100,
		InitialValue: ia.cfg.GetJPEGQuality(),
		Label:        sm.CreateSettingTitleLabel("JPEG quality"),
		HelpContent:  sm.CreateSettingDescriptionLabel("Used when the source image was a JPEG. Other formats are saved as PNG."),
		ApplyFunc:    ia.cfg.SetJPEGQuality,
	}, form)

	sm.CreateTextEntrySetting(&setting.TextEntrySettingConfig{
		Name:         "outputDir",
		InitialValue: ia.cfg.GetOutputDir(),
		PlaceHolder:  sink.DefaultDir(),
		Label:        sm.CreateSettingTitleLabel("Save to Folder location"),
		ApplyFunc:    ia.cfg.SetOutputDir,
	}, form)

	form.Add(sm.CreateSectionTitleLabel("Application"))
	sm.CreateSelectSetting(&setting.SelectConfig{
		Name:         "theme",
		Options:      themeOptions,
		InitialValue: max(slices.Index(themeOptions, ia.cfg.GetTheme()), 0),
		Label:        sm.CreateSettingTitleLabel("Theme"),
		ApplyFunc:    func(i int) { ia.cfg.SetTheme(themeOptions[i]) },
	}, form)

	sm.CreateBoolSetting(&setting.BoolConfig{
		Name:         "updateCheck",
		InitialValue: ia.cfg.GetUpdateCheckEnabled(),
		Label:        sm.CreateSettingTitleLabel("Check for updates on start"),
		ApplyFunc:    ia.cfg.SetUpdateCheckEnabled,
	}, form)

	closeBtn := widget.NewButton("Close", w.Close)
	buttons := container.NewHBox(sm.GetApplySettingsButton(), closeBtn)
	w.SetContent(container.NewBorder(nil, container.NewCenter(buttons), nil, nil, container.NewVScroll(form)))
	w.Show()
}

// applyPreferences pushes saved preferences into the running session.
func (ia *InstaRatioApp) applyPreferences() {
	ia.session.SetJPEGQuality(ia.cfg.GetJPEGQuality())
	ia.app.Settings().SetTheme(themeFor(ia.cfg.GetTheme()))

	base, err := surface.Configure(ia.cfg.GetSmartPlacement(), ia.cfg.GetFaceModelPath())
	if err != nil {
		dialog.ShowError(fmt.Errorf("smart placement: %w", err), ia.win)
		return
	}
	ia.baseMu.Lock()
	ia.base = base
	ia.baseMu.Unlock()
}

func fileOrEmpty(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func (ia *InstaRatioApp) showAbout() {
	text, err := ia.assetMgr.GetText(asset.AboutText)
	if err != nil {
		text = config.AppName
	}
	body := widget.NewLabel(text)
	body.Wrapping = fyne.TextWrapWord
	content := container.NewVBox(
		headingLabel(fmt.Sprintf("%s %s", config.AppName, config.AppVersion)),
		body,
	)
	d := dialog.NewCustom("About "+config.AppName, "Close", content, ia.win)
	d.Resize(fyne.NewSize(480, 260))
	d.Show()
}

// checkForUpdates runs off the UI goroutine. Quiet checks only speak up when
// there is something new.
func (ia *InstaRatioApp) checkForUpdates(verbose bool) {
	ctx, cancel := context.WithTimeout(context.Background(), updateCheckTimeout)
	defer cancel()

	res, err := util.CheckForUpdates(ctx, nil)
	if err != nil {
		log.Printf("Update check failed: %v", err)
		if verbose {
			fyne.Do(func() { dialog.ShowError(err, ia.win) })
		}
		return
	}
	if !res.UpdateAvailable {
		if verbose {
			fyne.Do(func() {
				dialog.ShowInformation("No Updates", fmt.Sprintf("%s %s is the latest version.", config.AppName, res.CurrentVersion), ia.win)
			})
		}
		return
	}

	log.Printf("Update available: %s -> %s", res.CurrentVersion, res.LatestVersion)
	fyne.Do(func() {
		content := container.NewVBox(widget.NewLabel(fmt.Sprintf("Version %s is available (you have %s).", res.LatestVersion, res.CurrentVersion)))
		if u, err := url.Parse(res.ReleaseURL); err == nil && res.ReleaseURL != "" {
			content.Add(widget.NewHyperlink("Open release page", u))
		}
		dialog.NewCustom("Update Available", "Close", content, ia.win).Show()
	})
}
