package ui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/dixieflatline76/InstaRatio/pkg/ui/setting"
)

// SettingsManager handles UI elements for settings. Edits are staged as
// callbacks and run together when Apply Changes is pressed.
type SettingsManager struct {
	chgPrefsCallbacks map[string]func()
	applyButton       *widget.Button
	prefsWindow       fyne.Window
	onApplied         func()
}

// NewSettingsManager creates a new SettingsManager. onApplied, if set, runs
// after every successful apply.
func NewSettingsManager(window fyne.Window, onApplied func()) *SettingsManager {
	sm := &SettingsManager{
		chgPrefsCallbacks: make(map[string]func()),
		prefsWindow:       window,
		onApplied:         onApplied,
	}
	sm.applyButton = createApplyButton(sm)
	return sm
}

var _ setting.SettingsManager = (*SettingsManager)(nil)

func createApplyButton(sm *SettingsManager) *widget.Button {
	var applyButton *widget.Button
	applyButton = widget.NewButton("Apply Changes", func() {
		applyButton.Disable()
		for _, callback := range sm.chgPrefsCallbacks {
			callback()
		}
		sm.chgPrefsCallbacks = make(map[string]func())
		if sm.onApplied != nil {
			sm.onApplied()
		}
	})
	applyButton.Disable()
	return applyButton
}

func (sm *SettingsManager) checkAndEnableApply() {
	if len(sm.chgPrefsCallbacks) > 0 {
		sm.applyButton.Enable()
	} else {
		sm.applyButton.Disable()
	}
}

// Pending reports how many settings are waiting to be applied.
func (sm *SettingsManager) Pending() int {
	return len(sm.chgPrefsCallbacks)
}

// GetApplySettingsButton returns the Apply Changes button.
func (sm *SettingsManager) GetApplySettingsButton() *widget.Button {
	return sm.applyButton
}

// CreateSectionTitleLabel returns the bold heading that opens a preferences group.
func (sm *SettingsManager) CreateSectionTitleLabel(desc string) *widget.Label {
	return headingLabel(desc)
}

// CreateSettingTitleLabel returns the name shown next to a single preference.
func (sm *SettingsManager) CreateSettingTitleLabel(desc string) *widget.Label {
	return styledLabel(desc, widget.MediumImportance, fyne.TextStyle{Bold: true})
}

// CreateSettingDescriptionLabel returns the muted help text under a preference.
func (sm *SettingsManager) CreateSettingDescriptionLabel(desc string) fyne.CanvasObject {
	return styledLabel(desc, widget.LowImportance, fyne.TextStyle{Italic: true})
}

// headingLabel is also used for the result pane and the About dialog title.
func headingLabel(text string) *widget.Label {
	return styledLabel(text, widget.HighImportance, fyne.TextStyle{Bold: true})
}

func styledLabel(text string, importance widget.Importance, style fyne.TextStyle) *widget.Label {
	label := widget.NewLabel(text)
	label.Wrapping = fyne.TextWrapWord
	label.Importance = importance
	label.TextStyle = style
	return label
}

// CreateSelectSetting creates a reusable select widget.
func (sm *SettingsManager) CreateSelectSetting(cfg *setting.SelectConfig, header *fyne.Container) *widget.Select {
	selectWidget := widget.NewSelect(cfg.Options, func(string) {})
	if cfg.InitialValue >= 0 && cfg.InitialValue < len(cfg.Options) {
		selectWidget.SetSelectedIndex(cfg.InitialValue)
	}
	addRow(header, cfg.Label, selectWidget, cfg.HelpContent)

	selectWidget.OnChanged = func(string) {
		selectedIndex := selectWidget.SelectedIndex()
		if selectedIndex != cfg.InitialValue {
			sm.SetSettingChangedCallback(cfg.Name, func() {
				cfg.ApplyFunc(selectedIndex)
				cfg.InitialValue = selectedIndex
			})
		} else {
			sm.RemoveSettingChangedCallback(cfg.Name)
		}
	}
	return selectWidget
}

// CreateBoolSetting creates a reusable boolean check setting.
func (sm *SettingsManager) CreateBoolSetting(cfg *setting.BoolConfig, header *fyne.Container) *widget.Check {
	check := widget.NewCheck("", func(bool) {})
	check.SetChecked(cfg.InitialValue)
	addRow(header, cfg.Label, check, cfg.HelpContent)

	check.OnChanged = func(b bool) {
		if b != cfg.InitialValue {
			sm.SetSettingChangedCallback(cfg.Name, func() {
				cfg.ApplyFunc(b)
				cfg.InitialValue = b
			})
		} else {
			sm.RemoveSettingChangedCallback(cfg.Name)
		}
	}
	return check
}

// CreateTextEntrySetting creates a text entry setting. Invalid input is never
// staged.
func (sm *SettingsManager) CreateTextEntrySetting(cfg *setting.TextEntrySettingConfig, header *fyne.Container) *widget.Entry {
	entry := widget.NewEntry()
	entry.SetPlaceHolder(cfg.PlaceHolder)
	entry.SetText(cfg.InitialValue)
	entry.Validator = cfg.Validator
	addRow(header, cfg.Label, entry, cfg.HelpContent)

	entry.OnChanged = func(s string) {
		if cfg.Validator != nil && cfg.Validator(s) != nil {
			sm.RemoveSettingChangedCallback(cfg.Name)
			return
		}
		if s != cfg.InitialValue {
			sm.SetSettingChangedCallback(cfg.Name, func() {
				cfg.ApplyFunc(s)
				cfg.InitialValue = s
			})
		} else {
			sm.RemoveSettingChangedCallback(cfg.Name)
		}
	}
	return entry
}

// CreateSliderSetting creates an integer slider with its value shown beside it.
func (sm *SettingsManager) CreateSliderSetting(cfg *setting.SliderConfig, header *fyne.Container) *widget.Slider {
	slider := widget.NewSlider(float64(cfg.Min), float64(cfg.Max))
	slider.Step = 1
	slider.SetValue(float64(cfg.InitialValue))
	value := widget.NewLabel(fmt.Sprint(cfg.InitialValue))
	addRow(header, cfg.Label, container.NewBorder(nil, nil, nil, value, slider), cfg.HelpContent)

	slider.OnChanged = func(f float64) {
		v := int(f)
		value.SetText(fmt.Sprint(v))
		if v != cfg.InitialValue {
			sm.SetSettingChangedCallback(cfg.Name, func() {
				cfg.ApplyFunc(v)
				cfg.InitialValue = v
			})
		} else {
			sm.RemoveSettingChangedCallback(cfg.Name)
		}
	}
	return slider
}

// SetSettingChangedCallback stages callback under settingName.
func (sm *SettingsManager) SetSettingChangedCallback(settingName string, callback func()) {
	sm.chgPrefsCallbacks[settingName] = callback
	sm.checkAndEnableApply()
}

// RemoveSettingChangedCallback drops the staged change for settingName.
func (sm *SettingsManager) RemoveSettingChangedCallback(settingName string) {
	delete(sm.chgPrefsCallbacks, settingName)
	sm.checkAndEnableApply()
}

// GetSettingsWindow returns the window associated with the SettingsManager.
func (sm *SettingsManager) GetSettingsWindow() fyne.Window {
	return sm.prefsWindow
}

func addRow(header *fyne.Container, label, input, help fyne.CanvasObject) {
	if label == nil {
		label = widget.NewLabel("")
	}
	header.Add(container.NewGridWithColumns(2, label, input))
	if help != nil {
		header.Add(help)
	}
}
