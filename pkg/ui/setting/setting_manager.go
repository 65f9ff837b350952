package setting

import (
	"iter"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

// SettingsHelper is the interface that must be implemented by all settings helpers.
type SettingsHelper interface {
	CreateSectionTitleLabel(desc string) *widget.Label           // Creates a section title label.
	CreateSettingTitleLabel(desc string) *widget.Label           // Creates a setting title label.
	CreateSettingDescriptionLabel(desc string) fyne.CanvasObject // Creates a setting description label.
}

// SelectConfig holds the configuration for a generic select widget.
type SelectConfig struct {
	Name         string
	Options      []string
	InitialValue int
	Label        fyne.CanvasObject
	HelpContent  fyne.CanvasObject
	ApplyFunc    func(int)
}

// BoolConfig holds configuration for a generic boolean check widget.
type BoolConfig struct {
	Name         string
	InitialValue bool
	Label        fyne.CanvasObject
	HelpContent  fyne.CanvasObject
	ApplyFunc    func(bool)
}

// TextEntrySettingConfig holds configuration for a generic text entry widget.
type TextEntrySettingConfig struct {
	Name         string
	InitialValue string
	PlaceHolder  string
	Label        fyne.CanvasObject
	HelpContent  fyne.CanvasObject
	Validator    fyne.StringValidator
	ApplyFunc    func(string)
}

// SliderConfig holds configuration for an integer slider.
type SliderConfig struct {
	Name         string
	Min, Max     int
	InitialValue int
	Label        fyne.CanvasObject
	HelpContent  fyne.CanvasObject
	ApplyFunc    func(int)
}

// Options maps items to their display strings, keeping their order.
func Options[T any](items iter.Seq[T], label func(T) string) []string {
	options := []string{}
	for item := range items {
		options = append(options, label(item))
	}
	return options
}

// SettingsManager is an interface for managing settings. Changes are staged and
// only applied when the Apply Changes button is pressed.
type SettingsManager interface {
	SettingsHelper

	CreateSelectSetting(cfg *SelectConfig, header *fyne.Container) *widget.Select             // Create a select setting widget.
	CreateBoolSetting(cfg *BoolConfig, header *fyne.Container) *widget.Check                  // Create a boolean setting widget.
	CreateTextEntrySetting(cfg *TextEntrySettingConfig, header *fyne.Container) *widget.Entry // Create a text entry setting widget.
	CreateSliderSetting(cfg *SliderConfig, header *fyne.Container) *widget.Slider             // Create an integer slider setting widget.

	GetApplySettingsButton() *widget.Button                        // GetApplySettingsButton returns the Apply Changes button.
	SetSettingChangedCallback(settingName string, callback func()) // Set a callback function to be called when a setting changes.
	RemoveSettingChangedCallback(settingName string)               // Remove a callback function associated with a specific setting.
	GetSettingsWindow() fyne.Window                                // GetSettingsWindow returns the window associated with the SettingsManager.
}
