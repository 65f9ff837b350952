// Package config provides user settings backed by fyne.Preferences.
package config

import (
	"fyne.io/fyne/v2"
)

// Preference keys.
const (
	DefaultPresetKey         = "default_preset"
	OutputDirKey             = "output_dir"
	JPEGQualityKey           = "jpeg_quality"
	SmartPlacementKey        = "smart_placement"
	FaceModelPathKey         = "face_model_path"
	ServerAddrKey            = "server_addr"
	AppUpdateCheckEnabledKey = "app_update_check_enabled"
	AppThemeKey              = "app_theme"
)

// Defaults.
const (
	DefaultServerAddr  = "127.0.0.1:49453"
	DefaultJPEGQuality = 95
)

// AppConfig holds the application-wide configuration
type AppConfig struct {
	prefs fyne.Preferences
}

// NewAppConfig creates a new AppConfig instance
func NewAppConfig(p fyne.Preferences) *AppConfig {
	return &AppConfig{prefs: p}
}

// Preferences returns the underlying store.
func (c *AppConfig) Preferences() fyne.Preferences {
	return c.prefs
}

// GetDefaultPreset returns the preset new sessions start with. Empty means the built-in default.
func (c *AppConfig) GetDefaultPreset() string {
	return c.prefs.StringWithFallback(DefaultPresetKey, "")
}

// SetDefaultPreset sets the preset new sessions start with
func (c *AppConfig) SetDefaultPreset(name string) {
	c.prefs.SetString(DefaultPresetKey, name)
}

// GetOutputDir returns where saved images go. Empty means the user's Downloads folder.
func (c *AppConfig) GetOutputDir() string {
	return c.prefs.StringWithFallback(OutputDirKey, "")
}

// SetOutputDir sets where saved images go
func (c *AppConfig) SetOutputDir(dir string) {
	c.prefs.SetString(OutputDirKey, dir)
}

// GetJPEGQuality returns the quality used when re-encoding JPEG sources, clamped to 1..100
func (c *AppConfig) GetJPEGQuality() int {
	q := c.prefs.IntWithFallback(JPEGQualityKey, DefaultJPEGQuality)
	if q < 1 || q > 100 {
		return DefaultJPEGQuality
	}
	return q
}

// SetJPEGQuality sets the JPEG quality
func (c *AppConfig) SetJPEGQuality(q int) {
	c.prefs.SetInt(JPEGQualityKey, q)
}

// GetSmartPlacement returns whether the initial crop box is placed by content analysis
func (c *AppConfig) GetSmartPlacement() bool {
	return c.prefs.BoolWithFallback(SmartPlacementKey, false)
}

// SetSmartPlacement sets whether the initial crop box is placed by content analysis
func (c *AppConfig) SetSmartPlacement(enabled bool) {
	c.prefs.SetBool(SmartPlacementKey, enabled)
}

// GetFaceModelPath returns the path of a pigo face cascade, or empty when face placement is off
func (c *AppConfig) GetFaceModelPath() string {
	return c.prefs.StringWithFallback(FaceModelPathKey, "")
}

// SetFaceModelPath sets the path of the pigo face cascade
func (c *AppConfig) SetFaceModelPath(path string) {
	c.prefs.SetString(FaceModelPathKey, path)
}

// GetServerAddr returns the listen address of the local web tool
func (c *AppConfig) GetServerAddr() string {
	return c.prefs.StringWithFallback(ServerAddrKey, DefaultServerAddr)
}

// SetServerAddr sets the listen address of the local web tool
func (c *AppConfig) SetServerAddr(addr string) {
	c.prefs.SetString(ServerAddrKey, addr)
}

// GetUpdateCheckEnabled returns whether the application should check for updates
func (c *AppConfig) GetUpdateCheckEnabled() bool {
	return c.prefs.BoolWithFallback(AppUpdateCheckEnabledKey, true)
}

// SetUpdateCheckEnabled sets whether the application should check for updates
func (c *AppConfig) SetUpdateCheckEnabled(enabled bool) {
	c.prefs.SetBool(AppUpdateCheckEnabledKey, enabled)
}

// GetTheme returns the current application theme
func (c *AppConfig) GetTheme() string {
	return c.prefs.StringWithFallback(AppThemeKey, "System")
}

// SetTheme sets the application theme
func (c *AppConfig) SetTheme(theme string) {
	c.prefs.SetString(AppThemeKey, theme)
}
