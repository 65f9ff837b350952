package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig(t *testing.T) {
	cfg := NewAppConfig(NewMemoryPreferences())

	t.Run("DefaultPreset", func(t *testing.T) {
		assert.Equal(t, "", cfg.GetDefaultPreset())
		cfg.SetDefaultPreset("TikTok (9:16)")
		assert.Equal(t, "TikTok (9:16)", cfg.GetDefaultPreset())
	})

	t.Run("JPEGQuality", func(t *testing.T) {
		assert.Equal(t, DefaultJPEGQuality, cfg.GetJPEGQuality())
		cfg.SetJPEGQuality(80)
		assert.Equal(t, 80, cfg.GetJPEGQuality())
		cfg.SetJPEGQuality(0)
		assert.Equal(t, DefaultJPEGQuality, cfg.GetJPEGQuality())
		cfg.SetJPEGQuality(101)
		assert.Equal(t, DefaultJPEGQuality, cfg.GetJPEGQuality())
	})

	t.Run("SmartPlacement", func(t *testing.T) {
		assert.False(t, cfg.GetSmartPlacement())
		cfg.SetSmartPlacement(true)
		assert.True(t, cfg.GetSmartPlacement())
	})

	t.Run("Paths", func(t *testing.T) {
		assert.Equal(t, "", cfg.GetOutputDir())
		assert.Equal(t, "", cfg.GetFaceModelPath())
		cfg.SetOutputDir("/tmp/out")
		cfg.SetFaceModelPath("/models/facefinder")
		assert.Equal(t, "/tmp/out", cfg.GetOutputDir())
		assert.Equal(t, "/models/facefinder", cfg.GetFaceModelPath())
	})

	t.Run("ServerAddr", func(t *testing.T) {
		assert.Equal(t, DefaultServerAddr, cfg.GetServerAddr())
		cfg.SetServerAddr("127.0.0.1:8080")
		assert.Equal(t, "127.0.0.1:8080", cfg.GetServerAddr())
	})

	t.Run("UpdateCheck", func(t *testing.T) {
		assert.True(t, cfg.GetUpdateCheckEnabled())
		cfg.SetUpdateCheckEnabled(false)
		assert.False(t, cfg.GetUpdateCheckEnabled())
	})

	t.Run("Theme", func(t *testing.T) {
		assert.Equal(t, "System", cfg.GetTheme())
		cfg.SetTheme("Dark")
		assert.Equal(t, "Dark", cfg.GetTheme())
	})
}

func TestFilePreferencesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	p, err := LoadFilePreferences(path)
	require.NoError(t, err)

	calls := 0
	p.AddChangeListener(func() { calls++ })

	p.SetString(DefaultPresetKey, "Free Crop")
	p.SetInt(JPEGQualityKey, 70)
	p.SetBool(SmartPlacementKey, true)
	p.SetFloatList("weights", []float64{0.5, 1.5})
	assert.Equal(t, 4, calls)
	require.NoError(t, p.Save())

	again, err := LoadFilePreferences(path)
	require.NoError(t, err)
	assert.Equal(t, "Free Crop", again.String(DefaultPresetKey))
	assert.Equal(t, 70, again.Int(JPEGQualityKey))
	assert.True(t, again.Bool(SmartPlacementKey))
	assert.Equal(t, []float64{0.5, 1.5}, again.FloatList("weights"))
	assert.Equal(t, []string{}, again.StringList("missing"))

	again.RemoveValue(JPEGQualityKey)
	assert.Equal(t, 42, again.IntWithFallback(JPEGQualityKey, 42))
}

func TestLoadFilePreferencesBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	_, err := LoadFilePreferences(path)
	assert.Error(t, err)
}

func TestMemoryPreferencesSaveIsNoop(t *testing.T) {
	p := NewMemoryPreferences()
	p.SetString("k", "v")
	assert.NoError(t, p.Save())
	assert.Len(t, p.ChangeListeners(), 0)
}
