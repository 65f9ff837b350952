package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fyne.io/fyne/v2"
)

// FilePreferences is a fyne.Preferences stored as JSON. The CLI and the web
// tool use it where no Fyne app exists. An empty path keeps values in memory.
type FilePreferences struct {
	mu        sync.RWMutex
	path      string
	data      prefData
	listeners []func()
}

type prefData struct {
	Bools       map[string]bool      `json:"bools,omitempty"`
	Ints        map[string]int       `json:"ints,omitempty"`
	Floats      map[string]float64   `json:"floats,omitempty"`
	Strings     map[string]string    `json:"strings,omitempty"`
	BoolLists   map[string][]bool    `json:"bool_lists,omitempty"`
	IntLists    map[string][]int     `json:"int_lists,omitempty"`
	FloatLists  map[string][]float64 `json:"float_lists,omitempty"`
	StringLists map[string][]string  `json:"string_lists,omitempty"`
}

var _ fyne.Preferences = (*FilePreferences)(nil)

// NewMemoryPreferences returns preferences that are never written to disk.
func NewMemoryPreferences() *FilePreferences {
	return &FilePreferences{data: newPrefData()}
}

// LoadFilePreferences reads path if it exists. A missing file is not an error.
func LoadFilePreferences(path string) (*FilePreferences, error) {
	p := &FilePreferences{path: path, data: newPrefData()}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		return nil, fmt.Errorf("parsing preferences %s: %w", path, err)
	}
	p.data.fill()
	return p, nil
}

// DefaultPreferencesPath returns ~/.instaratio/config.json.
func DefaultPreferencesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName, "config.json"), nil
}

// Save writes the preferences to disk. Memory preferences ignore it.
func (p *FilePreferences) Save() error {
	if p.path == "" {
		return nil
	}
	p.mu.RLock()
	data, err := json.MarshalIndent(p.data, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(p.path, data, 0644)
}

func newPrefData() prefData {
	var d prefData
	d.fill()
	return d
}

func (d *prefData) fill() {
	if d.Bools == nil {
		d.Bools = map[string]bool{}
	}
	if d.Ints == nil {
		d.Ints = map[string]int{}
	}
	if d.Floats == nil {
		d.Floats = map[string]float64{}
	}
	if d.Strings == nil {
		d.Strings = map[string]string{}
	}
	if d.BoolLists == nil {
		d.BoolLists = map[string][]bool{}
	}
	if d.IntLists == nil {
		d.IntLists = map[string][]int{}
	}
	if d.FloatLists == nil {
		d.FloatLists = map[string][]float64{}
	}
	if d.StringLists == nil {
		d.StringLists = map[string][]string{}
	}
}

func get[T any](p *FilePreferences, m map[string]T, key string, fallback T) T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func set[T any](p *FilePreferences, m map[string]T, key string, value T) {
	p.mu.Lock()
	m[key] = value
	listeners := append([]func(){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (p *FilePreferences) Bool(key string) bool { return p.BoolWithFallback(key, false) }
func (p *FilePreferences) BoolWithFallback(key string, fallback bool) bool {
	return get(p, p.data.Bools, key, fallback)
}
func (p *FilePreferences) SetBool(key string, value bool) { set(p, p.data.Bools, key, value) }

func (p *FilePreferences) BoolList(key string) []bool { return p.BoolListWithFallback(key, []bool{}) }
func (p *FilePreferences) BoolListWithFallback(key string, fallback []bool) []bool {
	return get(p, p.data.BoolLists, key, fallback)
}
func (p *FilePreferences) SetBoolList(key string, value []bool) {
	set(p, p.data.BoolLists, key, value)
}

func (p *FilePreferences) Float(key string) float64 { return p.FloatWithFallback(key, 0) }
func (p *FilePreferences) FloatWithFallback(key string, fallback float64) float64 {
	return get(p, p.data.Floats, key, fallback)
}
func (p *FilePreferences) SetFloat(key string, value float64) { set(p, p.data.Floats, key, value) }

func (p *FilePreferences) FloatList(key string) []float64 {
	return p.FloatListWithFallback(key, []float64{})
}
func (p *FilePreferences) FloatListWithFallback(key string, fallback []float64) []float64 {
	return get(p, p.data.FloatLists, key, fallback)
}
func (p *FilePreferences) SetFloatList(key string, value []float64) {
	set(p, p.data.FloatLists, key, value)
}

func (p *FilePreferences) Int(key string) int { return p.IntWithFallback(key, 0) }
func (p *FilePreferences) IntWithFallback(key string, fallback int) int {
	return get(p, p.data.Ints, key, fallback)
}
func (p *FilePreferences) SetInt(key string, value int) { set(p, p.data.Ints, key, value) }

func (p *FilePreferences) IntList(key string) []int { return p.IntListWithFallback(key, []int{}) }
func (p *FilePreferences) IntListWithFallback(key string, fallback []int) []int {
	return get(p, p.data.IntLists, key, fallback)
}
func (p *FilePreferences) SetIntList(key string, value []int) { set(p, p.data.IntLists, key, value) }

func (p *FilePreferences) String(key string) string { return p.StringWithFallback(key, "") }
func (p *FilePreferences) StringWithFallback(key string, fallback string) string {
	return get(p, p.data.Strings, key, fallback)
}
func (p *FilePreferences) SetString(key string, value string) { set(p, p.data.Strings, key, value) }

func (p *FilePreferences) StringList(key string) []string {
	return p.StringListWithFallback(key, []string{})
}
func (p *FilePreferences) StringListWithFallback(key string, fallback []string) []string {
	return get(p, p.data.StringLists, key, fallback)
}
func (p *FilePreferences) SetStringList(key string, value []string) {
	set(p, p.data.StringLists, key, value)
}

// RemoveValue deletes key from every type.
func (p *FilePreferences) RemoveValue(key string) {
	p.mu.Lock()
	delete(p.data.Bools, key)
	delete(p.data.Ints, key)
	delete(p.data.Floats, key)
	delete(p.data.Strings, key)
	delete(p.data.BoolLists, key)
	delete(p.data.IntLists, key)
	delete(p.data.FloatLists, key)
	delete(p.data.StringLists, key)
	p.mu.Unlock()
}

// AddChangeListener registers fn to run after every write.
func (p *FilePreferences) AddChangeListener(fn func()) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// ChangeListeners returns the registered listeners.
func (p *FilePreferences) ChangeListeners() []func() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]func(){}, p.listeners...)
}
