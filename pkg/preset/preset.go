// Package preset holds the catalogue of named social-media aspect ratios.
package preset

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
)

// ErrUnknownPreset is returned when a preset name is not in the registry.
var ErrUnknownPreset = errors.New("unknown preset")

// ErrInvalidRatio is returned when a fixed ratio is not strictly positive and finite.
var ErrInvalidRatio = errors.New("invalid aspect ratio")

// Ratio is either a fixed width/height ratio or the free (unconstrained) variant.
// The zero value is Free.
type Ratio struct {
	value float64
	fixed bool
}

// Free returns the unconstrained ratio.
func Free() Ratio {
	return Ratio{}
}

// Fixed returns the ratio w/h. It panics if the result is not strictly positive
// and finite; use NewFixed when the inputs come from users.
func Fixed(w, h float64) Ratio {
	r, err := NewFixed(w, h)
	if err != nil {
		panic(err)
	}
	return r
}

// NewFixed returns the ratio w/h or ErrInvalidRatio.
func NewFixed(w, h float64) (Ratio, error) {
	if h == 0 {
		return Ratio{}, fmt.Errorf("%w: %v/%v", ErrInvalidRatio, w, h)
	}
	v := w / h
	if !(v > 0) || math.IsInf(v, 0) {
		return Ratio{}, fmt.Errorf("%w: %v/%v", ErrInvalidRatio, w, h)
	}
	return Ratio{value: v, fixed: true}, nil
}

// IsFree reports whether the ratio places no constraint on the crop.
func (r Ratio) IsFree() bool {
	return !r.fixed
}

// Value returns the width/height ratio. ok is false for Free.
func (r Ratio) Value() (v float64, ok bool) {
	return r.value, r.fixed
}

// String renders the ratio the way the preset selector labels it, e.g. "1.91" or "Free".
func (r Ratio) String() string {
	if !r.fixed {
		return "Free"
	}
	return strconv.FormatFloat(r.value, 'f', 2, 64)
}

// Preset is a named aspect ratio.
type Preset struct {
	Name  string
	Ratio Ratio
}

// Label is the text shown in preset selectors.
func (p Preset) Label() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Ratio)
}

// Default is the preset a new session starts with.
const Default = "Instagram Post (1:1)"

// FreeCrop is the name of the unconstrained preset.
const FreeCrop = "Free Crop"

// Registry is an ordered, immutable catalogue of presets.
type Registry struct {
	presets []Preset
	index   map[string]int
}

// NewRegistry builds a registry in the given order. Names must be unique.
func NewRegistry(presets ...Preset) (*Registry, error) {
	reg := &Registry{
		presets: make([]Preset, 0, len(presets)),
		index:   make(map[string]int, len(presets)),
	}
	for _, p := range presets {
		if p.Name == "" {
			return nil, errors.New("preset name is empty")
		}
		if _, dup := reg.index[p.Name]; dup {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		if v, ok := p.Ratio.Value(); ok && (!(v > 0) || math.IsInf(v, 0)) {
			return nil, fmt.Errorf("preset %q: %w", p.Name, ErrInvalidRatio)
		}
		reg.index[p.Name] = len(reg.presets)
		reg.presets = append(reg.presets, p)
	}
	return reg, nil
}

var builtin = mustRegistry(
	Preset{"Instagram Post (1:1)", Fixed(1, 1)},
	Preset{"Instagram Post (4:5)", Fixed(4, 5)},
	Preset{"Instagram Story (9:16)", Fixed(9, 16)},
	Preset{"TikTok (9:16)", Fixed(9, 16)},
	Preset{"TikTok (1:1)", Fixed(1, 1)},
	Preset{"YouTube Thumbnail (16:9)", Fixed(16, 9)},
	Preset{"Twitter Post (16:9)", Fixed(16, 9)},
	Preset{"Twitter Post (1:1)", Fixed(1, 1)},
	Preset{"Facebook Post (1.91:1)", Fixed(1.91, 1)},
	Preset{"Facebook Post (1:1)", Fixed(1, 1)},
	Preset{FreeCrop, Free()},
)

func mustRegistry(presets ...Preset) *Registry {
	reg, err := NewRegistry(presets...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Builtin returns the social-media preset catalogue.
func Builtin() *Registry {
	return builtin
}

// List yields presets in registration order. The sequence can be ranged over
// any number of times.
func (r *Registry) List() iter.Seq[Preset] {
	return func(yield func(Preset) bool) {
		for _, p := range r.presets {
			if !yield(p) {
				return
			}
		}
	}
}

// Names returns the preset names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.presets))
	for i, p := range r.presets {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of presets.
func (r *Registry) Len() int {
	return len(r.presets)
}

// Lookup returns the named preset.
func (r *Registry) Lookup(name string) (Preset, error) {
	i, ok := r.index[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return r.presets[i], nil
}

// RatioFor returns the ratio of the named preset.
func (r *Registry) RatioFor(name string) (Ratio, error) {
	p, err := r.Lookup(name)
	if err != nil {
		return Ratio{}, err
	}
	return p.Ratio, nil
}

// Contains reports whether name is a registered preset.
func (r *Registry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}
