package util

import "sync/atomic"

// Sequence hands out monotonically increasing tokens. It is safe to use concurrently.
type Sequence struct {
	value atomic.Uint64
}

// NewSequence creates a new Sequence starting at zero.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next advances the sequence and returns the new token.
func (s *Sequence) Next() uint64 {
	return s.value.Add(1)
}

// Current returns the most recently issued token, or zero if none was issued.
func (s *Sequence) Current() uint64 {
	return s.value.Load()
}

// IsCurrent reports whether token is the most recently issued one.
func (s *Sequence) IsCurrent(token uint64) bool {
	return token != 0 && s.value.Load() == token
}

// SafeFlag is safe to use concurrently.
type SafeFlag struct {
	value atomic.Bool
}

// NewSafeBoolWithValue creates a new SafeFlag with an initial value.
func NewSafeBoolWithValue(initialValue bool) *SafeFlag {
	sf := &SafeFlag{}
	sf.value.Store(initialValue)
	return sf
}

// Set sets the value of the flag and returns the new value.
func (sf *SafeFlag) Set(newValue bool) bool {
	sf.value.Store(newValue)
	return newValue
}

// Value returns the current value of the flag.
func (sf *SafeFlag) Value() bool {
	return sf.value.Load()
}

// Swap sets the flag to newValue only if it currently holds old, and reports
// whether it did.
func (sf *SafeFlag) Swap(old, newValue bool) bool {
	return sf.value.CompareAndSwap(old, newValue)
}
