package validation

import (
	"strconv"
	"strings"
)

// Setting is a numeric value bound to an inclusive range. Between Input
// and Commit the value may sit outside the range while the user is typing;
// Commit always clamps it back. Setting is not safe for concurrent use.
type Setting struct {
	rng   Range
	value float64
}

// NewSetting creates a setting whose initial value is clamped into r.
func NewSetting(r Range, initial float64) *Setting {
	return &Setting{rng: r, value: r.Clamp(initial)}
}

// Value returns the current, possibly uncommitted, value.
func (s *Setting) Value() float64 { return s.value }

// Input records typed text. Empty or non-numeric text is ignored and false is
// returned; otherwise the parsed number is stored unclamped.
func (s *Setting) Input(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || !IsValidNumber(v) {
		return false
	}
	s.value = v
	return true
}

// Set stores v as is. Used to write a corrected value back.
func (s *Setting) Set(v float64) {
	s.value = v
}

// Commit clamps the current value into range and returns it.
func (s *Setting) Commit() float64 {
	s.value = s.rng.Clamp(s.value)
	return s.value
}

