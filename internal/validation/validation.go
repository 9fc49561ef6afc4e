// Package validation checks and clamps user-supplied numeric settings before
// they are used for any remote call.
package validation

import (
	"fmt"
	"math"
	"strconv"
)

// Result is the outcome of a single range check.
type Result struct {
	IsValid bool
	Value   float64 // the input when valid, otherwise the corrected value
	Message string  // empty when valid
}

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v is a finite number inside r.
func (r Range) Contains(v float64) bool {
	return IsValidNumber(v) && v >= r.Min && v <= r.Max
}

// Clamp constrains v to r.
func (r Range) Clamp(v float64) float64 {
	return Clamp(v, r.Min, r.Max)
}

// IsValidNumber reports whether v is neither NaN nor infinite.
func IsValidNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clamp constrains v to [min, max]. Non-finite values map to min.
func Clamp(v, min, max float64) float64 {
	if !IsValidNumber(v) {
		return min
	}
	return math.Min(math.Max(v, min), max)
}

// ValidateInRange checks value against the inclusive bounds. Boundary values
// are valid. label prefixes the message, e.g. "Move meters must be at least 0.1".
func ValidateInRange(value, min, max float64, label string) Result {
	if !IsValidNumber(value) {
		return Result{Value: min, Message: fmt.Sprintf("%s must be a valid number", label)}
	}
	if value < min {
		return Result{Value: min, Message: fmt.Sprintf("%s must be at least %s", label, formatNumber(min))}
	}
	if value > max {
		return Result{Value: max, Message: fmt.Sprintf("%s must be at most %s", label, formatNumber(max))}
	}
	return Result{IsValid: true, Value: value}
}

// formatNumber renders v the shortest way that round-trips: 0.1, 100, 3600000.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
