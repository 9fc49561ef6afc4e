package validation

import (
	"math"
	"robotfleet/internal/apperrors"
)

// Field names a user-editable setting.
type Field string

const (
	FieldMeters       Field = "meters"
	FieldIntervalMs   Field = "intervalMs"
	FieldRobotCount   Field = "robotCount"
	FieldPollInterval Field = "pollIntervalMs"
)

// Labels used in validation messages.
const (
	LabelMeters       = "Move meters"
	LabelInterval     = "Auto interval"
	LabelRobotCount   = "Robot count"
	LabelPollInterval = "Poll interval"
)

// Bounds holds the inclusive range of each setting.
type Bounds struct {
	Meters     Range `yaml:"meters" json:"meters"`
	IntervalMs Range `yaml:"intervalMs" json:"intervalMs"`
	RobotCount Range `yaml:"robotCount" json:"robotCount"`
}

// For returns the range and message label of a field. The poll interval
// shares the auto interval's range.
func (b Bounds) For(f Field) (Range, string) {
	switch f {
	case FieldMeters:
		return b.Meters, LabelMeters
	case FieldIntervalMs:
		return b.IntervalMs, LabelInterval
	case FieldPollInterval:
		return b.IntervalMs, LabelPollInterval
	default:
		return b.RobotCount, LabelRobotCount
	}
}

// Inputs are raw, possibly uncommitted values for a batch check.
type Inputs struct {
	Meters     float64
	IntervalMs float64
	RobotCount float64
}

// Validated holds values safe to send over the wire. Count is only set when
// the robot count was part of the batch.
type Validated struct {
	Meters     float64
	IntervalMs float64
	Count      int
	HasCount   bool
}

// FieldError reports the first invalid field of a batch.
type FieldError struct {
	Field          Field
	Message        string
	CorrectedValue float64
}

func (e *FieldError) Error() string {
	return e.Message
}

// Unwrap classifies FieldError as a validation error.
func (e *FieldError) Unwrap() error {
	return apperrors.ErrValidation
}

// CheckField validates a single field against its bounds.
func CheckField(f Field, value float64, b Bounds) error {
	r, label := b.For(f)
	res := ValidateInRange(value, r.Min, r.Max, label)
	if res.IsValid {
		return nil
	}
	return &FieldError{Field: f, Message: res.Message, CorrectedValue: res.Value}
}

// ValidateAll checks distance, then interval, then (optionally) robot count,
// and returns the first failure only. The order is part of the contract.
func ValidateAll(in Inputs, b Bounds, includeCount bool) (Validated, error) {
	if err := CheckField(FieldMeters, in.Meters, b); err != nil {
		return Validated{}, err
	}
	if err := CheckField(FieldIntervalMs, in.IntervalMs, b); err != nil {
		return Validated{}, err
	}

	out := Validated{Meters: in.Meters, IntervalMs: in.IntervalMs}
	if includeCount {
		if err := CheckField(FieldRobotCount, in.RobotCount, b); err != nil {
			return Validated{}, err
		}
		out.Count = RoundCount(in.RobotCount)
		out.HasCount = true
	}
	return out, nil
}

// RoundCount converts a validated robot count to the integer sent on the wire.
func RoundCount(v float64) int {
	return int(math.Round(v))
}
