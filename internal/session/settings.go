package session

import (
	"errors"
	"robotfleet/internal/validation"
)

// Settings is a snapshot of the editable values.
type Settings struct {
	Meters     float64 `json:"meters"`
	IntervalMs float64 `json:"intervalMs"`
	RobotCount float64 `json:"robotCount"`
}

// SettingsUpdate carries the values to overwrite. Nil fields are left alone.
type SettingsUpdate struct {
	Meters     *float64 `json:"meters,omitempty"`
	IntervalMs *float64 `json:"intervalMs,omitempty"`
	RobotCount *float64 `json:"robotCount,omitempty"`
}

// Settings returns the current, possibly uncommitted, values.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsLocked()
}

func (s *Session) settingsLocked() Settings {
	return Settings{
		Meters:     s.meters.Value(),
		IntervalMs: s.interval.Value(),
		RobotCount: s.count.Value(),
	}
}

// UpdateSettings stores the given values as typed, without clamping.
// Out-of-range values are caught when a command validates them.
func (s *Session) UpdateSettings(u SettingsUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Meters != nil {
		s.meters.Set(*u.Meters)
	}
	if u.IntervalMs != nil {
		s.interval.Set(*u.IntervalMs)
	}
	if u.RobotCount != nil {
		s.count.Set(*u.RobotCount)
	}
}

// InputSetting feeds typed text to a setting. Empty or non-numeric text is
// ignored and false is returned.
func (s *Session) InputSetting(f validation.Field, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setting(f).Input(text)
}

// CommitSetting clamps a setting into range and returns the result.
func (s *Session) CommitSetting(f validation.Field) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setting(f).Commit()
}

func (s *Session) setting(f validation.Field) *validation.Setting {
	switch f {
	case validation.FieldMeters:
		return s.meters
	case validation.FieldIntervalMs:
		return s.interval
	default:
		return s.count
	}
}

func (s *Session) inputs() validation.Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.settingsLocked()
	return validation.Inputs{Meters: v.Meters, IntervalMs: v.IntervalMs, RobotCount: v.RobotCount}
}

// correct writes the corrected value of a failed field back to that field
// only. Errors that are not field errors are ignored.
func (s *Session) correct(err error) {
	var fe *validation.FieldError
	if !errors.As(err, &fe) {
		return
	}
	s.mu.Lock()
	s.setting(fe.Field).Set(fe.CorrectedValue)
	s.mu.Unlock()
	s.logger.Debug("Setting corrected", "field", fe.Field, "value", fe.CorrectedValue)
}
