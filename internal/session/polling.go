package session

import (
	"robotfleet/internal/validation"
	"time"
)

// EnablePolling starts the background position refresh at the current
// poll interval.
func (s *Session) EnablePolling() {
	s.poller.Enable(s.poller.Interval())
}

// DisablePolling stops the background refresh and abandons any in-flight
// fetch.
func (s *Session) DisablePolling() {
	s.poller.Disable()
}

// SetPollInterval validates intervalMs against the interval bounds and
// restarts polling with it when running.
func (s *Session) SetPollInterval(intervalMs float64) error {
	if err := validation.CheckField(validation.FieldPollInterval, intervalMs, s.bounds); err != nil {
		return err
	}
	s.poller.SetInterval(time.Duration(intervalMs * float64(time.Millisecond)))
	return nil
}

// Polling reports whether the background refresh is on.
func (s *Session) Polling() bool {
	return s.poller.Running()
}

// PollInterval returns the background refresh period.
func (s *Session) PollInterval() time.Duration {
	return s.poller.Interval()
}
