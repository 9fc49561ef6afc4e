package session

import (
	"context"
	"errors"
	"robotfleet/internal/apperrors"
	"robotfleet/internal/robotapi"
	"robotfleet/internal/validation"
	"time"
)

// Command names used in logs, metrics and conflict errors.
const (
	CmdMove       = "move"
	CmdReset      = "reset"
	CmdStartAuto  = "start-auto"
	CmdStopAuto   = "stop-auto"
	CmdToggleAuto = "toggle-auto"
	CmdApply      = "apply"
	CmdRefresh    = "refresh"
)

// Move steps every robot by the current distance setting. Updates are
// stored first, once the command holds the in-flight slot.
func (s *Session) Move(ctx context.Context, updates ...SettingsUpdate) (robotapi.PositionSet, error) {
	var out robotapi.PositionSet
	err := s.run(ctx, CmdMove, updates, func(ctx context.Context) error {
		in := s.inputs()
		if err := validation.CheckField(validation.FieldMeters, in.Meters, s.bounds); err != nil {
			return err
		}
		set, err := s.client.Move(ctx, in.Meters)
		if err != nil {
			return err
		}
		s.setPositions(set)
		out = set
		return nil
	})
	return out, err
}

// Reset replaces the fleet with the current robot count setting.
func (s *Session) Reset(ctx context.Context, updates ...SettingsUpdate) (robotapi.PositionSet, error) {
	var out robotapi.PositionSet
	err := s.run(ctx, CmdReset, updates, func(ctx context.Context) error {
		in := s.inputs()
		if err := validation.CheckField(validation.FieldRobotCount, in.RobotCount, s.bounds); err != nil {
			return err
		}
		set, err := s.client.Reset(ctx, validation.RoundCount(in.RobotCount))
		if err != nil {
			return err
		}
		s.setPositions(set)
		out = set
		return nil
	})
	return out, err
}

// StartAuto validates distance then interval and turns auto mode on.
func (s *Session) StartAuto(ctx context.Context, updates ...SettingsUpdate) error {
	return s.run(ctx, CmdStartAuto, updates, s.startAuto)
}

// StopAuto turns auto mode off. It needs no validation.
func (s *Session) StopAuto(ctx context.Context) error {
	return s.run(ctx, CmdStopAuto, nil, s.stopAuto)
}

// ToggleAuto starts auto mode when it is believed stopped and stops it
// otherwise. It returns the resulting state, unchanged on failure.
func (s *Session) ToggleAuto(ctx context.Context) (bool, error) {
	err := s.run(ctx, CmdToggleAuto, nil, func(ctx context.Context) error {
		if s.AutoRunning() {
			return s.stopAuto(ctx)
		}
		return s.startAuto(ctx)
	})
	return s.AutoRunning(), err
}

// Refresh fetches positions once, outside the polling schedule.
func (s *Session) Refresh(ctx context.Context) (robotapi.PositionSet, error) {
	var out robotapi.PositionSet
	err := s.run(ctx, CmdRefresh, nil, func(ctx context.Context) error {
		set, err := s.client.ListPositions(ctx)
		if err != nil {
			return err
		}
		s.setPositions(set)
		out = set
		return nil
	})
	return out, err
}

func (s *Session) startAuto(ctx context.Context) error {
	v, err := validation.ValidateAll(s.inputs(), s.bounds, false)
	if err != nil {
		return err
	}
	if err := s.client.StartAuto(ctx, v.Meters, v.IntervalMs); err != nil {
		return err
	}
	s.setAutoRunning(true)
	return nil
}

func (s *Session) stopAuto(ctx context.Context) error {
	if err := s.client.StopAuto(ctx); err != nil {
		return err
	}
	s.setAutoRunning(false)
	return nil
}

// run executes fn under the in-flight guard and records its outcome.
// Updates are stored only when the guard is won, so a rejected command
// leaves the settings alone. Validation failures write the corrected
// value back.
func (s *Session) run(ctx context.Context, name string, updates []SettingsUpdate, fn func(context.Context) error) error {
	start := time.Now()
	done, err := s.begin(name)
	if err != nil {
		s.record(ctx, name, err, start)
		return err
	}
	defer done()

	for _, u := range updates {
		s.UpdateSettings(u)
	}

	err = fn(ctx)
	s.record(ctx, name, err, start)
	s.report(name, err)
	return err
}

func (s *Session) record(ctx context.Context, name string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCommand(context.WithoutCancel(ctx), name, resultOf(err), time.Since(start).Seconds())
}

// report logs a failure, applies corrections and notifies subscribers.
// Cancellation is routine and only logged at debug.
func (s *Session) report(name string, err error) {
	switch {
	case err == nil:
		s.logger.Debug("Command succeeded", "command", name)
	case errors.Is(err, apperrors.ErrValidation):
		s.correct(err)
		s.logger.Info("Command rejected", "command", name, "error", err)
	case apperrors.IsCancelled(err):
		s.logger.Debug("Command cancelled", "command", name)
	default:
		s.logger.Warn("Command failed", "command", name, "error", err)
		s.publish(Event{Kind: EventError, Err: err})
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, apperrors.ErrValidation):
		return ResultInvalid
	case errors.Is(err, apperrors.ErrConflict):
		return ResultConflict
	case apperrors.IsCancelled(err):
		return ResultCancelled
	default:
		return ResultFailure
	}
}
