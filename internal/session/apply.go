package session

import (
	"context"
	"robotfleet/internal/validation"
)

// Step names a stage of ApplyChanges.
type Step string

const (
	StepStopAuto    Step = "stop auto-run"
	StepReset       Step = "reset robots"
	StepRestartAuto Step = "restart auto-run"
)

// StepError reports which stage of ApplyChanges failed. Earlier stages stay
// committed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return "failed to " + string(e.Step) + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ApplyReport describes how far ApplyChanges got.
type ApplyReport struct {
	WasRunning bool `json:"wasRunning"`
	Stopped    bool `json:"stopped"`
	Reset      bool `json:"reset"`
	Restarted  bool `json:"restarted"`
	Count      int  `json:"count"`
}

// ApplyChanges pushes distance, interval and robot count together:
// validate all three, stop auto mode if it was running, reset the fleet,
// then restart auto mode with the new values. A failing stage halts the
// sequence and nothing is undone. If stopping fails the session still
// believes auto mode is running; if the reset fails auto mode stays stopped.
func (s *Session) ApplyChanges(ctx context.Context, updates ...SettingsUpdate) (ApplyReport, error) {
	var report ApplyReport
	err := s.run(ctx, CmdApply, updates, func(ctx context.Context) error {
		v, err := validation.ValidateAll(s.inputs(), s.bounds, true)
		if err != nil {
			return err
		}

		report.WasRunning = s.AutoRunning()
		if report.WasRunning {
			err := s.client.StopAuto(ctx)
			s.step(ctx, StepStopAuto, err)
			if err != nil {
				return &StepError{Step: StepStopAuto, Err: err}
			}
			s.setAutoRunning(false)
			report.Stopped = true
		}

		set, err := s.client.Reset(ctx, v.Count)
		s.step(ctx, StepReset, err)
		if err != nil {
			return &StepError{Step: StepReset, Err: err}
		}
		s.setPositions(set)
		report.Reset = true
		report.Count = len(set)

		if report.WasRunning {
			err := s.client.StartAuto(ctx, v.Meters, v.IntervalMs)
			s.step(ctx, StepRestartAuto, err)
			if err != nil {
				return &StepError{Step: StepRestartAuto, Err: err}
			}
			s.setAutoRunning(true)
			report.Restarted = true
		}
		return nil
	})
	return report, err
}

func (s *Session) step(ctx context.Context, step Step, err error) {
	if err != nil {
		s.logger.Warn("Apply step failed", "step", string(step), "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordStep(context.WithoutCancel(ctx), string(step), err == nil)
	}
}
