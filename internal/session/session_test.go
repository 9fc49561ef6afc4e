package session

import (
	"context"
	"errors"
	"net/http"
	"robotfleet/internal/apperrors"
	"robotfleet/internal/retry"
	"robotfleet/internal/robotapi"
	"robotfleet/internal/testutil"
	"robotfleet/internal/validation"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBounds = validation.Bounds{
	Meters:     validation.Range{Min: 0.1, Max: 10000},
	IntervalMs: validation.Range{Min: 100, Max: 3_600_000},
	RobotCount: validation.Range{Min: 1, Max: 10000},
}

var testDefaults = Defaults{Meters: 1, IntervalMs: 60000, RobotCount: 20}

// fakeCommander records calls in order and fails the ones listed in fail.
type fakeCommander struct {
	mu        sync.Mutex
	calls     []string
	fail      map[string]error
	positions robotapi.PositionSet
	gate      chan struct{} // when set, every call waits for it
	lastCount int
	lastStart [2]float64
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		fail:      make(map[string]error),
		positions: robotapi.PositionSet{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}},
	}
}

func (f *fakeCommander) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	gate := f.gate
	err := f.fail[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return apperrors.Cancelled(op)
		}
	}
	return err
}

func (f *fakeCommander) ListPositions(ctx context.Context) (robotapi.PositionSet, error) {
	if err := f.enter(ctx, robotapi.OpListPositions); err != nil {
		return nil, err
	}
	return f.positions.Clone(), nil
}

func (f *fakeCommander) Move(ctx context.Context, meters float64) (robotapi.PositionSet, error) {
	if err := f.enter(ctx, robotapi.OpMove); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.positions {
		f.positions[i].Lat += meters
	}
	return f.positions.Clone(), nil
}

func (f *fakeCommander) Reset(ctx context.Context, count int) (robotapi.PositionSet, error) {
	if err := f.enter(ctx, robotapi.OpReset); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCount = count
	f.positions = make(robotapi.PositionSet, count)
	return f.positions.Clone(), nil
}

func (f *fakeCommander) StartAuto(ctx context.Context, meters, intervalMs float64) error {
	if err := f.enter(ctx, robotapi.OpStartAuto); err != nil {
		return err
	}
	f.mu.Lock()
	f.lastStart = [2]float64{meters, intervalMs}
	f.mu.Unlock()
	return nil
}

func (f *fakeCommander) StopAuto(ctx context.Context) error {
	return f.enter(ctx, robotapi.OpStopAuto)
}

func (f *fakeCommander) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newSession(t *testing.T, c Commander, autoRunning bool) *Session {
	t.Helper()
	s := New(c, Config{
		Bounds:            testBounds,
		Defaults:          testDefaults,
		AssumeAutoRunning: autoRunning,
	})
	t.Cleanup(s.Close)
	return s
}

func float(v float64) *float64 { return &v }

func transportErr(op string) error {
	return apperrors.Transport(op, errors.New("HTTP 500: Internal Server Error"))
}

func TestNew_InitialState(t *testing.T) {
	t.Parallel()
	s := New(newFakeCommander(), Config{
		Bounds:            testBounds,
		Defaults:          Defaults{Meters: 50000, IntervalMs: 1, RobotCount: 20},
		AssumeAutoRunning: true,
	})
	t.Cleanup(s.Close)

	assert.True(t, s.AutoRunning())
	assert.Empty(t, s.Positions())
	assert.Equal(t, Settings{Meters: 10000, IntervalMs: 100, RobotCount: 20}, s.Settings())
	assert.False(t, s.Polling())
	assert.NoError(t, s.Ready(context.Background()))
}

func TestApplyChanges_WasRunningFullSequence(t *testing.T) {
	t.Parallel()
	f := newFakeCommander()
	s := newSession(t, f, true)
	s.UpdateSettings(SettingsUpdate{Meters: float(5), IntervalMs: float(1000), RobotCount: float(15)})

	report, err := s.ApplyChanges(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{robotapi.OpStopAuto, robotapi.OpReset, robotapi.OpStartAuto}, f.recorded())
	assert.Equal(t, ApplyReport{WasRunning: true, Stopped: true, Reset: true, Restarted: true, Count: 15}, report)
	assert.True(t, s.AutoRunning())
	assert.Len(t, s.Positions(), 15)
	assert.Equal(t, 15, f.lastCount)
	assert.Equal(t, [2]float64{5, 1000}, f.lastStart)
}

func TestApplyChanges_NotRunningOnlyResets(t *testing.T) {
	t.Parallel()
	f := newFakeCommander()
	s := newSession(t, f, false)

	report, err := s.ApplyChanges(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{robotapi.OpReset}, f.recorded())
	assert.False(t, report.WasRunning)
	assert.False(t, s.AutoRunning())
	assert.Len(t, s.Positions(), 20)
}

func TestApplyChanges_StopFailureAbortsEverything(t *testing.T) {
	t.Parallel()
	f := newFakeCommander()
	f.fail[robotapi.OpStopAuto] = transportErr(robotapi.OpStopAuto)
	s := newSession(t, f, true)

	report, err := s.ApplyChanges(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{robotapi.OpStopAuto}, f.recorded())
	assert.True(t, s.AutoRunning(), "auto-run must stay believed running")
	assert.False(t, report.Stopped)
	assert.Empty(t, s.Positions())

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepStopAuto, stepErr.Step)
	assert.True(t, errors.Is(err, apperrors.ErrTransport))
	assert.Equal(t, "failed to stop auto-run: HTTP 500: Internal Server Error", err.Error())
}

func TestApplyChanges_ResetFailureLeavesAutoStopped(t *testing.T) {
	t.Parallel()
	f := newFakeCommander()
	f.fail[robotapi.OpReset] = transportErr(robotapi.OpReset)
	s := newSession(t, f, true)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	before := s.Positions()

	report, err := s.ApplyChanges(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{robotapi.OpListPositions, robotapi.OpStopAuto, robotapi.OpReset}, f.recorded())
	assert.False(t, s.AutoRunning(), "no compensation restarts auto-run")
	assert.Equal(t, before, s.Positions())
	assert.True(t, report.Stopped)
	assert.False(t, report.Reset)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepReset, stepErr.Step)
}

func TestApplyChanges_RestartFailureKeepsReset(t *testing.T) {
	t.Parallel()
	f := newFakeCommander()
	f.fail[robotapi.OpStartAuto] = transportErr(robotapi.OpStartAuto)
	s := newSession(t, f, true)

	report, err := s.ApplyChanges(context.Background())
	require.Error(t, err)

	assert.Len(t, s.Positions(), 20)
	assert.False(t, s.AutoRunning())
	assert.True(t, report.Reset)
	assert.False(t, report.Restarted)
}

func TestApplyChanges_ValidationShortCircuits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		update    SettingsUpdate
		field     validation.Field
		message   string
		corrected Settings
	}{
		{
			name:      "meters first even when all invalid",
			update:    SettingsUpdate{Meters: float(0.05), IntervalMs: float(5), RobotCount: float(0)},
			field:     validation.FieldMeters,
			message:   "Move meters must be at least 0.1",
			corrected: Settings{Meters: 0.1, IntervalMs: 5, RobotCount: 0},
		},
		{
			name:      "interval",
			update:    SettingsUpdate{IntervalMs: float(5_000_000)},
			field:     validation.FieldIntervalMs,
			message:   "Auto interval must be at most 3600000",
			corrected: Settings{Meters: 1, IntervalMs: 3_600_000, RobotCount: 20},
		},
		{
			name:      "count",
			update:    SettingsUpdate{RobotCount: float(0)},
			field:     validation.FieldRobotCount,
			message:   "Robot count must be at least 1",
			corrected: Settings{Meters: 1, IntervalMs: 60000, RobotCount: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFakeCommander()
			s := newSession(t, f, true)
			s.UpdateSettings(tt.update)

			_, err := s.ApplyChanges(context.Background())
			require.Error(t, err)

			var fe *validation.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.message, fe.Message)
			assert.Equal(t, tt.corrected, s.Settings())
			assert.Empty(t, f.recorded(), "validation failure must not reach the network")
			assert.True(t, s.AutoRunning())
		})
	}
}

func TestApplyChanges_RoundsCount(t *testing.T) {
	t.Parallel()
	f := newFakeCommander()
	s := newSession(t, f, false)
	s.UpdateSettings(SettingsUpdate{RobotCount: float(7.6)})

	_, err := s.ApplyChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, f.lastCount)
}

func TestApplyChanges_AgainstRobotService(t *testing.T) {
	t.Parallel()
	svc := testutil.NewFakeRobotService(t, 20)
	svc.SetAutoRunning(true)
	client := robotapi.NewClient(robotapi.Config{BaseURL: svc.URL()})
	s := newSession(t, client, true)
	s.UpdateSettings(SettingsUpdate{Meters: float(5), IntervalMs: float(1000), RobotCount: float(15)})

	report, err := s.ApplyChanges(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{testutil.PathStopAuto, testutil.PathReset, testutil.PathStartAuto}, svc.Paths())
	assert.True(t, report.Restarted)
	assert.True(t, s.AutoRunning())
	assert.True(t, svc.AutoRunning())
	assert.Len(t, s.Positions(), 15)
}

func TestApplyChanges_StopRetriedThenAborted(t *testing.T) {
	t.Parallel()
	svc := testutil.NewFakeRobotService(t, 20)
	svc.FailNext(testutil.PathStopAuto, 3, http.StatusServiceUnavailable, "upstream down")
	noSleep := retry.NewExecutor(retry.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	client := robotapi.NewClient(robotapi.Config{BaseURL: svc.URL(), Executor: noSleep})
	s := newSession(t, client, true)

	_, err := s.ApplyChanges(context.Background())
	require.Error(t, err)

	assert.Equal(t, "failed to stop auto-run: HTTP 503: upstream down", err.Error())
	assert.Equal(t, 3, svc.CallCount(testutil.PathStopAuto))
	assert.Zero(t, svc.CallCount(testutil.PathReset))
	assert.Zero(t, svc.CallCount(testutil.PathStartAuto))
	assert.True(t, s.AutoRunning())
}
