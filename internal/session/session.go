// Package session holds the client-side view of the fleet (positions, the
// auto-run flag and the three editable settings) and sequences commands
// against the robot service.
package session

import (
	"context"
	"log/slog"
	"robotfleet/internal/apperrors"
	"robotfleet/internal/poller"
	"robotfleet/internal/robotapi"
	"robotfleet/internal/validation"
	"sync"
	"sync/atomic"
	"time"
)

// Commander is the subset of the robot service the session drives.
// *robotapi.Client implements it.
type Commander interface {
	ListPositions(ctx context.Context) (robotapi.PositionSet, error)
	Move(ctx context.Context, meters float64) (robotapi.PositionSet, error)
	Reset(ctx context.Context, count int) (robotapi.PositionSet, error)
	StartAuto(ctx context.Context, meters, intervalMs float64) error
	StopAuto(ctx context.Context) error
}

// Command outcomes reported to MetricsRecorder.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultInvalid   = "invalid"
	ResultConflict  = "conflict"
	ResultCancelled = "cancelled"
)

// MetricsRecorder is an optional interface for recording session metrics.
type MetricsRecorder interface {
	RecordCommand(ctx context.Context, command, result string, durationSeconds float64)
	RecordStep(ctx context.Context, step string, success bool)
	RecordRobotsTracked(ctx context.Context, count int)
}

// Defaults are the initial setting values. They are clamped into Bounds.
type Defaults struct {
	Meters     float64 `yaml:"meters" json:"meters"`
	IntervalMs float64 `yaml:"intervalMs" json:"intervalMs"`
	RobotCount float64 `yaml:"robotCount" json:"robotCount"`
}

// Config holds session settings.
type Config struct {
	Bounds            validation.Bounds
	Defaults          Defaults
	AssumeAutoRunning bool
	PollInterval      time.Duration
	Logger            *slog.Logger
	Metrics           MetricsRecorder
	PollMetrics       poller.MetricsRecorder
}

// conflictMessage is returned when a second command overlaps the first.
const conflictMessage = "another operation is in progress"

// Session is safe for concurrent use. Only one command runs at a time;
// polling runs alongside commands.
type Session struct {
	client  Commander
	bounds  validation.Bounds
	logger  *slog.Logger
	metrics MetricsRecorder
	poller  *poller.Poller

	busy atomic.Bool

	mu          sync.Mutex
	positions   robotapi.PositionSet
	autoRunning bool
	meters      *validation.Setting
	interval    *validation.Setting
	count       *validation.Setting
	lastPollErr error

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a session. Polling is off until EnablePolling.
func New(client Commander, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.With("component", "session")
	}
	b := cfg.Bounds
	s := &Session{
		client:      client,
		bounds:      b,
		logger:      logger,
		metrics:     cfg.Metrics,
		positions:   robotapi.PositionSet{},
		autoRunning: cfg.AssumeAutoRunning,
		meters:      validation.NewSetting(b.Meters, cfg.Defaults.Meters),
		interval:    validation.NewSetting(b.IntervalMs, cfg.Defaults.IntervalMs),
		count:       validation.NewSetting(b.RobotCount, cfg.Defaults.RobotCount),
		subs:        make(map[int]chan Event),
	}

	opts := []poller.Option{poller.WithLogger(logger.With("component", "poller"))}
	if cfg.PollMetrics != nil {
		opts = append(opts, poller.WithMetrics(cfg.PollMetrics))
	}
	s.poller = poller.New(client, poller.Handlers{
		OnUpdate: s.onPollUpdate,
		OnError:  s.onPollError,
	}, opts...)
	if cfg.PollInterval > 0 {
		s.poller.SetInterval(cfg.PollInterval)
	}
	return s
}

// Positions returns a copy of the cached positions.
func (s *Session) Positions() robotapi.PositionSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions.Clone()
}

// AutoRunning reports the client's belief about server-side auto mode.
func (s *Session) AutoRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRunning
}

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Bounds returns the configured setting ranges.
func (s *Session) Bounds() validation.Bounds {
	return s.bounds
}

// Ready reports the outcome of the latest poll. It is nil until a poll
// fails and after the next one succeeds.
func (s *Session) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPollErr
}

// Close stops polling and closes every subscriber channel.
func (s *Session) Close() {
	s.poller.Close()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// begin claims the single in-flight slot.
func (s *Session) begin(op string) (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, apperrors.Conflict(op, conflictMessage)
	}
	return func() { s.busy.Store(false) }, nil
}

func (s *Session) setPositions(set robotapi.PositionSet) {
	set = set.Clone()
	s.mu.Lock()
	s.positions = set
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRobotsTracked(context.Background(), len(set))
	}
	s.publish(Event{Kind: EventPositions, Positions: set.Clone()})
}

func (s *Session) setAutoRunning(on bool) {
	s.mu.Lock()
	changed := s.autoRunning != on
	s.autoRunning = on
	s.mu.Unlock()

	if changed {
		s.logger.Info("Auto-run state changed", "autoRunning", on)
		s.publish(Event{Kind: EventAutoRun, AutoRunning: on})
	}
}

func (s *Session) onPollUpdate(set robotapi.PositionSet) {
	s.mu.Lock()
	s.lastPollErr = nil
	s.mu.Unlock()
	s.setPositions(set)
}

func (s *Session) onPollError(err error) {
	s.mu.Lock()
	s.lastPollErr = err
	s.mu.Unlock()

	s.logger.Warn("Failed to fetch robots", "error", err)
	s.publish(Event{Kind: EventError, Err: err})
}

// State is a point-in-time summary for status endpoints.
type State struct {
	AutoRunning    bool     `json:"autoRunning"`
	Polling        bool     `json:"polling"`
	PollIntervalMs int64    `json:"pollIntervalMs"`
	Count          int      `json:"count"`
	Busy           bool     `json:"busy"`
	Settings       Settings `json:"settings"`
	LastPollError  string   `json:"lastPollError,omitempty"`
}

// State returns the current summary.
func (s *Session) State() State {
	st := State{
		Polling:        s.poller.Running(),
		PollIntervalMs: s.poller.Interval().Milliseconds(),
		Busy:           s.busy.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.AutoRunning = s.autoRunning
	st.Count = len(s.positions)
	st.Settings = s.settingsLocked()
	if s.lastPollErr != nil {
		st.LastPollError = s.lastPollErr.Error()
	}
	return st
}
