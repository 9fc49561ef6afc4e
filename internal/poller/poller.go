// Package poller refreshes robot positions on a fixed interval.
//
// At most one fetch is in flight: starting a poll cancels the previous one
// first, and results from a cancelled or superseded poll are dropped.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"robotfleet/internal/apperrors"
	"robotfleet/internal/robotapi"
	"sync"
	"time"
)

// DefaultInterval is the polling period used when none is given.
const DefaultInterval = time.Second

// Poll outcomes reported to MetricsRecorder.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultStale     = "stale"
)

// Fetcher lists robot positions. *robotapi.Client implements it.
type Fetcher interface {
	ListPositions(ctx context.Context) (robotapi.PositionSet, error)
}

// Handlers receive poll results. Either may be nil. Calls are serialized
// and arrive in the order polls were started.
type Handlers struct {
	OnUpdate func(robotapi.PositionSet)
	OnError  func(error)
}

// MetricsRecorder is an optional interface for recording poll metrics.
type MetricsRecorder interface {
	RecordPoll(ctx context.Context, result string, durationSeconds float64)
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithMetrics records every poll outcome.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// Poller periodically fetches positions while enabled.
type Poller struct {
	fetcher  Fetcher
	handlers Handlers
	logger   *slog.Logger
	metrics  MetricsRecorder

	mu         sync.Mutex
	running    bool
	closed     bool
	interval   time.Duration
	stop       chan struct{}
	gen        uint64
	cancelPoll context.CancelFunc

	deliverMu sync.Mutex
	loops     sync.WaitGroup
	inflight  sync.WaitGroup
}

// New creates a disabled poller.
func New(fetcher Fetcher, handlers Handlers, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		handlers: handlers,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.With("component", "poller")
	}
	return p
}

// Enable starts polling: one fetch now, then one every interval. Enabling a
// running poller restarts it with the new interval.
func (p *Poller) Enable(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.stopLocked()
	p.startLocked(interval)
}

// Disable stops polling and cancels any in-flight fetch.
func (p *Poller) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// SetInterval changes the period. A running poller restarts immediately;
// a stopped one keeps the value for the next Enable.
func (p *Poller) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.closed {
		p.interval = interval
		return
	}
	p.stopLocked()
	p.startLocked(interval)
}

// Running reports whether polling is enabled.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Interval returns the configured period.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Close disables the poller and waits for its goroutines to exit. A closed
// poller cannot be enabled again.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()

	p.loops.Wait()
	p.inflight.Wait()
}

func (p *Poller) startLocked(interval time.Duration) {
	p.interval = interval
	p.running = true
	stop := make(chan struct{})
	p.stop = stop

	p.pollLocked()

	p.loops.Add(1)
	go p.loop(interval, stop)
	p.logger.Debug("Polling enabled", "interval", interval)
}

func (p *Poller) stopLocked() {
	if !p.running {
		return
	}
	close(p.stop)
	p.stop = nil
	p.running = false
	p.gen++
	if p.cancelPoll != nil {
		p.cancelPoll()
		p.cancelPoll = nil
	}
	p.logger.Debug("Polling disabled")
}

func (p *Poller) loop(interval time.Duration, stop chan struct{}) {
	defer p.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.stop == stop {
				p.pollLocked()
			}
			p.mu.Unlock()
		}
	}
}

// pollLocked cancels the previous fetch before starting the next one.
func (p *Poller) pollLocked() {
	if p.cancelPoll != nil {
		p.cancelPoll()
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelPoll = cancel

	p.inflight.Add(1)
	go p.fetch(ctx, cancel, gen)
}

func (p *Poller) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer p.inflight.Done()
	defer cancel()

	start := time.Now()
	set, err := p.fetcher.ListPositions(ctx)

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	current := gen == p.gen
	p.mu.Unlock()

	result := ResultSuccess
	switch {
	case ctx.Err() != nil || errors.Is(err, apperrors.ErrCancelled):
		result = ResultCancelled
	case !current:
		result = ResultStale
	case err != nil:
		result = ResultError
		p.logger.Debug("Poll failed", "error", err)
		if p.handlers.OnError != nil {
			p.handlers.OnError(err)
		}
	default:
		if p.handlers.OnUpdate != nil {
			p.handlers.OnUpdate(set)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordPoll(context.Background(), result, time.Since(start).Seconds())
	}
}
