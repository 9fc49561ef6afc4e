// Package testutil provides test helpers: condition polling and an in-memory
// robot service that records every request it receives.
package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

// WaitOptions configures WaitFor behavior.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption is a functional option for the wait helpers.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 5s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 10ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func defaultOptions() WaitOptions {
	return WaitOptions{
		Timeout:  5 * time.Second,
		Interval: 10 * time.Millisecond,
	}
}

func resolve(opts []WaitOption) WaitOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WaitFor polls until condition returns true or the timeout passes.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()

	o := resolve(opts)
	deadline := time.Now().Add(o.Timeout)
	for {
		if condition() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(o.Interval)
	}
}

// WaitForCount polls until counter reaches target.
func WaitForCount(tb testing.TB, counter *atomic.Int64, target int64, opts ...WaitOption) bool {
	tb.Helper()
	return WaitFor(tb, func() bool {
		return counter.Load() >= target
	}, opts...)
}

// MustWaitFor fails the test if condition does not become true in time.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustWaitForCount fails the test if counter does not reach target in time.
func MustWaitForCount(tb testing.TB, counter *atomic.Int64, target int64, opts ...WaitOption) {
	tb.Helper()
	if !WaitForCount(tb, counter, target, opts...) {
		tb.Fatalf("timed out waiting for counter to reach %d (current: %d)", target, counter.Load())
	}
}

// MustReceive returns the next value from ch or fails the test on timeout.
func MustReceive[T any](tb testing.TB, ch <-chan T, opts ...WaitOption) T {
	tb.Helper()
	o := resolve(opts)
	select {
	case v, ok := <-ch:
		if !ok {
			tb.Fatal("channel closed while waiting for a value")
		}
		return v
	case <-time.After(o.Timeout):
		tb.Fatalf("timed out after %v waiting for a value", o.Timeout)
	}
	var zero T
	return zero
}

// MustNotReceive fails the test if ch yields a value within d.
func MustNotReceive[T any](tb testing.TB, ch <-chan T, d time.Duration) {
	tb.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			tb.Fatalf("unexpected value received: %v", v)
		}
	case <-time.After(d):
	}
}
