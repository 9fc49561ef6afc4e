package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "robotfleet"

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: how long robot service calls, polls and commands take
// - Traffic: call, poll and command throughput
// - Errors: failed attempts, exhausted retries, failed apply steps
// - Saturation: retries in flight, connected stream clients
type Metrics struct {
	meter metric.Meter

	// Robot service calls, per attempt (Latency, Traffic, Errors)
	AttemptDuration metric.Float64Histogram
	AttemptsTotal   metric.Int64Counter
	RetriesTotal    metric.Int64Counter
	CancelledTotal  metric.Int64Counter
	ExhaustedTotal  metric.Int64Counter

	// Poller (Latency, Traffic, Errors)
	PollDuration metric.Float64Histogram
	PollsTotal   metric.Int64Counter

	// Session commands and apply sequence (Latency, Traffic, Errors)
	CommandDuration metric.Float64Histogram
	CommandsTotal   metric.Int64Counter
	ApplyStepsTotal metric.Int64Counter
	RobotsTracked   metric.Int64Gauge

	// Status API (Latency, Traffic, Errors, Saturation)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter
	StreamClients       metric.Int64UpDownCounter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter on
// the default registry and installs the meter provider globally.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// NewMetricsWithRegistry exports to reg instead of the default registry and
// leaves the global meter provider alone.
func NewMetricsWithRegistry(reg *promclient.Registry) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m, err := newMetrics(provider.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error

	// Robot service call metrics
	m.AttemptDuration, err = meter.Float64Histogram(
		"robot_api_attempt_duration_seconds",
		metric.WithDescription("Latency of a single robot service attempt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.AttemptsTotal, err = meter.Int64Counter(
		"robot_api_attempts_total",
		metric.WithDescription("Total robot service attempts, including retries"),
	)
	if err != nil {
		return nil, err
	}

	m.RetriesTotal, err = meter.Int64Counter(
		"robot_api_retries_total",
		metric.WithDescription("Total retries scheduled after a failed attempt"),
	)
	if err != nil {
		return nil, err
	}

	m.CancelledTotal, err = meter.Int64Counter(
		"robot_api_cancelled_total",
		metric.WithDescription("Total robot service calls abandoned by cancellation"),
	)
	if err != nil {
		return nil, err
	}

	m.ExhaustedTotal, err = meter.Int64Counter(
		"robot_api_exhausted_total",
		metric.WithDescription("Total robot service calls that failed after all retries"),
	)
	if err != nil {
		return nil, err
	}

	// Poller metrics
	m.PollDuration, err = meter.Float64Histogram(
		"poll_duration_seconds",
		metric.WithDescription("Poll cycle latency in seconds, retries included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"polls_total",
		metric.WithDescription("Total poll cycles by result"),
	)
	if err != nil {
		return nil, err
	}

	// Session metrics
	m.CommandDuration, err = meter.Float64Histogram(
		"session_command_duration_seconds",
		metric.WithDescription("Session command latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.CommandsTotal, err = meter.Int64Counter(
		"session_commands_total",
		metric.WithDescription("Total session commands by result"),
	)
	if err != nil {
		return nil, err
	}

	m.ApplyStepsTotal, err = meter.Int64Counter(
		"apply_steps_total",
		metric.WithDescription("Total apply-changes steps by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.RobotsTracked, err = meter.Int64Gauge(
		"robots_tracked",
		metric.WithDescription("Number of robots in the cached position set"),
	)
	if err != nil {
		return nil, err
	}

	// Status API metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamClients, err = meter.Int64UpDownCounter(
		"stream_clients",
		metric.WithDescription("Number of connected position stream clients (saturation)"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAttempt records one robot service attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, operation string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(operationAttr(operation), successAttr(success))
	m.AttemptDuration.Record(ctx, durationSeconds, attrs)
	m.AttemptsTotal.Add(ctx, 1, attrs)
}

// RecordRetry records a retry being scheduled.
func (m *Metrics) RecordRetry(ctx context.Context, operation string) {
	m.RetriesTotal.Add(ctx, 1, WithOperation(operation))
}

// RecordCancelled records a call abandoned by cancellation.
func (m *Metrics) RecordCancelled(ctx context.Context, operation string) {
	m.CancelledTotal.Add(ctx, 1, WithOperation(operation))
}

// RecordExhausted records a call that failed after all retries.
func (m *Metrics) RecordExhausted(ctx context.Context, operation string) {
	m.ExhaustedTotal.Add(ctx, 1, WithOperation(operation))
}

// RecordPoll records a finished poll cycle.
func (m *Metrics) RecordPoll(ctx context.Context, result string, durationSeconds float64) {
	attrs := metric.WithAttributes(resultAttr(result))
	m.PollDuration.Record(ctx, durationSeconds, attrs)
	m.PollsTotal.Add(ctx, 1, attrs)
}

// RecordCommand records a finished session command.
func (m *Metrics) RecordCommand(ctx context.Context, command, result string, durationSeconds float64) {
	attrs := metric.WithAttributes(commandAttr(command), resultAttr(result))
	m.CommandDuration.Record(ctx, durationSeconds, attrs)
	m.CommandsTotal.Add(ctx, 1, attrs)
}

// RecordStep records one apply-changes step.
func (m *Metrics) RecordStep(ctx context.Context, step string, success bool) {
	m.ApplyStepsTotal.Add(ctx, 1, metric.WithAttributes(stepAttr(step), successAttr(success)))
}

// RecordRobotsTracked records the size of the cached position set.
func (m *Metrics) RecordRobotsTracked(ctx context.Context, count int) {
	m.RobotsTracked.Record(ctx, int64(count))
}

// RecordHTTPRequest records status API request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordStreamClient adds delta to the connected stream client count.
func (m *Metrics) RecordStreamClient(ctx context.Context, delta int64) {
	m.StreamClients.Add(ctx, delta)
}
