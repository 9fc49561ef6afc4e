// Package observability provides the OpenTelemetry metrics of the fleet
// client, exported in Prometheus format.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrCommand   = "command"
	attrStep      = "step"
	attrResult    = "result"
	attrSuccess   = "success"
)

// unmatchedPath labels requests outside the known routes.
const unmatchedPath = "unmatched"

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func operationAttr(op string) attribute.KeyValue {
	return attribute.String(attrOperation, op)
}

func commandAttr(command string) attribute.KeyValue {
	return attribute.String(attrCommand, command)
}

func stepAttr(step string) attribute.KeyValue {
	return attribute.String(attrStep, step)
}

func resultAttr(result string) attribute.KeyValue {
	return attribute.String(attrResult, result)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath keeps known route prefixes and collapses everything else,
// so scanners cannot blow up label cardinality.
func normalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	switch {
	case path == "/livez", path == "/readyz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/v1/"):
		return path
	default:
		return unmatchedPath
	}
}

// WithOperation returns a metric option with the operation attribute.
func WithOperation(op string) metric.MeasurementOption {
	return metric.WithAttributes(operationAttr(op))
}
