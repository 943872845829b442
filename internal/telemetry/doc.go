// Package telemetry wraps OpenTelemetry SDK setup for distributed tracing.
// This package is internal and should not be imported by external projects.
package telemetry
