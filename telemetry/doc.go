// Package telemetry wires OpenTelemetry log and trace export over OTLP/HTTP.
package telemetry
