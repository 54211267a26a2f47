// Package server wires the alarm subsystem engine and serves it over gRPC,
// MQTT and HTTP metrics.
package server
