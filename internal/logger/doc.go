// Package logger wraps zap for the alarm subsystem.
//
// A logger travels in the context: the registry names one per place and
// tags it with the place id, so everything a place's alarms log carries it.
// Code without a scoped logger falls back to a global console logger whose
// level comes from configuration.
package logger
