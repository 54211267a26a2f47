// Package alarm contains core domain types for the alarm subsystem.
//
// It defines the alarm types, the wire-stable alert state names, triggers
// (the immutable cause of an alarm) and incidents (the place-scoped record
// that aggregates triggers across alarm types). Clone helpers avoid leaking
// internal references between the store and callers.
package alarm
