// Package place holds the per-place data the alarm subsystem works on:
// platform models (devices, hub, people, rules) and the persisted snapshot
// of the subsystem itself.
//
// Attribute values are strings. Sets are stored sorted and comma-joined so
// a snapshot stays stable across saves.
package place
