// Package alarms drives the per-type alarm state machines of a place: it
// keeps the device sets of every alarm in sync with the place models, moves
// the machines through their alert states and hands incidents, sounder and
// valve commands to the rest of the system.
package alarms
