package sounds

import (
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
)

type sound int

const (
	soundNone sound = iota
	soundTriggered
	soundCleared
)

type edge struct {
	from alarm.AlertState
	to   alarm.AlertState
}

// transitions covers the security hub-local state space. Pairs that are
// not listed play nothing.
//
//nolint:gochecknoglobals // Read-only table.
var transitions = map[edge]sound{
	{alarm.StateInactive, alarm.StateAlert}: soundTriggered,
	{alarm.StateDisarmed, alarm.StateAlert}: soundTriggered,
	{alarm.StateReady, alarm.StateAlert}:    soundTriggered,
	{alarm.StateReady, alarm.StateDisarmed}: soundCleared,

	{alarm.StateArming, alarm.StateReady}:    soundNone,
	{alarm.StateArming, alarm.StateDisarmed}: soundCleared,
	{alarm.StateArming, alarm.StateInactive}: soundCleared,

	{alarm.StatePrealert, alarm.StateReady}:    soundCleared,
	{alarm.StatePrealert, alarm.StateDisarmed}: soundCleared,
	{alarm.StatePrealert, alarm.StateInactive}: soundCleared,

	{alarm.StateAlert, alarm.StateReady}:    soundCleared,
	{alarm.StateAlert, alarm.StateDisarmed}: soundCleared,
	{alarm.StateAlert, alarm.StateInactive}: soundCleared,

	{alarm.StatePendingClear, alarm.StateReady}:    soundCleared,
	{alarm.StatePendingClear, alarm.StateDisarmed}: soundCleared,
	{alarm.StatePendingClear, alarm.StateInactive}: soundCleared,

	{alarm.StateClearing, alarm.StateReady}:    soundCleared,
	{alarm.StateClearing, alarm.StateDisarmed}: soundCleared,
	{alarm.StateClearing, alarm.StateInactive}: soundCleared,
}

// Transition returns the sound a hub plays when its local security state
// moves from one state to another while alarm t is the active alarm.
func Transition(from, to alarm.AlertState, t alarm.Type) Mode {
	switch transitions[edge{from, to}] {
	case soundTriggered:
		return Triggered(t)
	case soundCleared:
		return Cleared(t)
	default:
		return NoSound
	}
}
