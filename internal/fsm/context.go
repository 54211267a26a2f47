package fsm

import (
	"context"
	"time"
)

// Context is the host environment of a machine.
type Context interface {
	// Context returns the request context; it carries the scoped logger.
	Context() context.Context
	// Now returns the current time.
	Now() time.Time
	// Variable returns a persisted variable.
	Variable(key string) (string, bool)
	// SetVariable stores a persisted variable. An empty value deletes it.
	SetVariable(key, value string)
	// WakeUpAt schedules a timeout event for key at the given time,
	// replacing any earlier schedule for the same key.
	WakeUpAt(key string, at time.Time)
	// CancelWakeUp removes the schedule for key.
	CancelWakeUp(key string)
}

// TimeoutEvent is delivered by the host when a scheduled wake-up fires.
type TimeoutEvent struct {
	Key      string
	Deadline time.Time
}
