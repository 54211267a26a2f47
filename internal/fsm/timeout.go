package fsm

import (
	"time"
)

const timeoutVariablePrefix = "timeout:"

// TimeoutVariable returns the name of the variable holding the deadline for key.
func TimeoutVariable(key string) string {
	return timeoutVariablePrefix + key
}

// SetTimeout persists a deadline for key and schedules its wake-up.
func SetTimeout(c Context, key string, at time.Time) {
	c.SetVariable(TimeoutVariable(key), at.UTC().Format(time.RFC3339Nano))
	c.WakeUpAt(key, at)
}

// SetTimeoutAfter is SetTimeout relative to the context clock.
func SetTimeoutAfter(c Context, key string, d time.Duration) time.Time {
	at := c.Now().Add(d)
	SetTimeout(c, key, at)

	return at
}

// CancelTimeout removes the deadline for key and its wake-up.
func CancelTimeout(c Context, key string) {
	c.SetVariable(TimeoutVariable(key), "")
	c.CancelWakeUp(key)
}

// Timeout returns the persisted deadline for key.
func Timeout(c Context, key string) (time.Time, bool) {
	raw, ok := c.Variable(TimeoutVariable(key))
	if !ok || raw == "" {
		return time.Time{}, false
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}

	return at, true
}

// RestoreTimeout re-registers the wake-up for a persisted deadline, if any.
func RestoreTimeout(c Context, key string) (time.Time, bool) {
	at, ok := Timeout(c, key)
	if ok {
		c.WakeUpAt(key, at)
	}

	return at, ok
}
