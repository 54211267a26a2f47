// Package subsystem runs place-scoped subsystems.
//
// Every place gets one executor goroutine. Messages for a place are handled
// strictly one at a time, so handlers never need locks. The executor loads
// the place snapshot on first use, calls the handler's Start hook, and
// saves the snapshot after every handled message. Wake-ups requested by
// handlers are delivered back to the same executor as timeout messages.
package subsystem
