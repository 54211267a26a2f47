// Package fsm drives persisted finite state machines.
//
// A Machine never holds state across calls on its own: the current state
// name is read from and written to the host through Load and Save, and
// state timeouts are stored as variables next to a scheduled wake-up. A
// process restart therefore only needs to call OnStarted to recover.
//
// Transitions chain: a state's OnEnter hook may name a different state,
// in which case the machine moves on to it. No cycle detection is
// performed, so every State implementation must guarantee that chains of
// OnEnter results terminate.
package fsm
