// Package sounds maps alarm transitions to local sounder intents.
//
// The tables are immutable and shared by every place. Lookups never fail:
// anything unmapped degrades to NoSound.
package sounds
