// Package state implements persistence for place snapshots of the alarm
// subsystem.
//
// Snapshots are encoded as protobuf JSON (protojson) of a structpb.Struct.
// FileRepository keeps one file per place, RedisRepository one key per
// place, and MemoryRepository serves tests and single-process setups. All
// of them expose the Repository interface the subsystem executor depends on.
package state
