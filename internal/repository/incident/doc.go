// Package incident implements storage for alarm incidents and their history.
//
// PostgresRepository keeps incidents in PostgreSQL through lib/pq;
// MemoryRepository serves tests and single-process setups.
package incident
