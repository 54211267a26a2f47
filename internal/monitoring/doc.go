// Package monitoring is the HTTP client of the professional monitoring
// station. It dispatches alarmed incidents and asks the station to stand
// down when an incident is cancelled.
package monitoring
