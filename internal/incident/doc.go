// Package incident orchestrates the lifecycle of alarm incidents.
//
// A place has at most one active incident. Alarms create or extend it with
// AddPreAlert and AddAlert, append triggers with UpdateIncident, and actors
// verify or cancel it. Cancellation is asynchronous: the monitoring station
// is told first and completion is posted back to the place executor as an
// incident:Completed message, which OnCompleted turns into the terminal
// COMPLETE state.
//
// Every method runs on the place executor and takes the subsystem context
// of the place being handled.
package incident
