// Package alarm implements the gRPC control API of the alarm subsystem.
//
// Requests and responses are google.protobuf.Struct messages; every call
// runs on the executor of the place it names.
package alarm
