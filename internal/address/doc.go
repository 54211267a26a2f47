// Package address models platform addresses.
//
// An address has a group (DRIV for device drivers, SERV for platform
// services), a namespace, an id and an optional numeric context qualifier.
// Its string form is the wire representation, e.g. "DRIV:dev:1234" or
// "SERV:rule:place-1.10".
package address
