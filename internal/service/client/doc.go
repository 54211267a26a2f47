// Package client runs control operations against a running alarm subsystem.
package client
