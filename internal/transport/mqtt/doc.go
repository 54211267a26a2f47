// Package mqtt bridges the device bus to place executors: device events
// published under <prefix>/place/<id>/event are submitted to their place,
// and messages emitted by places are published under
// <prefix>/place/<id>/command.
package mqtt
