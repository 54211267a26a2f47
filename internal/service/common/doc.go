// Package common holds helpers shared by the command line services.
//
// It provides a typed client of the alarm.v1.AlarmSubsystem API with call
// timeouts, and detection of the acting person from the OS user.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
