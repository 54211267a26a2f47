// Package config defines the settings of the alarm subsystem service and
// provides helpers to load, validate and save them in YAML format.
//
// Values read from YAML can be overridden by ALARM_* environment variables,
// e.g. ALARM_LISTEN_ADDR or ALARM_STORE_REDIS_ADDR.
package config
