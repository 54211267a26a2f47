// Package integration holds end-to-end tests that run the whole service.
package integration
