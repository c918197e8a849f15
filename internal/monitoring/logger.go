// Package monitoring carries the process-wide diagnostic logger. Transport
// faults are absorbed rather than surfaced, so this is the only place they
// become visible.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
// Replace it with SetLogger to redirect or mute diagnostics.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil argument installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
