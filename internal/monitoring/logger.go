// Package monitoring provides the process-wide diagnostic logging seam.
package monitoring

import "log"

// LogFunc matches the log.Printf signature.
type LogFunc func(format string, args ...any)

// Logf is where every npglink package sends diagnostics. It defaults to
// log.Printf. Neither it nor the debug gate is synchronized, so configure
// both before the stream starts.
var Logf LogFunc = log.Printf

var debugEnabled bool

// SetLogger routes diagnostics through f. Passing nil mutes them.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...any) {}
	}
	Logf = f
}

// SetDebug turns Debugf output on or off. Per-fragment diagnostics are
// too chatty for normal runs, so they stay off unless asked for.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// Debugf logs through Logf when debug output is enabled.
func Debugf(format string, args ...any) {
	if debugEnabled {
		Logf(format, args...)
	}
}
