// Package monitoring carries the process-wide diagnostic logger for the
// fit service. The fit engine itself stays silent; the API, persistence
// and command layers report through Logf, so a binary embedding them can
// redirect or mute diagnostics in one place.
package monitoring

import "log"

// Logf emits one diagnostic line. It defaults to log.Printf and can be
// swapped out with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. A nil argument installs a no-op logger,
// muting all diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
