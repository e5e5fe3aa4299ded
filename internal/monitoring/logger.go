// Package monitoring routes diagnostic output from library packages.
// Batch drivers keep the default log.Printf; tests mute it.
package monitoring

import "log"

// Logf emits one diagnostic line. Library code calls this instead of
// the log package directly so a host program can redirect or silence
// everything below it in one place.
var Logf func(format string, v ...interface{}) = log.Printf

// Warnf emits a diagnostic line with the WARNING prefix the batch
// drivers use, so per-scan skips surface in the same grep.
func Warnf(format string, v ...interface{}) {
	Logf("WARNING: "+format, v...)
}

// SetLogger replaces the sink. A nil f discards all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
