// Package monitoring provides the diagnostic logger signature and the
// prometheus metrics shared by the report pipeline.
package monitoring

import "log"

// Logf is the diagnostic logger used across packages. Components receive a
// Logf explicitly instead of reaching for a process-wide logger, so tests
// can redirect or mute each run independently.
type Logf func(format string, v ...interface{})

// Default logs through the standard log package.
func Default() Logf { return log.Printf }

// Discard drops every message.
func Discard(string, ...interface{}) {}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logf) Logf {
	if l == nil {
		return Discard
	}
	return l
}

// Prefixed returns a logger that tags every message with "[component] ".
func Prefixed(l Logf, component string) Logf {
	l = OrDiscard(l)
	tag := "[" + component + "] "
	return func(format string, v ...interface{}) {
		l(tag+format, v...)
	}
}
