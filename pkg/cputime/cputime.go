// Package cputime reads the processor time consumed by the calling
// process. It is the Go counterpart of C's clock(): readings are only
// meaningful as differences between two calls.
package cputime

import (
	"time"

	"github.com/inheritance10/sumbench/pkg/logflags"
)

// Unavailable is returned by Process when the host clock cannot be read.
const Unavailable time.Duration = -1

// Clock returns the current reading of some monotonic time source.
type Clock interface {
	Now() time.Duration
}

// ClockFunc adapts an ordinary function to the Clock interface.
type ClockFunc func() time.Duration

// Now calls f.
func (f ClockFunc) Now() time.Duration {
	return f()
}

// Process is the CPU-time clock of the current process (user + system).
var Process Clock = ClockFunc(processTime)

// read is the platform reading behind Process.
var read = readProcess

func processTime() time.Duration {
	d, err := read()
	if err != nil {
		logflags.BenchLogger().WithError(err).Debug("process cpu clock unavailable")
		return Unavailable
	}
	return d
}
