//go:build !linux && !windows && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package cputime

import "time"

// No process clock here; wall time since start is the closest substitute.
var started = time.Now()

func readProcess() (time.Duration, error) {
	return time.Since(started), nil
}
