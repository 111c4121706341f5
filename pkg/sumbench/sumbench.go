// Package sumbench times the accumulation of the integers 1..Upper on the
// process CPU clock.
package sumbench

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inheritance10/sumbench/pkg/cputime"
	"github.com/inheritance10/sumbench/pkg/logflags"
)

const (
	// Upper is the last integer added by Run.
	Upper int64 = 100_000_000
	// ExpectedSum is Upper*(Upper+1)/2.
	ExpectedSum int64 = 5_000_000_050_000_000
)

// Result is the outcome of a single benchmark run.
type Result struct {
	Sum     int64
	Elapsed time.Duration // CPU time spent in the loop
	Wall    time.Duration
}

// Seconds returns the CPU time as fractional seconds.
func (r Result) Seconds() float64 {
	return r.Elapsed.Seconds()
}

// Report writes the two-line report:
//
//	Sum: <integer>
//	Time: <seconds, 3 decimals> seconds
func (r Result) Report(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Sum: %d\nTime: %.3f seconds\n", r.Sum, r.Seconds())
	return err
}

// Run adds 1..Upper in a plain loop and measures it with clock.
func Run(clock cputime.Clock) Result {
	wallStart := time.Now()
	start := clock.Now()

	sum := Accumulate(1, Upper)

	end := clock.Now()
	r := Result{Sum: sum, Elapsed: end - start, Wall: time.Since(wallStart)}

	logflags.BenchLogger().WithFields(logrus.Fields{
		"sum":  r.Sum,
		"cpu":  r.Elapsed,
		"wall": r.Wall,
	}).Debug("benchmark finished")
	return r
}

// Accumulate returns from + (from+1) + ... + to, one addition per integer.
// It must stay a loop: the cost of the loop is what is being measured.
func Accumulate(from, to int64) int64 {
	var sum int64
	for i := from; i <= to; i++ {
		sum += i
	}
	return sum
}
