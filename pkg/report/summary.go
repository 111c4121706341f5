package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/montanaflynn/stats"

	"github.com/inheritance10/sumbench/pkg/sumbench"
)

// Summary describes a series of benchmark runs. Times are in seconds.
type Summary struct {
	Runs      int
	Mean      float64
	Median    float64
	Min       float64
	Max       float64
	StdDev    float64
	MeanWall  float64
	SumsMatch bool // every run produced sumbench.ExpectedSum
}

var errNoResults = errors.New("no results to summarise")

// Summarize computes CPU time statistics over results.
func Summarize(results []sumbench.Result) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, errNoResults
	}
	cpu := make(stats.Float64Data, 0, len(results))
	wall := make(stats.Float64Data, 0, len(results))
	s := Summary{Runs: len(results), SumsMatch: true}
	for _, r := range results {
		cpu = append(cpu, r.Seconds())
		wall = append(wall, r.Wall.Seconds())
		if r.Sum != sumbench.ExpectedSum {
			s.SumsMatch = false
		}
	}

	var err error
	if s.Mean, err = cpu.Mean(); err != nil {
		return Summary{}, err
	}
	if s.Median, err = cpu.Median(); err != nil {
		return Summary{}, err
	}
	if s.Min, err = cpu.Min(); err != nil {
		return Summary{}, err
	}
	if s.Max, err = cpu.Max(); err != nil {
		return Summary{}, err
	}
	if s.StdDev, err = cpu.StandardDeviation(); err != nil {
		return Summary{}, err
	}
	if s.MeanWall, err = wall.Mean(); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// PrintSummary writes s in a fixed, line oriented layout.
func PrintSummary(w io.Writer, s Summary) error {
	consistent := "yes"
	if !s.SumsMatch {
		consistent = "NO"
	}
	_, err := fmt.Fprintf(w, "Runs: %d\nCPU time (s): mean %.3f median %.3f min %.3f max %.3f stddev %.3f\nWall time (s): mean %.3f\nSums consistent: %s\n",
		s.Runs, s.Mean, s.Median, s.Min, s.Max, s.StdDev, s.MeanWall, consistent)
	return err
}
