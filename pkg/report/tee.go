// Package report copies benchmark reports to a results file and
// summarises repeated runs.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Tee writes everything to out and, if a results file was requested, to
// that file as well.
type Tee struct {
	file   *os.File
	writer io.Writer
}

// NewTee returns a Tee over out. When filename is empty only out is
// written; otherwise filename is created or truncated.
func NewTee(out io.Writer, filename string) (*Tee, error) {
	if filename == "" {
		return &Tee{writer: out}, nil
	}
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create results file: %w", err)
	}
	return &Tee{
		file:   file,
		writer: io.MultiWriter(out, file),
	}, nil
}

func (t *Tee) Write(p []byte) (int, error) {
	return t.writer.Write(p)
}

// WriteHeader writes a dated banner for the named run. It goes to the
// results file only, so the report printed on out is never decorated.
func (t *Tee) WriteHeader(name string, now time.Time) error {
	if t.file == nil {
		return nil
	}
	rule := strings.Repeat("=", 60)
	_, err := fmt.Fprintf(t.file, "%s\nTEST: %s\nDate: %s\n%s\n", rule, name, now.Format("2006-01-02 15:04:05"), rule)
	return err
}

// Close closes the results file.
func (t *Tee) Close() error {
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}
