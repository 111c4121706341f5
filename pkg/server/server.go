// Package server is a small HTTP service contrasting CPU-bound and
// I/O-bound request handling.
//
//	GET /cpu   sums 0..CPUBound on the request goroutine
//	GET /ping  sleeps PingDelay, simulating a fast I/O call
//	GET /job   sleeps JobDelay, simulating a slow background job
//	GET /sum   runs the full benchmark and returns its report
//
// /sum requests are served one at a time: the benchmark reads the
// process-wide CPU clock, so overlapping runs would charge each other's
// work to their reported time.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inheritance10/sumbench/pkg/cputime"
	"github.com/inheritance10/sumbench/pkg/logflags"
	"github.com/inheritance10/sumbench/pkg/sumbench"
)

const shutdownTimeout = 5 * time.Second

// Config holds the tunables of the service.
type Config struct {
	CPUBound  int64
	PingDelay time.Duration
	JobDelay  time.Duration
	// Clock times /sum. Defaults to cputime.Process.
	Clock cputime.Clock
}

// Server serves the demo endpoints.
type Server struct {
	conf Config
	log  *logrus.Entry
	mux  *http.ServeMux

	sumMu sync.Mutex // held for the duration of a /sum run
}

// New returns a Server ready to be passed to Run or used as a Handler.
func New(conf Config) *Server {
	if conf.Clock == nil {
		conf.Clock = cputime.Process
	}
	s := &Server{conf: conf, log: logflags.ServerLogger(), mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /cpu", s.cpu)
	s.mux.HandleFunc("GET /ping", s.ping)
	s.mux.HandleFunc("GET /job", s.job)
	s.mux.HandleFunc("GET /sum", s.sum)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves on l until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Infof("serving on %s", l.Addr())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) cpu(w http.ResponseWriter, r *http.Request) {
	result := sumbench.Accumulate(0, s.conf.CPUBound)
	fmt.Fprintf(w, "CPU result: %d\n", result)
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	if !sleep(r.Context(), s.conf.PingDelay) {
		return
	}
	w.Write([]byte("pong"))
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("job started")
	if !sleep(r.Context(), s.conf.JobDelay) {
		s.log.Debug("job cancelled")
		return
	}
	s.log.Debug("job finished")
	w.Write([]byte("Ok"))
}

func (s *Server) sum(w http.ResponseWriter, r *http.Request) {
	s.sumMu.Lock()
	res := sumbench.Run(s.conf.Clock)
	s.sumMu.Unlock()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := res.Report(w); err != nil {
		s.log.WithError(err).Error("writing report")
	}
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
