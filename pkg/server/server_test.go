package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inheritance10/sumbench/pkg/cputime"
)

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestCPU(t *testing.T) {
	s := New(Config{CPUBound: 10})
	rec := get(t, s, http.MethodGet, "/cpu")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CPU result: 55\n", rec.Body.String())
}

func TestPing(t *testing.T) {
	s := New(Config{PingDelay: time.Millisecond})
	rec := get(t, s, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestJob(t *testing.T) {
	s := New(Config{})
	rec := get(t, s, http.MethodGet, "/job")
	assert.Equal(t, "Ok", rec.Body.String())
}

func TestJobCancelled(t *testing.T) {
	s := New(Config{JobDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/job", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.ServeHTTP(rec, req)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job handler did not return after cancellation")
	}
	assert.Empty(t, rec.Body.String())
}

func TestSum(t *testing.T) {
	readings := []time.Duration{0, 1250 * time.Millisecond}
	clock := cputime.ClockFunc(func() time.Duration {
		d := readings[0]
		readings = readings[1:]
		return d
	})
	s := New(Config{Clock: clock})
	rec := get(t, s, http.MethodGet, "/sum")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sum: 5000000050000000\nTime: 1.250 seconds\n", rec.Body.String())
}

func TestSumRunsOneAtATime(t *testing.T) {
	s := New(Config{})
	s.sumMu.Lock()

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- get(t, s, http.MethodGet, "/sum")
	}()

	select {
	case <-done:
		t.Fatal("/sum ran while another run held the benchmark")
	case <-time.After(200 * time.Millisecond):
	}
	s.sumMu.Unlock()

	select {
	case rec := <-done:
		assert.Regexp(t, `^Sum: 5000000050000000\nTime: \d+\.\d{3} seconds\n$`, rec.Body.String())
	case <-time.After(60 * time.Second):
		t.Fatal("/sum did not finish after the benchmark was released")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(Config{CPUBound: 10})
	rec := get(t, s, http.MethodPost, "/cpu")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	rec := get(t, New(Config{}), http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- New(Config{CPUBound: 3}).Run(ctx, l)
	}()

	resp, err := http.Get("http://" + l.Addr().String() + "/cpu")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "CPU result: 6\n", string(body))

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
