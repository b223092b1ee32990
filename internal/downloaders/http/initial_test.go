package rangehttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangeget/internal/flakyserver"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
)

func newTestProber(url string, attempts int) *Prober {
	client := utils.NewRangeHTTPClient(types.HTTPClientConfig{}, 0)
	return NewProber(url, client, ProbeOptions{Timeout: time.Second, MaxAttempts: attempts})
}

func requirePlanningError(t *testing.T, err error) *types.PlanningError {
	t.Helper()
	var pe *types.PlanningError
	require.True(t, errors.As(err, &pe), "expected *types.PlanningError, got %T: %v", err, err)
	return pe
}

func TestProbe_ContentRange(t *testing.T) {
	payload := flakyserver.RandomPayload(200000, 4)
	server := httptest.NewServer(flakyserver.New(payload, flakyserver.Options{Threshold: 1024}))
	defer server.Close()

	res, err := newTestProber(server.URL, 3).Probe(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(200000), res.Length)
	require.Equal(t, server.URL, res.URL)
}

func TestProbe_ContentLengthFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1234")
		w.WriteHeader(http.StatusOK)
		w.Write(make([]byte, 1234))
	}))
	defer server.Close()

	res, err := newTestProber(server.URL, 1).Probe(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1234), res.Length)
}

func TestProbe_UnknownTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-0/*")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer server.Close()

	_, err := newTestProber(server.URL, 3).Probe(context.Background())
	requirePlanningError(t, err)
}

func TestProbe_EmptyResource(t *testing.T) {
	server := httptest.NewServer(flakyserver.New(nil, flakyserver.Options{}))
	defer server.Close()

	_, err := newTestProber(server.URL, 3).Probe(context.Background())
	requirePlanningError(t, err)
	assert.ErrorIs(t, err, types.ErrRangeNotSatisfiable)
}

func TestProbe_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestProber(server.URL, 5).Probe(context.Background())
	requirePlanningError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProbe_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-0/4096")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer server.Close()

	res, err := newTestProber(server.URL, 5).Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4096), res.Length)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProbe_GivesUpAfterBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestProber(server.URL, 2).Probe(context.Background())
	pe := requirePlanningError(t, err)
	assert.Error(t, pe.Err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProbe_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := utils.NewRangeHTTPClient(types.HTTPClientConfig{}, 0)
	prober := NewProber(server.URL, client, ProbeOptions{Timeout: time.Second, Backoff: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := prober.Probe(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
