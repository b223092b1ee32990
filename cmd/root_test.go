package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangeget/internal/flakyserver"
	"github.com/tanq16/rangeget/internal/scheduler"
	"github.com/tanq16/rangeget/internal/session"
	"github.com/tanq16/rangeget/internal/sink"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/verifier"
)

func TestExecute_StreamedPayloadStaysClean(t *testing.T) {
	payload := flakyserver.RandomPayload(30_000, 4)
	srv := httptest.NewServer(flakyserver.New(payload, flakyserver.Options{Threshold: 1024, TruncateRate: 0.3, Seed: 9}))
	defer srv.Close()

	dl := types.DefaultDownloadConfig()
	dl.URL = srv.URL
	dl.MaxChunkSize = 4096
	dl.MaxAttempts = 0
	dl.Backoff = time.Millisecond
	dl.ExpectedSHA256 = verifier.Sum(payload)

	var stream, display bytes.Buffer
	jobs := []scheduler.Job{
		{Output: "-", Sink: sink.WriterSink{W: &stream, Name: "stdout"}, Config: dl},
		{Config: dl},
	}
	code := execute(context.Background(), jobs, 2, &display, true)

	assert.Equal(t, 0, code)
	assert.Equal(t, payload, stream.Bytes(), "stream must carry the payload and nothing else")
	assert.Contains(t, display.String(), "Completed 2 of 2")
	assert.Contains(t, display.String(), "Processed 2 downloads")
}

func TestDisplayWriter(t *testing.T) {
	assert.Equal(t, os.Stdout, displayWriter([]scheduler.Job{{Output: "out.bin"}, {Output: ""}}))
	assert.Equal(t, os.Stderr, displayWriter([]scheduler.Job{{Output: "-"}}))
	assert.Equal(t, os.Stderr, displayWriter([]scheduler.Job{{Output: "a.bin"}, {Output: "-"}}))
}

func TestExitCode(t *testing.T) {
	matched := &session.Result{Verification: types.VerificationOutcome{Status: types.VerificationMatch}}
	mismatched := &session.Result{Verification: types.VerificationOutcome{Status: types.VerificationMismatch}}
	failed := errors.New("download aborted")

	tests := []struct {
		name     string
		outcomes []scheduler.Outcome
		want     int
	}{
		{"no jobs", nil, 0},
		{"all succeeded", []scheduler.Outcome{{Result: matched}, {Result: matched}}, 0},
		{"digest mismatch only", []scheduler.Outcome{{Result: matched}, {Result: mismatched}}, exitMismatch},
		{"failure wins over mismatch", []scheduler.Outcome{{Result: mismatched}, {Err: failed}}, exitFailure},
		{"failure before mismatch", []scheduler.Outcome{{Err: failed}, {Result: mismatched}}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, exitCode(tt.outcomes))
		})
	}
}
