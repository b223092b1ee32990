package utils

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"64KiB":  64 * 1024,
		"65536":  65536,
		"1MiB":   1024 * 1024,
		"1 MB":   1000 * 1000,
		" 32KB ": 32000,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSize("0")
	require.Error(t, err)
	_, err = ParseSize("lots")
	require.Error(t, err)
}

func TestParseHeaderArgs(t *testing.T) {
	h := ParseHeaderArgs([]string{"Authorization: Basic abc", "X-Empty:", "broken"})
	assert.Equal(t, "Basic abc", h["Authorization"])
	assert.Equal(t, "", h["X-Empty"])
	assert.NotContains(t, h, "broken")
}

func TestSourceURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/", SourceURL("127.0.0.1", 8080, "/"))
	assert.Equal(t, "http://example.com:9000/data.bin", SourceURL("example.com", 9000, "data.bin"))
	assert.Equal(t, "http://[::1]:80/x", SourceURL("::1", 80, "/x"))
}

func TestNumberedPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "payload-(1).bin"), NumberedPath(filepath.Join("out", "payload.bin"), 1))
	assert.Equal(t, "archive.tar-(3).gz", NumberedPath("archive.tar.gz", 3))
	assert.Equal(t, "README-(2)", NumberedPath("README", 2))
}

func TestBackoffDelay(t *testing.T) {
	base := 50 * time.Millisecond
	assert.Equal(t, time.Duration(0), BackoffDelay(base, time.Second, 0))
	assert.Equal(t, 50*time.Millisecond, BackoffDelay(base, time.Second, 1))
	assert.Equal(t, 100*time.Millisecond, BackoffDelay(base, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, BackoffDelay(base, time.Second, 4))
	assert.Equal(t, time.Second, BackoffDelay(base, time.Second, 10))
	assert.Equal(t, time.Second, BackoffDelay(base, time.Second, 200))
	assert.Equal(t, time.Duration(0), BackoffDelay(0, time.Second, 3))
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := SleepContext(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
