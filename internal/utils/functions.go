package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// NumberedPath turns "dir/name.ext" into "dir/name-(n).ext".
func NumberedPath(outputPath string, n int) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, n, ext))
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ParseSize accepts plain byte counts and humanized sizes ("64KiB", "1MB").
func ParseSize(s string) (int64, error) {
	size, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return int64(size), nil
}

func FormatBytes(bytes uint64) string {
	return humanize.IBytes(bytes)
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(float64(bytes)/elapsed)) + "/s"
}

// SourceURL builds the download URL from host, port and path.
func SourceURL(host string, port int, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// BackoffDelay is the wait before attempt: base * 2^(attempt-1), capped at limit.
func BackoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
