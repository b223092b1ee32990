package types

import "time"

type DownloadConfig struct {
	URL              string
	MaxChunkSize     int64
	Workers          int
	MaxAttempts      int // 0 retries forever
	ExpectedSHA256   string
	RequestTimeout   time.Duration
	Backoff          time.Duration
	MaxBackoff       time.Duration
	HTTPClientConfig HTTPClientConfig
}

type HTTPClientConfig struct {
	Timeout       time.Duration // dial timeout, the request deadline lives in DownloadConfig
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
}

// DownloadEntry is one line item of a batch file.
type DownloadEntry struct {
	OutputPath string `yaml:"op"`
	URL        string `yaml:"link"`
	SHA256     string `yaml:"sha256"`
}

const (
	DefaultChunkSize      = 64 * 1024
	DefaultWorkers        = 4
	DefaultMaxAttempts    = 5
	DefaultRequestTimeout = 10 * time.Second
	DefaultBackoff        = 50 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultDialTimeout    = 3 * time.Second
)

func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		MaxChunkSize:   DefaultChunkSize,
		Workers:        DefaultWorkers,
		MaxAttempts:    DefaultMaxAttempts,
		RequestTimeout: DefaultRequestTimeout,
		Backoff:        DefaultBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		HTTPClientConfig: HTTPClientConfig{
			Timeout: DefaultDialTimeout,
			Headers: map[string]string{},
		},
	}
}
