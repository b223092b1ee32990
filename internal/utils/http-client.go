package utils

import (
	"net"
	"net/http"
	"net/url"
	"syscall"

	"github.com/tanq16/rangeget/internal/types"
)

const maxReceiveBuffer = 4 * 1024 * 1024

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RangeHTTPClient opens a fresh connection for every request. The upstream is
// unreliable, so nothing is pooled or pipelined.
type RangeHTTPClient struct {
	client *http.Client
	config types.HTTPClientConfig
}

// NewRangeHTTPClient builds the transport. receiveBuffer sizes SO_RCVBUF so a
// whole chunk fits in the kernel buffer; 0 leaves the OS default.
func NewRangeHTTPClient(cfg types.HTTPClientConfig, receiveBuffer int) *RangeHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = types.DefaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if receiveBuffer > 0 {
		size := min(receiveBuffer, maxReceiveBuffer)
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd, size)
			})
		}
	}
	transport := &http.Transport{
		DialContext:        dialer.DialContext,
		DisableKeepAlives:  true,
		DisableCompression: true,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &RangeHTTPClient{
		// no client-wide Timeout: each request carries its own deadline
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

func (c *RangeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Connection", "close")
	return c.client.Do(req)
}
