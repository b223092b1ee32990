// Package flakyserver serves a payload over HTTP range requests while
// misbehaving the way unreliable origins do: responses above a size threshold
// are cut short and a fraction of requests fail outright.
package flakyserver

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

type Options struct {
	// Responses longer than Threshold bytes are truncated to a random
	// shorter length. 0 disables truncation.
	Threshold int64
	// TruncateRate is the fraction of over-threshold responses that get
	// truncated. 0 truncates all of them.
	TruncateRate float64
	// FailRate is the fraction of requests answered with 503.
	FailRate float64
	// Seed makes truncation lengths and failures reproducible.
	Seed uint64
}

type Server struct {
	payload []byte
	opts    Options

	mu  sync.Mutex
	rng *rand.Rand

	requests  atomic.Int64
	truncated atomic.Int64
	failed    atomic.Int64
}

func New(payload []byte, opts Options) *Server {
	return &Server{
		payload: payload,
		opts:    opts,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

// RandomPayload returns size deterministic pseudo-random bytes.
func RandomPayload(size int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}
	return data
}

type Stats struct {
	Requests  int64
	Truncated int64
	Failed    int64
}

func (s *Server) Stats() Stats {
	return Stats{
		Requests:  s.requests.Load(),
		Truncated: s.truncated.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.opts.FailRate > 0 && s.chance(s.opts.FailRate) {
		s.failed.Add(1)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	total := int64(len(s.payload))
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			s.write(w, s.payload)
		}
		return
	}
	start, end, err := parseRange(rangeHeader, total)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
		http.Error(w, fmt.Sprintf("Invalid range: %v", err), http.StatusRequestedRangeNotSatisfiable)
		return
	}
	body := s.payload[start : end+1]
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodGet {
		s.write(w, body)
	}
}

// write sends body, cut short when it exceeds the threshold. The declared
// Content-Length stays intact, so the client sees an unexpected EOF.
func (s *Server) write(w http.ResponseWriter, body []byte) {
	n := int64(len(body))
	if s.opts.Threshold > 0 && n > s.opts.Threshold && (s.opts.TruncateRate <= 0 || s.chance(s.opts.TruncateRate)) {
		s.mu.Lock()
		cut := s.rng.Int64N(n)
		s.mu.Unlock()
		s.truncated.Add(1)
		log.Debug().Str("op", "flakyserver/server").Msgf("truncating %d byte response to %d", n, cut)
		body = body[:cut]
	}
	w.Write(body)
}

func (s *Server) chance(rate float64) bool {
	if rate >= 1 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

// parseRange accepts a single "bytes=start-end" or "bytes=start-" range.
func parseRange(header string, total int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}
	from, to, ok := strings.Cut(spec, "-")
	if !ok || from == "" {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad start: %w", err)
	}
	end := total - 1
	if to != "" {
		end, err = strconv.ParseInt(to, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad end: %w", err)
		}
	}
	if start < 0 || start >= total || end < start {
		return 0, 0, fmt.Errorf("range %d-%d outside 0-%d", start, end, total-1)
	}
	return start, min(end, total-1), nil
}
