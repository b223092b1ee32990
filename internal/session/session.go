// Package session runs one complete range download: probe, plan, dispatch,
// reassemble and verify.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangeget/internal/dispatcher"
	rangehttp "github.com/tanq16/rangeget/internal/downloaders/http"
	"github.com/tanq16/rangeget/internal/planner"
	"github.com/tanq16/rangeget/internal/reassembler"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
	"github.com/tanq16/rangeget/internal/verifier"
)

type Prober interface {
	Probe(ctx context.Context) (types.ResourceDescriptor, error)
}

type Result struct {
	ID           string
	Resource     types.ResourceDescriptor
	Data         []byte
	Chunks       []types.ChunkDescriptor
	Attempts     int // across all chunks
	Verification types.VerificationOutcome
	Elapsed      time.Duration
}

type Session struct {
	id      string
	cfg     types.DownloadConfig
	fetcher dispatcher.Fetcher
	prober  Prober
	client  utils.HTTPDoer
	onEvent func(types.ChunkEvent)
	onPlan  func(types.ResourceDescriptor, []types.ChunkDescriptor)
	logger  zerolog.Logger
}

type Option func(*Session)

func WithFetcher(f dispatcher.Fetcher) Option {
	return func(s *Session) { s.fetcher = f }
}

func WithProber(p Prober) Option {
	return func(s *Session) { s.prober = p }
}

// WithEventHandler receives every chunk event. It is called concurrently and
// must not block.
func WithEventHandler(fn func(types.ChunkEvent)) Option {
	return func(s *Session) { s.onEvent = fn }
}

// WithPlanHandler is called once the resource length is known and the chunks
// are planned, before any chunk is fetched.
func WithPlanHandler(fn func(types.ResourceDescriptor, []types.ChunkDescriptor)) Option {
	return func(s *Session) { s.onPlan = fn }
}

func New(cfg types.DownloadConfig, opts ...Option) *Session {
	s := &Session{id: uuid.NewString(), cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With().Str("session", s.id).Logger()
	if s.fetcher == nil || s.prober == nil {
		s.client = utils.NewRangeHTTPClient(cfg.HTTPClientConfig, int(cfg.MaxChunkSize))
		if s.prober == nil {
			s.prober = rangehttp.NewProber(cfg.URL, s.client, rangehttp.ProbeOptions{
				Timeout:     cfg.RequestTimeout,
				MaxAttempts: cfg.MaxAttempts,
				Backoff:     cfg.Backoff,
				MaxBackoff:  cfg.MaxBackoff,
			})
		}
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Run returns the assembled payload. A digest mismatch is reported in
// Result.Verification with a nil error; every other failure is fatal and
// returns a nil Result.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if s.cfg.MaxChunkSize <= 0 {
		return nil, &types.PlanningError{Reason: fmt.Sprintf("max chunk size must be positive, got %d", s.cfg.MaxChunkSize)}
	}

	resource, err := s.prober.Probe(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := planner.Plan(resource.Length, s.cfg.MaxChunkSize)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("op", "session/session").Msgf("Downloading %s (%s) in %d chunks with %d workers",
		resource.URL, utils.FormatBytes(uint64(resource.Length)), len(chunks), min(s.cfg.Workers, len(chunks)))
	if s.onPlan != nil {
		s.onPlan(resource, chunks)
	}

	fetcher := s.fetcher
	if fetcher == nil {
		// built after probing so every response is held to the probed length
		fetcher = rangehttp.NewFetcher(s.cfg.URL, s.client, s.cfg.RequestTimeout, resource.Length)
	}
	d := dispatcher.New(fetcher, dispatcher.Options{
		Workers:     s.cfg.Workers,
		MaxAttempts: s.cfg.MaxAttempts,
		Backoff:     s.cfg.Backoff,
		MaxBackoff:  s.cfg.MaxBackoff,
		OnEvent:     s.handleEvent,
	})
	completed, err := d.Run(ctx, chunks)
	if err != nil {
		s.logger.Error().Str("op", "session/session").Err(err).Msg("Download aborted")
		return nil, err
	}

	data, err := reassembler.Assemble(completed, len(chunks), resource.Length)
	if err != nil {
		return nil, err
	}
	attempts := 0
	for _, res := range completed {
		attempts += res.Attempts
	}

	outcome := verifier.Verify(data, s.cfg.ExpectedSHA256)
	switch outcome.Status {
	case types.VerificationMismatch:
		s.logger.Warn().Str("op", "session/session").Err(outcome.Err()).Msg("Verification failed")
	case types.VerificationMatch:
		s.logger.Debug().Str("op", "session/session").Msg("Verification passed")
	}

	elapsed := time.Since(start)
	s.logger.Debug().Str("op", "session/session").Int("attempts", attempts).Dur("elapsed", elapsed).Msgf("session complete, %s", outcome.Computed)
	return &Result{
		ID:           s.id,
		Resource:     resource,
		Data:         data,
		Chunks:       chunks,
		Attempts:     attempts,
		Verification: outcome,
		Elapsed:      elapsed,
	}, nil
}

func (s *Session) handleEvent(ev types.ChunkEvent) {
	if ev.Status == types.ChunkFailed {
		s.logger.Debug().Str("op", "session/session").Int("chunk", ev.Index).Int("attempt", ev.Attempt).Err(ev.Err).Msg("chunk attempt failed")
	}
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}
