package rangehttp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
)

type ProbeOptions struct {
	Timeout     time.Duration
	MaxAttempts int // 0 retries forever
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// Prober discovers the resource length with a one-byte range request.
type Prober struct {
	url    string
	client utils.HTTPDoer
	opts   ProbeOptions
}

func NewProber(url string, client utils.HTTPDoer, opts ProbeOptions) *Prober {
	return &Prober{url: url, client: client, opts: opts}
}

// Probe retries transient failures and returns a *types.PlanningError once the
// length cannot be established.
func (p *Prober) Probe(ctx context.Context) (types.ResourceDescriptor, error) {
	var lastErr error
	for attempt := 1; p.opts.MaxAttempts == 0 || attempt <= p.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := utils.BackoffDelay(p.opts.Backoff, p.opts.MaxBackoff, attempt)
			log.Warn().Str("op", "http/initial").Err(lastErr).Msgf("Retrying length probe (attempt %d) in %s", attempt, delay)
			if err := utils.SleepContext(ctx, delay); err != nil {
				return types.ResourceDescriptor{}, err
			}
		}
		length, retryable, err := p.probeOnce(ctx)
		if err == nil {
			log.Debug().Str("op", "http/initial").Msgf("resource %s is %d bytes", p.url, length)
			return types.ResourceDescriptor{URL: p.url, Length: length}, nil
		}
		if ctx.Err() != nil {
			return types.ResourceDescriptor{}, ctx.Err()
		}
		if !retryable {
			return types.ResourceDescriptor{}, err
		}
		lastErr = err
	}
	return types.ResourceDescriptor{}, &types.PlanningError{
		Reason: fmt.Sprintf("length probe failed after %d attempts", p.opts.MaxAttempts),
		Err:    lastErr,
	}
}

func (p *Prober) probeOnce(ctx context.Context) (int64, bool, error) {
	reqCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, false, &types.PlanningError{Reason: "invalid source URL", Err: err}
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, true, fmt.Errorf("error executing probe request: %w", err)
	}
	defer resp.Body.Close()

	var length int64
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		cr := resp.Header.Get("Content-Range")
		if cr == "" {
			return 0, false, &types.PlanningError{Reason: "missing Content-Range header on 206 response"}
		}
		_, _, total, err := ParseContentRange(cr)
		if err != nil {
			return 0, false, &types.PlanningError{Reason: "unparseable Content-Range header", Err: err}
		}
		if total < 0 {
			return 0, false, &types.PlanningError{Reason: "server did not declare the total length"}
		}
		length = total
	case resp.StatusCode == http.StatusOK:
		if resp.ContentLength < 0 {
			return 0, false, &types.PlanningError{Reason: "server didn't provide Content-Length header"}
		}
		length = resp.ContentLength
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return 0, false, &types.PlanningError{Reason: "resource is empty or ranges are unsupported", Err: types.ErrRangeNotSatisfiable}
	case resp.StatusCode >= 500:
		return 0, true, fmt.Errorf("server error: %d", resp.StatusCode)
	default:
		return 0, false, &types.PlanningError{Reason: fmt.Sprintf("unexpected status code: %d", resp.StatusCode)}
	}
	if length <= 0 {
		return 0, false, &types.PlanningError{Reason: fmt.Sprintf("invalid resource length %d", length)}
	}
	return length, false, nil
}
