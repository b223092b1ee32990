package rangehttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
)

type FetchResult struct {
	Data   []byte
	Status int
	// Declared range from Content-Range, -1 when the server sent none.
	DeclaredStart int64
	DeclaredEnd   int64
	DeclaredTotal int64
}

// Fetcher issues exactly one range request per call and never retries.
type Fetcher struct {
	url     string
	client  utils.HTTPDoer
	timeout time.Duration
	total   int64
}

// NewFetcher expects every Content-Range to declare total as the resource
// length. A total of 0 or less skips that check.
func NewFetcher(url string, client utils.HTTPDoer, timeout time.Duration, total int64) *Fetcher {
	return &Fetcher{url: url, client: client, timeout: timeout, total: total}
}

// Fetch succeeds only on a 200/206 whose body is exactly chunk.Size() bytes.
// Every failure is a *types.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, chunk types.ChunkDescriptor) (FetchResult, error) {
	reqCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	want := chunk.Size()
	result := FetchResult{DeclaredStart: -1, DeclaredEnd: -1, DeclaredTotal: -1}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.url, nil)
	if err != nil {
		return result, &types.FetchError{Index: chunk.Index, Kind: types.KindConnection, Want: want, Err: err}
	}
	req.Header.Set("Range", chunk.RangeHeader())
	resp, err := f.client.Do(req)
	if err != nil {
		return result, &types.FetchError{Index: chunk.Index, Kind: classify(reqCtx, err), Want: want, Err: err}
	}
	defer resp.Body.Close()
	result.Status = resp.StatusCode

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return result, &types.FetchError{Index: chunk.Index, Kind: types.KindStatus, Status: resp.StatusCode, Want: want}
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		start, end, total, err := ParseContentRange(cr)
		if err != nil {
			return result, &types.FetchError{Index: chunk.Index, Kind: types.KindRangeMismatch, Status: resp.StatusCode, Want: want, Err: err}
		}
		result.DeclaredStart, result.DeclaredEnd, result.DeclaredTotal = start, end, total
		if start != chunk.Start || end != chunk.End {
			return result, &types.FetchError{
				Index:  chunk.Index,
				Kind:   types.KindRangeMismatch,
				Status: resp.StatusCode,
				Want:   want,
				Err:    fmt.Errorf("requested %d-%d, server declared %d-%d", chunk.Start, chunk.End, start, end),
			}
		}
		if f.total > 0 && total >= 0 && total != f.total {
			return result, &types.FetchError{
				Index:  chunk.Index,
				Kind:   types.KindRangeMismatch,
				Status: resp.StatusCode,
				Want:   want,
				Err:    fmt.Errorf("resource length changed from %d to %d", f.total, total),
			}
		}
	}

	// one extra byte is enough to tell an oversized body apart
	data, err := io.ReadAll(io.LimitReader(resp.Body, want+1))
	got := int64(len(data))
	if err != nil {
		kind := types.KindTruncated
		if classify(reqCtx, err) == types.KindTimeout {
			kind = types.KindTimeout
		}
		return result, &types.FetchError{Index: chunk.Index, Kind: kind, Status: resp.StatusCode, Got: got, Want: want, Err: err}
	}
	if got < want {
		return result, &types.FetchError{Index: chunk.Index, Kind: types.KindTruncated, Status: resp.StatusCode, Got: got, Want: want}
	}
	if got > want {
		return result, &types.FetchError{Index: chunk.Index, Kind: types.KindOverflow, Status: resp.StatusCode, Got: got, Want: want}
	}
	log.Debug().Str("op", "http/multi-chunk-handlers").Int("chunk", chunk.Index).Msgf("received %d bytes for %s", got, chunk.RangeHeader())
	result.Data = data
	return result, nil
}

func classify(ctx context.Context, err error) types.FetchErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return types.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.KindTimeout
	}
	return types.KindConnection
}
