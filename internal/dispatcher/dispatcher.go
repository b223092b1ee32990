// Package dispatcher drives every planned chunk to a verified-length result
// through a bounded pool of fetch workers.
//
// A single coordinator goroutine owns the per-chunk state. Workers pull
// descriptors from a buffered queue, perform one fetch, and report the
// outcome back; they never touch shared state and hold no lock while the
// network call is in progress. Failed chunks are re-queued with the identical
// byte range until they succeed or exhaust their attempt budget, which aborts
// the whole run.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	rangehttp "github.com/tanq16/rangeget/internal/downloaders/http"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
)

type Fetcher interface {
	Fetch(ctx context.Context, chunk types.ChunkDescriptor) (rangehttp.FetchResult, error)
}

type Options struct {
	Workers     int
	MaxAttempts int // 0 retries forever
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// OnEvent is called from worker and coordinator goroutines and must not
	// block.
	OnEvent func(types.ChunkEvent)
}

type Dispatcher struct {
	fetcher Fetcher
	opts    Options
}

type job struct {
	chunk   types.ChunkDescriptor
	attempt int
}

type outcome struct {
	job  job
	data []byte
	err  error
}

func New(fetcher Fetcher, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = types.DefaultWorkers
	}
	return &Dispatcher{fetcher: fetcher, opts: opts}
}

// Run returns once every chunk has exactly one result, or with a
// *types.ChunkExhaustedError as soon as one chunk runs out of attempts.
// Results are keyed by chunk index; callers read them only after Run returns.
func (d *Dispatcher) Run(ctx context.Context, chunks []types.ChunkDescriptor) (map[int]types.ChunkResult, error) {
	if len(chunks) == 0 {
		return map[int]types.ChunkResult{}, nil
	}
	for i, c := range chunks {
		if c.Index != i {
			return nil, &types.PlanningError{Reason: "chunk indices must match their position"}
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	state := newDownloadState(chunks)
	workers := min(d.opts.Workers, len(chunks))

	// every chunk is queued at most once at a time, so sends never block
	jobs := make(chan job, len(chunks))
	results := make(chan outcome, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(runCtx, jobs, results)
		}()
	}
	defer func() {
		cancel()
		close(jobs)
		wg.Wait()
	}()

	for i := range chunks {
		jobs <- job{chunk: chunks[i], attempt: state.dispatch(i)}
	}
	log.Debug().Str("op", "dispatcher/dispatcher").Msgf("dispatched %d chunks to %d workers", len(chunks), workers)

	for !state.done() {
		var out outcome
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out = <-results:
		}
		chunk := out.job.chunk
		if out.err == nil && int64(len(out.data)) != chunk.Size() {
			out.err = &types.FetchError{Index: chunk.Index, Kind: types.KindTruncated, Got: int64(len(out.data)), Want: chunk.Size()}
		}
		if out.err == nil {
			if res, ok := state.complete(chunk.Index, out.data); ok {
				log.Debug().Str("op", "dispatcher/dispatcher").Int("chunk", chunk.Index).Uint64("fingerprint", res.Fingerprint).Msgf("chunk complete after %d attempts", res.Attempts)
				d.emit(types.ChunkEvent{Index: chunk.Index, Start: chunk.Start, End: chunk.End, Bytes: chunk.Size(), Attempt: res.Attempts, Status: types.ChunkCompleted})
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if state.fail(chunk.Index, d.opts.MaxAttempts) {
			log.Error().Str("op", "dispatcher/dispatcher").Int("chunk", chunk.Index).Err(out.err).Msgf("chunk exhausted after %d attempts", out.job.attempt)
			d.emit(types.ChunkEvent{Index: chunk.Index, Start: chunk.Start, End: chunk.End, Bytes: partialBytes(out), Attempt: out.job.attempt, Status: types.ChunkExhausted, Err: out.err})
			return nil, &types.ChunkExhaustedError{Index: chunk.Index, Attempts: out.job.attempt, Last: out.err}
		}
		log.Debug().Str("op", "dispatcher/dispatcher").Int("chunk", chunk.Index).Err(out.err).Msgf("attempt %d failed, re-queueing", out.job.attempt)
		d.emit(types.ChunkEvent{Index: chunk.Index, Start: chunk.Start, End: chunk.End, Bytes: partialBytes(out), Attempt: out.job.attempt, Status: types.ChunkFailed, Err: out.err})
		jobs <- job{chunk: chunk, attempt: state.dispatch(chunk.Index)}
	}
	return state.completed, nil
}

func (d *Dispatcher) worker(ctx context.Context, jobs <-chan job, results chan<- outcome) {
	for j := range jobs {
		if ctx.Err() != nil {
			return
		}
		if j.attempt > 1 {
			if err := utils.SleepContext(ctx, utils.BackoffDelay(d.opts.Backoff, d.opts.MaxBackoff, j.attempt)); err != nil {
				return
			}
		}
		d.emit(types.ChunkEvent{Index: j.chunk.Index, Start: j.chunk.Start, End: j.chunk.End, Attempt: j.attempt, Status: types.ChunkStarted})
		res, err := d.fetcher.Fetch(ctx, j.chunk)
		select {
		case results <- outcome{job: j, data: res.Data, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// partialBytes is how much of a failed attempt arrived before it broke off.
func partialBytes(out outcome) int64 {
	var fe *types.FetchError
	if errors.As(out.err, &fe) {
		return fe.Got
	}
	return int64(len(out.data))
}

func (d *Dispatcher) emit(ev types.ChunkEvent) {
	if d.opts.OnEvent != nil {
		d.opts.OnEvent(ev)
	}
}
