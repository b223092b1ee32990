package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangeget/internal/output"
	"github.com/tanq16/rangeget/internal/session"
	"github.com/tanq16/rangeget/internal/sink"
	"github.com/tanq16/rangeget/internal/types"
	"golang.org/x/sync/errgroup"
)

type Job struct {
	Output string
	// Sink overrides the destination derived from Output when set.
	Sink   sink.Sink
	Config types.DownloadConfig
}

type Outcome struct {
	Job         Job
	Result      *session.Result
	Destination string
	Err         error
}

// Mismatched reports a completed download whose digest did not verify.
func (o Outcome) Mismatched() bool {
	return o.Err == nil && o.Result != nil && o.Result.Verification.Status == types.VerificationMismatch
}

// Run executes up to parallel sessions at a time. A failed job does not stop
// the others; outcomes are returned in job order.
func Run(ctx context.Context, jobs []Job, parallel int, outputMgr *output.Manager) []Outcome {
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	outcomes := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, job := range jobs {
		taskID := outputMgr.RegisterTask(job.Config.URL)
		g.Go(func() error {
			outcomes[i] = processJob(gctx, job, taskID, outputMgr)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func processJob(ctx context.Context, job Job, taskID int, outputMgr *output.Manager) Outcome {
	outcome := Outcome{Job: job}
	outputMgr.SetMessage(taskID, fmt.Sprintf("Probing %s", job.Config.URL))

	dest := job.Sink
	if dest == nil {
		var err error
		if dest, err = sink.New(ctx, job.Output); err != nil {
			outcome.Err = fmt.Errorf("invalid output %q: %w", job.Output, err)
			outputMgr.ReportError(taskID, outcome.Err)
			return outcome
		}
	}

	s := session.New(job.Config,
		session.WithEventHandler(outputMgr.EventHandler(taskID)),
		session.WithPlanHandler(func(r types.ResourceDescriptor, chunks []types.ChunkDescriptor) {
			outputMgr.SetPlan(taskID, r, chunks)
		}),
	)
	res, err := s.Run(ctx)
	if err != nil {
		outcome.Err = err
		outputMgr.ReportError(taskID, describe(err))
		return outcome
	}
	outcome.Result = res

	location, err := dest.Write(ctx, sink.Payload{
		Data:      res.Data,
		SessionID: res.ID,
		SourceURL: job.Config.URL,
		SHA256:    res.Verification.Computed,
	})
	if err != nil {
		outcome.Err = fmt.Errorf("error writing output: %w", err)
		outputMgr.ReportError(taskID, outcome.Err)
		return outcome
	}
	outcome.Destination = location
	log.Debug().Str("op", "scheduler/scheduler").Str("session", res.ID).Msgf("job for %s finished", job.Config.URL)

	outputMgr.Complete(taskID, output.Report{
		Size:         res.Resource.Length,
		Elapsed:      res.Elapsed,
		Chunks:       len(res.Chunks),
		Attempts:     res.Attempts,
		Verification: res.Verification,
		Destination:  location,
	})
	return outcome
}

// describe adds the failing stage to session errors for the error summary.
func describe(err error) error {
	var pe *types.PlanningError
	var ce *types.ChunkExhaustedError
	var re *types.ReassemblyError
	switch {
	case errors.As(err, &pe):
		return fmt.Errorf("could not plan download: %w", err)
	case errors.As(err, &ce):
		return fmt.Errorf("download aborted: %w", err)
	case errors.As(err, &re):
		return fmt.Errorf("internal error: %w", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("download cancelled: %w", err)
	}
	return err
}
