package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangeget/internal/config"
	"github.com/tanq16/rangeget/internal/output"
	"github.com/tanq16/rangeget/internal/scheduler"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
)

const (
	exitFailure  = 1
	exitMismatch = 2
)

var (
	cfgFile string
	cfg     *config.Config
)

var RangegetVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "rangeget",
	Short:   "rangeget downloads a payload in verified byte-range chunks from servers that cut responses short",
	Version: RangegetVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		utils.InitLogger(cfg.Debug)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		os.Exit(exitFailure)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file (settings can also come from RANGEGET_* env vars)")
	pf.String("chunk-size", "64KiB", "Maximum bytes per range request (eg. 64KiB, 1MB)")
	pf.IntP("workers", "w", types.DefaultWorkers, "Number of concurrent range requests")
	pf.Int("max-attempts", types.DefaultMaxAttempts, "Attempts per chunk before giving up (0 retries forever)")
	pf.StringP("sha256", "s", "", "Expected SHA-256 of the payload (hex)")
	pf.Duration("timeout", types.DefaultRequestTimeout, "Deadline for a single range request (eg. 5s, 1m)")
	pf.Duration("dial-timeout", types.DefaultDialTimeout, "Connection timeout")
	pf.Duration("backoff", types.DefaultBackoff, "Delay before the first retry of a chunk, doubled for every further retry")
	pf.Duration("max-backoff", types.DefaultMaxBackoff, "Upper bound for the retry delay")
	pf.StringP("user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	pf.StringP("proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	pf.String("proxy-username", "", "Proxy username (if not provided in proxy URL)")
	pf.String("proxy-password", "", "Proxy password (if not provided in proxy URL)")
	pf.StringArrayP("header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	pf.Bool("debug", false, "Enable debug logging and list every failed chunk attempt")

	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newServeCmd())
}

func runJobs(jobs []scheduler.Job, parallel int) {
	ctx, stop := signalContext()
	code := execute(ctx, jobs, parallel, displayWriter(jobs), cfg.Debug)
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// displayWriter keeps progress and summaries off stdout when a payload is
// streamed there.
func displayWriter(jobs []scheduler.Job) io.Writer {
	for _, job := range jobs {
		if job.Output == "-" {
			return os.Stderr
		}
	}
	return os.Stdout
}

func execute(ctx context.Context, jobs []scheduler.Job, parallel int, display io.Writer, verbose bool) int {
	outputMgr := output.NewManager(display)
	outputMgr.SetVerbose(verbose)

	start := time.Now()
	outcomes := scheduler.Run(ctx, jobs, parallel, outputMgr)
	if len(jobs) > 1 {
		output.FprintDetail(display, fmt.Sprintf("Processed %d downloads in %s", len(jobs), time.Since(start).Round(time.Millisecond)))
	}
	return exitCode(outcomes)
}

// exitCode is 1 if any job failed, 2 if all completed but a digest did not
// match, 0 otherwise.
func exitCode(outcomes []scheduler.Outcome) int {
	code := 0
	for _, o := range outcomes {
		if o.Err != nil {
			return exitFailure
		}
		if o.Mismatched() {
			code = exitMismatch
		}
	}
	return code
}
