package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/rangeget/internal/scheduler"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [URL] [--output OUTPUT_PATH]",
		Short: "Download one payload via HTTP range requests",
		Long: `Download one payload via HTTP range requests.

Without a URL the source is built from --host, --port and --path.
Exit status is 0 on success, 1 on failure and 2 when the payload
was downloaded but did not match --sha256.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			url, err := cfg.SourceURL(arg)
			if err != nil {
				return err
			}
			runJobs([]scheduler.Job{{Output: cfg.Output, Config: cfg.DownloadConfig(url, "")}}, 1)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file path, s3://bucket/key, or - for stdout (default: verify only)")
	cmd.Flags().String("host", "127.0.0.1", "Server host when no URL is given")
	cmd.Flags().Int("port", 8080, "Server port when no URL is given")
	cmd.Flags().String("path", "/", "Resource path when no URL is given")
	return cmd
}
