package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangeget/internal/scheduler"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [--parallel N]",
		Short: "Process multiple downloads from a YAML file",
		Long: `Process multiple downloads from a YAML file of entries like:

  - link: http://127.0.0.1:8080/
    op: payload.bin
    sha256: 9f86d081884c7d65...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := scheduler.ReadDownloadList(args[0])
			if err != nil {
				return err
			}
			jobs := make([]scheduler.Job, 0, len(entries))
			for i, entry := range entries {
				url, err := cfg.SourceURL(entry.URL)
				if err != nil {
					return fmt.Errorf("entry %d: %w", i+1, err)
				}
				jobs = append(jobs, scheduler.Job{Output: entry.OutputPath, Config: cfg.DownloadConfig(url, entry.SHA256)})
			}
			runJobs(jobs, cfg.Parallel)
			return nil
		},
	}
	cmd.Flags().Int("parallel", 1, "Number of downloads to run at once")
	return cmd
}
