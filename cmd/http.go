package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/sdm/internal/scheduler"
	"github.com/tanq16/sdm/internal/utils"
)

func newHTTPCmd() *cobra.Command {
	var outputPath string
	var at string

	cmd := &cobra.Command{
		Use:   "http [URL] [--output OUTPUT_PATH] [--at TIME]",
		Short: "Download a file via HTTP/HTTPS with parallel ranged requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			job := scheduler.Job{
				URL:        url,
				OutputPath: resolveOutputPath(url, outputPath),
			}
			if at != "" {
				scheduled, err := utils.ParseScheduleTime(at, time.Now())
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				job.At = scheduled
			}
			runJobs([]scheduler.Job{job})
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	cmd.Flags().StringVar(&at, "at", "", "Start at this time ('15:04', '2006-01-02 15:04' or RFC3339)")
	return cmd
}
