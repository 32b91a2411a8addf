package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/sdm/internal/output"
	"github.com/tanq16/sdm/internal/scheduler"
	"github.com/tanq16/sdm/internal/utils"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Long: `Process multiple downloads from a YAML file. Each entry takes a link, an
optional output path (op) and an optional start time (at):

  - link: https://example.com/file.iso
    op: isos/file.iso
  - link: https://example.com/other.iso
    at: "23:30"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := utils.ReadBatchFile(args[0])
			if err != nil {
				return err
			}
			jobs := buildJobsFromBatch(entries, time.Now())
			if len(jobs) == 0 {
				return fmt.Errorf("no valid jobs found in the batch file")
			}
			runJobs(jobs)
			return nil
		},
	}
	return cmd
}

func buildJobsFromBatch(entries []utils.DownloadEntry, now time.Time) []scheduler.Job {
	var jobs []scheduler.Job
	claimed := make(map[string]bool)
	for i, entry := range entries {
		if entry.URL == "" {
			output.PrintWarning(fmt.Sprintf("Warning: entry %d has no link, skipping...", i+1))
			continue
		}
		job := scheduler.Job{
			URL:        entry.URL,
			OutputPath: claimPath(claimed, resolveOutputPath(entry.URL, entry.OutputPath)),
		}
		if entry.At != "" {
			at, err := utils.ParseScheduleTime(entry.At, now)
			if err != nil {
				output.PrintWarning(fmt.Sprintf("Warning: entry %d: %v, skipping...", i+1, err))
				continue
			}
			job.At = at
		}
		compLog := utils.GetLogger("cmd")
		compLog.Debug().Str("url", job.URL).Str("file", job.OutputPath).Msg("batch job built")
		jobs = append(jobs, job)
	}
	return jobs
}

// claimPath renames p when an earlier entry of the same batch already
// resolved to it.
func claimPath(claimed map[string]bool, p string) string {
	if claimed[p] {
		ext := filepath.Ext(p)
		base := strings.TrimSuffix(p, ext)
		for i := 1; ; i++ {
			candidate := utils.FreeOutputPath(fmt.Sprintf("%s-(%d)%s", base, i, ext))
			if !claimed[candidate] {
				p = candidate
				break
			}
		}
	}
	claimed[p] = true
	return p
}
