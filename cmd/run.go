package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/sdm/internal/archive"
	sdmhttp "github.com/tanq16/sdm/internal/downloaders/http"
	"github.com/tanq16/sdm/internal/output"
	"github.com/tanq16/sdm/internal/scheduler"
	"github.com/tanq16/sdm/internal/utils"
)

// runJobs drives a set of downloads to the end with the terminal display,
// then archives what completed and exits non-zero on any failure.
func runJobs(jobs []scheduler.Job) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := sdmhttp.DefaultConfig()
	cfg.Workers = settings.Connections
	cfg.MaxRetries = settings.MaxRetries
	cfg.RetryInterval = settings.RetryInterval
	cfg.ChunkIncrement = int(settings.ChunkIncrement)

	outputMgr := output.NewManager()
	reg := scheduler.NewRegistry(ctx, scheduler.Options{
		Task:           cfg,
		ParallelTasks:  settings.Workers,
		SpeedLimit:     int64(settings.SpeedLimit),
		GlobalLimit:    int64(settings.GlobalLimit),
		MaxConnections: settings.MaxConnections,
		Client:         utils.NewSDMHTTPClient(globalHTTPConfig),
		Reporter:       outputMgr,
		Logger:         log.Logger,
	})
	watchPauseSignal(ctx, reg)

	outputMgr.StartDisplay()
	err := scheduler.Run(ctx, reg, jobs, func(job scheduler.Job, task *sdmhttp.Task) {
		outputMgr.Register(task.ID(), filepath.Base(task.Path()))
		if !job.At.IsZero() {
			outputMgr.SetMessage(task.ID(), fmt.Sprintf("Scheduled %s for %s", filepath.Base(task.Path()), job.At.Format("2006-01-02 15:04")))
		}
	})
	outputMgr.StopDisplay()

	if settings.Archive.Target != "" && ctx.Err() == nil {
		archiveCompleted(ctx, reg)
	}
	if err != nil {
		compLog := utils.GetLogger("cmd")
		compLog.Error().Err(err).Msg("downloads finished with errors")
		output.PrintError("Encountered failed operation(s)")
		os.Exit(1)
	}
	if !settings.CloseOnComplete && ctx.Err() == nil {
		output.PrintInfo("All downloads finished, press Ctrl+C to exit")
		<-ctx.Done()
	}
}

func archiveCompleted(ctx context.Context, reg *scheduler.Registry) {
	var paths []string
	for _, snap := range reg.List() {
		if snap.Status == sdmhttp.StatusCompleted {
			paths = append(paths, snap.Path)
		}
	}
	if len(paths) == 0 {
		return
	}
	uploader, err := archive.NewUploader(ctx, settings.Archive.Target, settings.Archive.Profile, log.Logger)
	if err != nil {
		output.PrintError(fmt.Sprintf("Archive unavailable: %v", err))
		return
	}
	locations, err := uploader.UploadAll(ctx, paths)
	for _, location := range locations {
		output.PrintSuccess(fmt.Sprintf("%s Archived to %s", output.StyleSymbols["pass"], location))
	}
	if err != nil {
		output.PrintError(fmt.Sprintf("%s %v", output.StyleSymbols["fail"], err))
	}
}

// resolveOutputPath names the file after the URL when outputPath is empty or
// a directory, and never overwrites an existing file.
func resolveOutputPath(rawURL, outputPath string) string {
	if outputPath == "" {
		outputPath = sdmhttp.FileNameFromURL(rawURL)
	} else if info, err := os.Stat(outputPath); (err == nil && info.IsDir()) || os.IsPathSeparator(outputPath[len(outputPath)-1]) {
		outputPath = filepath.Join(outputPath, sdmhttp.FileNameFromURL(rawURL))
	}
	return utils.FreeOutputPath(outputPath)
}
